// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package common

import (
	golog "github.com/ipfs/go-log"
)

const subsystem = "mpc-coordinator"

// Logger is the package-wide structured logger. Every component in this module
// logs through it rather than the stdlib log package, matching the subsystem
// convention ipfs/go-log ties to SetLogLevel.
var Logger = golog.Logger(subsystem)

// SetLogLevel adjusts the verbosity of the "mpc-coordinator" subsystem at runtime,
// e.g. "debug", "info", "warn", "error".
func SetLogLevel(level string) error {
	return golog.SetLogLevel(subsystem, level)
}
