// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package coordinator

import "github.com/pkg/errors"

func errf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
