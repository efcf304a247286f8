// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package tss

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// EC returns the curve this module operates over. Threshold ECDSA signing over
// secp256k1 is the only scheme this coordinator sequences, so there is no
// per-call curve registry: the coordinator never runs keygen or touches
// another scheme's share format.
func EC() elliptic.Curve {
	return btcec.S256()
}

// N is the order of the secp256k1 base point. Every scalar this module handles
// (nonce shares, k_total, r, s, signature shares) lives in [0, N) and every
// modular reduction reduces against it.
func N() *big.Int {
	return EC().Params().N
}
