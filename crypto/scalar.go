// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/vaultguard/mpc-coordinator/tss"
)

// ScalarFromHex decodes a big-endian hex string (no 0x prefix, 1-32 bytes) into
// a scalar and checks it lies in [1, n). This is the wire encoding used for
// nonce shares and signature shares.
func ScalarFromHex(s string) (*big.Int, error) {
	if len(s) == 0 || len(s) > 64 {
		return nil, fmt.Errorf("ScalarFromHex: expected 1-64 hex chars, got %d", len(s))
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ScalarFromHex: %w", err)
	}
	v := new(big.Int).SetBytes(bz)
	if v.Sign() <= 0 || v.Cmp(tss.N()) >= 0 {
		return nil, fmt.Errorf("ScalarFromHex: value out of range [1, n)")
	}
	return v, nil
}

// ScalarToHex encodes a scalar as minimal big-endian hex, the inverse of ScalarFromHex.
func ScalarToHex(v *big.Int) string {
	return hex.EncodeToString(v.Bytes())
}

// PointFromHex decodes the 66-hex-char (33-byte) compressed secp256k1 encoding.
func PointFromHex(s string) (*ECPoint, error) {
	if len(s) != 66 {
		return nil, fmt.Errorf("PointFromHex: expected 66 hex chars, got %d", len(s))
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("PointFromHex: %w", err)
	}
	return DecompressPoint(tss.EC(), bz)
}

// PointToHex is the inverse of PointFromHex.
func PointToHex(p *ECPoint) string {
	return hex.EncodeToString(p.CompressedBytes())
}

// XCoordMod returns the point's x-coordinate reduced modulo the curve order n,
// i.e. `r` in the ECDSA signature produced by Round 2 aggregation.
func XCoordMod(p *ECPoint) *big.Int {
	return new(big.Int).Mod(p.X(), tss.N())
}

// HashFromHex decodes the 64-hex-char (32-byte) message hash z used as the
// ECDSA digest input. It is not reduced mod n here; callers reduce at the
// point of use.
func HashFromHex(s string) (*big.Int, error) {
	if len(s) != 64 {
		return nil, fmt.Errorf("HashFromHex: expected 64 hex chars, got %d", len(s))
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("HashFromHex: %w", err)
	}
	return new(big.Int).SetBytes(bz), nil
}
