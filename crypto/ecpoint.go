// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"

	"github.com/vaultguard/mpc-coordinator/common"
)

// ECPoint represents a point on an elliptic curve in affine form. It is designed to be immutable.
type ECPoint struct {
	curve  elliptic.Curve
	coords [2]*big.Int
}

// NewECPoint constructs an ECPoint and checks that the given coordinates are on the elliptic curve.
func NewECPoint(curve elliptic.Curve, X, Y *big.Int) (*ECPoint, error) {
	if !isOnCurve(curve, X, Y) {
		return nil, fmt.Errorf("NewECPoint: the given point is not on the elliptic curve")
	}
	return &ECPoint{curve, [2]*big.Int{X, Y}}, nil
}

// NewECPointNoCurveCheck constructs an ECPoint without checking curve membership.
// Only use this when the point is already known to be on the curve (e.g. decompression output).
func NewECPointNoCurveCheck(curve elliptic.Curve, X, Y *big.Int) *ECPoint {
	return &ECPoint{curve, [2]*big.Int{X, Y}}
}

func (p *ECPoint) X() *big.Int {
	if p == nil || p.coords[0] == nil {
		return nil
	}
	return new(big.Int).Set(p.coords[0])
}

func (p *ECPoint) Y() *big.Int {
	if p == nil || p.coords[1] == nil {
		return nil
	}
	return new(big.Int).Set(p.coords[1])
}

// Add sums two points. A result of (0, 0) is the curve library's convention
// for the point at infinity (e.g. summing a nonce-commitment set that
// cancels out); that result does not itself satisfy the curve equation, so
// it is returned via NewECPointNoCurveCheck rather than rejected by the
// on-curve check NewECPoint would otherwise apply. Callers that care — Round
// 2 aggregation does — detect it with IsInfinity().
func (p *ECPoint) Add(b *ECPoint) (*ECPoint, error) {
	x, y := p.curve.Add(p.X(), p.Y(), b.X(), b.Y())
	if x.Sign() == 0 && y.Sign() == 0 {
		return NewECPointNoCurveCheck(p.curve, x, y), nil
	}
	return NewECPoint(p.curve, x, y)
}

func (p *ECPoint) Neg() *ECPoint {
	order := p.curve.Params().P
	negY := new(big.Int).Neg(p.Y())
	negY.Mod(negY, order)
	return NewECPointNoCurveCheck(p.curve, p.X(), negY)
}

func (p *ECPoint) ScalarMult(k *big.Int) *ECPoint {
	x, y := p.curve.ScalarMult(p.X(), p.Y(), k.Bytes())
	newP, _ := NewECPoint(p.curve, x, y) // it must be on the curve, no need to check.
	return newP
}

func (p *ECPoint) IsOnCurve() bool {
	return isOnCurve(p.curve, p.coords[0], p.coords[1])
}

// IsInfinity reports whether the point is the identity element (the result of summing
// an R_i set that cancels out). curve.Add represents it as (0, 0), which Add
// wraps without an on-curve check; NewECPoint rejects it.
func (p *ECPoint) IsInfinity() bool {
	return p.coords[0].Sign() == 0 && p.coords[1].Sign() == 0
}

func (p *ECPoint) Equals(b *ECPoint) bool {
	if p == nil || b == nil {
		return false
	}
	return p.X().Cmp(b.X()) == 0 && p.Y().Cmp(b.Y()) == 0
}

func (p *ECPoint) ToECDSAPubKey() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{
		Curve: p.curve,
		X:     p.X(),
		Y:     p.Y(),
	}
}

// ----- //

func isOnCurve(c elliptic.Curve, x, y *big.Int) bool {
	if x == nil || y == nil {
		return false
	}
	return c.IsOnCurve(x, y)
}

func ScalarBaseMult(curve elliptic.Curve, k *big.Int) *ECPoint {
	x, y := curve.ScalarBaseMult(k.Bytes())
	p, _ := NewECPoint(curve, x, y) // it must be on the curve, no need to check.
	return p
}

// CompressedBytes encodes the point in the 33-byte SEC1 compressed form: a 0x02/0x03
// sign-of-y prefix followed by the 32-byte big-endian x-coordinate.
func (p *ECPoint) CompressedBytes() []byte {
	pub := btcec.PublicKey{Curve: p.curve, X: p.X(), Y: p.Y()}
	return pub.SerializeCompressed()
}

// DecompressPoint recovers the full affine point from a 33-byte SEC1 compressed
// encoding on secp256k1. It is the inverse of CompressedBytes.
func DecompressPoint(curve elliptic.Curve, compressed []byte) (*ECPoint, error) {
	if curve == nil {
		return nil, errors.New("DecompressPoint() received a nil curve")
	}
	if len(compressed) != 33 {
		return nil, fmt.Errorf("DecompressPoint() expected a 33-byte compressed point, got %d bytes", len(compressed))
	}
	sign := compressed[0]
	if sign != 0x02 && sign != 0x03 {
		return nil, fmt.Errorf("DecompressPoint() invalid prefix byte 0x%02x", sign)
	}
	x := new(big.Int).SetBytes(compressed[1:])
	if curve != btcec.S256() {
		return nil, errors.New("DecompressPoint() only secp256k1 is supported")
	}
	return decompressSecp256k1(curve, x, sign)
}

func decompressSecp256k1(curve elliptic.Curve, x *big.Int, sign byte) (*ECPoint, error) {
	params := curve.Params()
	modP := common.ModInt(params.P)

	// secp256k1: y^2 = x^3 + 7
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	y2 := modP.Add(x3, big.NewInt(7))

	y := modP.Sqrt(y2)
	if y == nil {
		return nil, errors.New("DecompressPoint() invalid point: no square root exists")
	}
	if y.Bit(0) != uint(sign)&1 {
		y = modP.Neg(y)
	}
	pt := &ECPoint{curve: curve, coords: [2]*big.Int{x, y}}
	if !pt.IsOnCurve() {
		return nil, errors.New("DecompressPoint() recovered point is not on the curve")
	}
	return pt, nil
}

// ----- //

func FlattenECPoints(in []*ECPoint) ([]*big.Int, error) {
	if in == nil {
		return nil, errors.New("FlattenECPoints encountered a nil in slice")
	}
	flat := make([]*big.Int, 0, len(in)*2)
	for _, point := range in {
		if point == nil || point.coords[0] == nil || point.coords[1] == nil {
			return nil, errors.New("FlattenECPoints found nil point/coordinate")
		}
		flat = append(flat, point.coords[0])
		flat = append(flat, point.coords[1])
	}
	return flat, nil
}

func UnFlattenECPoints(curve elliptic.Curve, in []*big.Int, noCurveCheck ...bool) ([]*ECPoint, error) {
	if in == nil || len(in)%2 != 0 {
		return nil, errors.New("UnFlattenECPoints expected an in len divisible by 2")
	}
	var err error
	unFlat := make([]*ECPoint, len(in)/2)
	for i, j := 0, 0; i < len(in); i, j = i+2, j+1 {
		if len(noCurveCheck) == 0 || !noCurveCheck[0] {
			unFlat[j], err = NewECPoint(curve, in[i], in[i+1])
			if err != nil {
				return nil, err
			}
		} else {
			unFlat[j] = NewECPointNoCurveCheck(curve, in[i], in[i+1])
		}
	}
	for _, point := range unFlat {
		if point.coords[0] == nil || point.coords[1] == nil {
			return nil, errors.New("UnFlattenECPoints found nil coordinate after unpack")
		}
	}
	return unFlat, nil
}

