// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package common

import (
	"fmt"
	"math/big"
)

// modInt is a *big.Int that performs all of its arithmetic with modular reduction.
type modInt big.Int

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

func ModInt(mod *big.Int) *modInt {
	return (*modInt)(mod)
}

func (mi *modInt) Add(x, y *big.Int) *big.Int {
	i := new(big.Int)
	i.Add(x, y)
	return i.Mod(i, mi.i())
}

func (mi *modInt) Sub(x, y *big.Int) *big.Int {
	i := new(big.Int)
	i.Sub(x, y)
	return i.Mod(i, mi.i())
}

func (mi *modInt) Div(x, y *big.Int) *big.Int {
	i := new(big.Int)
	i.Div(x, y)
	return i.Mod(i, mi.i())
}

func (mi *modInt) Mul(x, y *big.Int) *big.Int {
	i := new(big.Int)
	i.Mul(x, y)
	return i.Mod(i, mi.i())
}

func (mi *modInt) Exp(x, y *big.Int) *big.Int {
	return new(big.Int).Exp(x, y, mi.i())
}

func (mi *modInt) ModInverse(g *big.Int) *big.Int {
	return new(big.Int).ModInverse(g, mi.i())
}

// Neg returns -x mod m, always in [0, m).
func (mi *modInt) Neg(x *big.Int) *big.Int {
	i := new(big.Int).Neg(x)
	return i.Mod(i, mi.i())
}

// Sqrt returns a square root of x modulo a prime p, or nil if none exists.
// Only correct for p ≡ 3 (mod 4), which holds for the secp256k1 field prime;
// the fast exponent form y = x^((p+1)/4) mod p avoids a general Tonelli-Shanks.
func (mi *modInt) Sqrt(x *big.Int) *big.Int {
	p := mi.i()
	if p.Bit(0) == 0 || p.Bit(1) == 0 {
		// p mod 4 != 3; this shortcut does not apply
		return nil
	}
	e := new(big.Int).Add(p, one)
	e.Rsh(e, 2)
	y := new(big.Int).Exp(x, e, p)
	check := new(big.Int).Mul(y, y)
	check.Mod(check, p)
	if check.Cmp(new(big.Int).Mod(x, p)) != 0 {
		return nil
	}
	return y
}

func (mi *modInt) i() *big.Int {
	return (*big.Int)(mi)
}

// Inv computes the modular inverse of a modulo n via the extended Euclidean
// algorithm (as implemented by math/big's ModInverse). It fails when
// gcd(a, n) != 1, which includes a == 0.
func Inv(a, n *big.Int) (*big.Int, error) {
	if n == nil || n.Sign() <= 0 {
		return nil, fmt.Errorf("Inv: modulus must be positive")
	}
	aMod := new(big.Int).Mod(a, n)
	inv := new(big.Int).ModInverse(aMod, n)
	if inv == nil {
		return nil, fmt.Errorf("Inv: %s has no inverse mod %s (gcd != 1)", aMod.String(), n.String())
	}
	return inv, nil
}
