// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package common_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaultguard/mpc-coordinator/common"
)

const randomIntBitLen = 256

func TestGetRandomInt(t *testing.T) {
	rnd := common.MustGetRandomInt(randomIntBitLen)
	assert.NotZero(t, rnd, "rand int should not be zero")
}

func TestGetRandomPositiveInt(t *testing.T) {
	rnd := common.MustGetRandomInt(randomIntBitLen)
	rndPos := common.GetRandomPositiveInt(rnd)
	assert.NotNil(t, rndPos)
	assert.True(t, rndPos.Cmp(big.NewInt(0)) >= 0, "rand int should be non-negative")
	assert.True(t, rndPos.Cmp(rnd) < 0, "rand int should be less than the bound")
}

func TestGetRandomPositiveRelativelyPrimeInt(t *testing.T) {
	rnd := common.MustGetRandomInt(randomIntBitLen)
	rndPosRP := common.GetRandomPositiveRelativelyPrimeInt(rnd)
	assert.NotZero(t, rndPosRP, "rand int should not be zero")
	assert.True(t, common.IsNumberInMultiplicativeGroup(rnd, rndPosRP))
}

func TestInv(t *testing.T) {
	n := big.NewInt(17)
	a := big.NewInt(5)
	inv, err := common.Inv(a, n)
	assert.NoError(t, err)
	product := new(big.Int).Mod(new(big.Int).Mul(a, inv), n)
	assert.Equal(t, big.NewInt(1), product)
}

func TestInvNoInverse(t *testing.T) {
	n := big.NewInt(10)
	a := big.NewInt(4) // gcd(4, 10) == 2
	_, err := common.Inv(a, n)
	assert.Error(t, err)
}
