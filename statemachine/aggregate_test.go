// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package statemachine_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/statemachine"
	"github.com/vaultguard/mpc-coordinator/tss"
)

func round1Entry(t *testing.T, k int64) model.Round1Entry {
	t.Helper()
	scalar := new(big.Int).Mod(big.NewInt(k), tss.N())
	point := crypto.ScalarBaseMult(tss.EC(), scalar)
	return model.Round1Entry{
		NonceShareHex: crypto.ScalarToHex(scalar),
		RPointHex:     crypto.PointToHex(point),
	}
}

func TestAggregateRound2HappyPath(t *testing.T) {
	tx := &model.Transaction{
		TransactionID:          "t1",
		SignaturesRequired:     2,
		ParticipatingGuardians: []string{"g1", "g2"},
		Round1Data: map[string]model.Round1Entry{
			"g1": round1Entry(t, 11),
			"g2": round1Entry(t, 22),
		},
	}

	agg, err := statemachine.AggregateRound2(tx)
	require.NoError(t, err)
	assert.NotEmpty(t, agg.RHex)
	assert.NotEmpty(t, agg.KTotalHex)

	kTotal, err := crypto.ScalarFromHex(agg.KTotalHex)
	require.NoError(t, err)
	expected := new(big.Int).Mod(big.NewInt(33), tss.N())
	assert.Equal(t, 0, kTotal.Cmp(expected))
}

func TestAggregateRound2PointAtInfinity(t *testing.T) {
	n := tss.N()
	k1 := big.NewInt(7)
	k2 := new(big.Int).Sub(n, k1) // R2 = -R1, so R1+R2 = infinity

	p1 := crypto.ScalarBaseMult(tss.EC(), k1)
	p2 := crypto.ScalarBaseMult(tss.EC(), k2)

	tx := &model.Transaction{
		TransactionID:          "t2",
		SignaturesRequired:     2,
		ParticipatingGuardians: []string{"g1", "g2"},
		Round1Data: map[string]model.Round1Entry{
			"g1": {NonceShareHex: crypto.ScalarToHex(k1), RPointHex: crypto.PointToHex(p1)},
			"g2": {NonceShareHex: crypto.ScalarToHex(k2), RPointHex: crypto.PointToHex(p2)},
		},
	}

	_, err := statemachine.AggregateRound2(tx)
	require.Error(t, err)
	tssErr, ok := err.(*tss.Error)
	require.True(t, ok)
	assert.Equal(t, tss.KindAggregationFailure, tssErr.Kind())
}

func TestAggregateRound4LowSNormalization(t *testing.T) {
	n := tss.N()
	half := model.HalfN(n)
	// Choose shares summing to something just above n/2 so normalization fires.
	s1 := new(big.Int).Add(half, big.NewInt(100))
	s1.Mod(s1, n)

	tx := &model.Transaction{
		TransactionID:          "t3",
		SignaturesRequired:     1,
		ParticipatingGuardians: []string{"g1"},
		Round2:                 &model.Round2Aggregate{RHex: crypto.ScalarToHex(big.NewInt(42))},
		Round3Data: map[string]model.Round3Entry{
			"g1": {SignatureShareHex: crypto.ScalarToHex(s1)},
		},
	}

	final, err := statemachine.AggregateRound4(tx)
	require.NoError(t, err)

	s, err := crypto.ScalarFromHex(final.SHex)
	require.NoError(t, err)
	assert.True(t, s.Cmp(half) <= 0, "expected low-s normalized signature, got s=%s", s)
}

func TestAggregateRound4RejectsZero(t *testing.T) {
	n := tss.N()
	tx := &model.Transaction{
		TransactionID:          "t4",
		SignaturesRequired:     2,
		ParticipatingGuardians: []string{"g1", "g2"},
		Round2:                 &model.Round2Aggregate{RHex: crypto.ScalarToHex(big.NewInt(1))},
		Round3Data: map[string]model.Round3Entry{
			"g1": {SignatureShareHex: crypto.ScalarToHex(big.NewInt(5))},
			"g2": {SignatureShareHex: crypto.ScalarToHex(new(big.Int).Sub(n, big.NewInt(5)))},
		},
	}

	_, err := statemachine.AggregateRound4(tx)
	require.Error(t, err)
	tssErr, ok := err.(*tss.Error)
	require.True(t, ok)
	assert.Equal(t, tss.KindAggregationFailure, tssErr.Kind())
}
