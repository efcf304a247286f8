// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package statemachine implements the Round State Machine: the per-transaction
// finite automaton that advances on submissions and commits round-aggregate
// outputs. Rounds 2 and 4 are not guardian-driven; they are transitions the
// server executes exactly once, the instant the preceding round's last
// expected submission commits.
package statemachine

import (
	"math/big"

	"github.com/hashicorp/go-multierror"

	"github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/tss"
)

// AggregateRound2 computes k_total = sum(k_i) mod n and R = sum(R_i), then
// r = R.x mod n, over the transaction's frozen participant set. It returns
// tss.KindInvalidPayload if any entry is missing or fails to decode, and
// tss.KindAggregationFailure if R is the point at infinity or if r = 0 — all
// permanent failures per the reference, which has no resample/retry loop.
func AggregateRound2(tx *model.Transaction) (*model.Round2Aggregate, error) {
	var multiErr *multierror.Error

	kTotal := big.NewInt(0)
	var rSum *crypto.ECPoint

	for _, guardianID := range tx.ParticipatingGuardians {
		entry, ok := tx.Round1Data[guardianID]
		if !ok {
			multiErr = multierror.Append(multiErr, errf("missing round1 entry for guardian %s", guardianID))
			continue
		}

		k, err := crypto.ScalarFromHex(entry.NonceShareHex)
		if err != nil {
			multiErr = multierror.Append(multiErr, wrapf(err, "decode nonce share for guardian %s", guardianID))
			continue
		}
		kTotal.Add(kTotal, k)

		rPoint, err := crypto.PointFromHex(entry.RPointHex)
		if err != nil {
			multiErr = multierror.Append(multiErr, wrapf(err, "decode r point for guardian %s", guardianID))
			continue
		}
		if rSum == nil {
			rSum = rPoint
			continue
		}
		rSum, err = rSum.Add(rPoint)
		if err != nil {
			multiErr = multierror.Append(multiErr, wrapf(err, "add r point for guardian %s", guardianID))
		}
	}

	if multiErr.ErrorOrNil() != nil {
		return nil, tss.WrapError(multiErr.ErrorOrNil(), tss.KindInvalidPayload, "aggregate_round2", 2, tx.TransactionID, "")
	}

	kTotal.Mod(kTotal, tss.N())

	if rSum == nil || rSum.IsInfinity() {
		return nil, tss.WrapError(errf("R is the point at infinity"), tss.KindAggregationFailure, "aggregate_round2", 2, tx.TransactionID, "")
	}

	r := crypto.XCoordMod(rSum)
	if r.Sign() == 0 {
		return nil, tss.WrapError(errf("r = 0"), tss.KindAggregationFailure, "aggregate_round2", 2, tx.TransactionID, "")
	}

	return &model.Round2Aggregate{
		KTotalHex: crypto.ScalarToHex(kTotal),
		RPointHex: crypto.PointToHex(rSum),
		RHex:      crypto.ScalarToHex(r),
	}, nil
}

// AggregateRound4 computes s = sum(s_i) mod n over the frozen participant
// set, normalizes to canonical low-s (if s > n/2, s := n - s), and rejects
// s = 0. The summation and low-s normalization follow the standard ECDSA
// signature finalization step, generalized from a single local share to a
// server-side aggregation over submitted shares.
func AggregateRound4(tx *model.Transaction) (*model.FinalSignature, error) {
	if tx.Round2 == nil {
		return nil, tss.WrapError(errf("round2 aggregate missing"), tss.KindAggregationFailure, "aggregate_round4", 4, tx.TransactionID, "")
	}

	var multiErr *multierror.Error
	s := big.NewInt(0)

	for _, guardianID := range tx.ParticipatingGuardians {
		entry, ok := tx.Round3Data[guardianID]
		if !ok {
			multiErr = multierror.Append(multiErr, errf("missing round3 entry for guardian %s", guardianID))
			continue
		}
		si, err := crypto.ScalarFromHex(entry.SignatureShareHex)
		if err != nil {
			multiErr = multierror.Append(multiErr, wrapf(err, "decode signature share for guardian %s", guardianID))
			continue
		}
		s.Add(s, si)
	}

	if multiErr.ErrorOrNil() != nil {
		return nil, tss.WrapError(multiErr.ErrorOrNil(), tss.KindInvalidPayload, "aggregate_round4", 4, tx.TransactionID, "")
	}

	n := tss.N()
	s.Mod(s, n)
	if s.Sign() == 0 {
		return nil, tss.WrapError(errf("s = 0"), tss.KindAggregationFailure, "aggregate_round4", 4, tx.TransactionID, "")
	}

	if s.Cmp(model.HalfN(n)) > 0 {
		s.Sub(n, s)
	}

	r, err := crypto.ScalarFromHex(tx.Round2.RHex)
	if err != nil {
		return nil, tss.WrapError(err, tss.KindAggregationFailure, "aggregate_round4", 4, tx.TransactionID, "")
	}

	return &model.FinalSignature{
		RHex: crypto.ScalarToHex(r),
		SHex: crypto.ScalarToHex(s),
	}, nil
}
