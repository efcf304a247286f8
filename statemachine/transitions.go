// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package statemachine

import (
	"time"

	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/tss"
)

// ApplyRound1Submission folds one guardian's Round 1 payload into tx. The
// very first submission starts ParticipatingGuardians with the submitting
// guardian; later newcomers are appended until the set holds t members, after
// which it is frozen ("first t to submit"). It is meant to run inside an
// AtomicUpdate mutator guarded by expectedStatus ∈ {pending, signing_round1}.
func ApplyRound1Submission(tx *model.Transaction, guardianID string, entry model.Round1Entry, now time.Time) (completed bool, err error) {
	if tx.Status == model.StatusPending {
		tx.ParticipatingGuardians = []string{guardianID}
		tx.Status = model.StatusSigningRound1
		started := now
		tx.Round1StartedAt = &started
	} else if tx.Status != model.StatusSigningRound1 {
		return false, tss.NewError(errf("round1 submission while status is %s", tx.Status), tss.KindWrongPhase, "submit_round1", 1, tx.TransactionID, guardianID)
	} else if !tx.IsParticipant(guardianID) {
		if len(tx.ParticipatingGuardians) < tx.SignaturesRequired {
			tx.ParticipatingGuardians = append(tx.ParticipatingGuardians, guardianID)
		} else {
			return false, tss.NewError(errf("guardian %s not in frozen participant set", guardianID), tss.KindNotParticipating, "submit_round1", 1, tx.TransactionID, guardianID)
		}
	}

	result, appendErr := appendRound1(tx, guardianID, entry)
	if appendErr != nil {
		return false, tss.NewError(appendErr, tss.KindDuplicateConflict, "submit_round1", 1, tx.TransactionID, guardianID)
	}
	return result, nil
}

// appendRound1 is the map-mutation half of ApplyRound1Submission, kept
// separate so CommitRound2 (invoked by the coordinator once this returns
// completed=true) can run against the same freshly-written copy.
func appendRound1(tx *model.Transaction, guardianID string, entry model.Round1Entry) (bool, error) {
	if tx.Round1Data == nil {
		tx.Round1Data = make(map[string]model.Round1Entry)
	}
	if existing, ok := tx.Round1Data[guardianID]; ok {
		if existing != entry {
			return false, errf("conflicting round1 payload for guardian %s", guardianID)
		}
		return len(tx.Round1Data) == tx.SignaturesRequired, nil
	}
	tx.Round1Data[guardianID] = entry
	return len(tx.Round1Data) == tx.SignaturesRequired, nil
}

// CommitRound2 runs the Round 2 aggregation and writes its result, advancing
// tx.Status to signing_round3 (Round 2 itself is not a guardian-observable
// status; it is folded into the same atomic write that opens Round 3) or to
// failed on AggregationFailure. Callers invoke this inside the AtomicUpdate
// whose expectedStatus is signing_round1, immediately after the write that
// completed Round 1 — never before it is durable.
func CommitRound2(tx *model.Transaction, now time.Time) error {
	aggregate, err := AggregateRound2(tx)
	if err != nil {
		tx.Status = model.StatusFailed
		tx.FailureReason = err.Error()
		return err
	}
	tx.Round2 = aggregate
	started := now
	tx.Round2StartedAt = &started
	tx.Round3StartedAt = &started
	tx.Status = model.StatusSigningRound3
	return nil
}

// ApplyRound3Submission is the Round 3 analogue of ApplyRound1Submission.
// The participant set is already frozen by Round 1, so this never extends it.
func ApplyRound3Submission(tx *model.Transaction, guardianID string, entry model.Round3Entry) (completed bool, err error) {
	if tx.Status != model.StatusSigningRound3 {
		return false, tss.NewError(errf("round3 submission while status is %s", tx.Status), tss.KindWrongPhase, "submit_round3", 3, tx.TransactionID, guardianID)
	}
	if !tx.IsParticipant(guardianID) {
		return false, tss.NewError(errf("guardian %s not in frozen participant set", guardianID), tss.KindNotParticipating, "submit_round3", 3, tx.TransactionID, guardianID)
	}

	if tx.Round3Data == nil {
		tx.Round3Data = make(map[string]model.Round3Entry)
	}
	if existing, ok := tx.Round3Data[guardianID]; ok {
		if existing != entry {
			return false, tss.NewError(errf("conflicting round3 payload for guardian %s", guardianID), tss.KindDuplicateConflict, "submit_round3", 3, tx.TransactionID, guardianID)
		}
		return len(tx.Round3Data) == tx.SignaturesRequired, nil
	}
	tx.Round3Data[guardianID] = entry
	return len(tx.Round3Data) == tx.SignaturesRequired, nil
}

// CommitRound4 runs the Round 4 aggregation, writes the final signature, and
// advances tx.Status to completed (or failed on AggregationFailure).
func CommitRound4(tx *model.Transaction, now time.Time) error {
	final, err := AggregateRound4(tx)
	if err != nil {
		tx.Status = model.StatusFailed
		tx.FailureReason = err.Error()
		return err
	}
	tx.Final = final
	started := now
	tx.Round4StartedAt = &started
	tx.CompletedAt = &started
	tx.Status = model.StatusCompleted
	return nil
}

// Cancel transitions any non-terminal transaction to cancelled.
func Cancel(tx *model.Transaction, reason string) error {
	if tx.Status.IsTerminal() {
		return tss.NewError(errf("cannot cancel terminal transaction in status %s", tx.Status), tss.KindWrongPhase, "cancel", 0, tx.TransactionID, "")
	}
	tx.Status = model.StatusCancelled
	tx.FailureReason = reason
	return nil
}

// Expire transitions any non-terminal transaction past its deadline to
// failed, for the background sweeper.
func Expire(tx *model.Transaction) error {
	if tx.Status.IsTerminal() {
		return tss.NewError(errf("cannot expire terminal transaction in status %s", tx.Status), tss.KindWrongPhase, "expire", 0, tx.TransactionID, "")
	}
	tx.Status = model.StatusFailed
	tx.FailureReason = "timeout"
	return nil
}
