// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package tss

import "fmt"

// Kind classifies an Error into the taxonomy the coordinator and its callers
// reason about. It is never used for control flow inside cryptographic code;
// it exists so handlers at the repository/coordinator/transport boundary can
// decide what to tell the submitting guardian.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindNotParticipating   Kind = "not_participating"
	KindInvalidPayload     Kind = "invalid_payload"
	KindDuplicateConflict  Kind = "duplicate_conflict"
	KindWrongPhase         Kind = "wrong_phase"
	KindAggregationFailure Kind = "aggregation_failure"
	KindRepositoryConflict Kind = "repository_conflict"
	KindTimeout            Kind = "timeout"
	KindTransportError     Kind = "transport_error"
)

// Error is a fundamental error that carries a Kind, a task name for logging,
// and the transaction/guardian it concerns. Round numbers in this coordinator
// run 1-4, with 0 for operations not tied to a round (cancel, expire,
// retry_atomic); "task" records the operation (e.g. "submit_round1", "aggregate_round2").
type Error struct {
	cause         error
	kind          Kind
	task          string
	round         int
	transactionID string
	guardianID    string
}

func NewError(err error, kind Kind, task string, round int, transactionID, guardianID string) *Error {
	return &Error{cause: err, kind: kind, task: task, round: round, transactionID: transactionID, guardianID: guardianID}
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Cause() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Task() string { return e.task }

func (e *Error) Round() int { return e.round }

func (e *Error) TransactionID() string { return e.transactionID }

func (e *Error) GuardianID() string { return e.guardianID }

func (e *Error) Error() string {
	if e == nil || e.cause == nil {
		return "Error is nil"
	}
	if e.guardianID != "" {
		return fmt.Sprintf("task %s, tx %s, guardian %s, round %d, kind %s: %s",
			e.task, e.transactionID, e.guardianID, e.round, e.kind, e.cause.Error())
	}
	return fmt.Sprintf("task %s, tx %s, round %d, kind %s: %s",
		e.task, e.transactionID, e.round, e.kind, e.cause.Error())
}

// WrapError is the constructor callers reach for inline, in the style of a
// round.WrapError(err, culprits...) helper.
func WrapError(err error, kind Kind, task string, round int, transactionID, guardianID string) *Error {
	if err == nil {
		return nil
	}
	return NewError(err, kind, task, round, transactionID, guardianID)
}
