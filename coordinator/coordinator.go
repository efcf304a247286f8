// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package coordinator implements the MPC Coordinator: the public surface of
// the core that accepts round submissions, serializes progression through
// the repository's compare-and-set primitive, and emits broadcasts via the
// Session Registry. Every mutating operation is: validate -> atomic
// repository update guarded by expected status -> (if round complete)
// perform aggregation as a second atomic update whose guard is the
// just-written status -> broadcast.
package coordinator

import (
	"context"
	"time"

	"github.com/vaultguard/mpc-coordinator/common"
	"github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/metrics"
	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/repository"
	"github.com/vaultguard/mpc-coordinator/statemachine"
	"github.com/vaultguard/mpc-coordinator/tss"
)

// repositoryConflictRetries bounds how many times an AtomicUpdate that lost
// a compare-and-set race is retried in-process before being surfaced as
// RepositoryConflict, per the error handling design's "bounded, e.g. 5".
const repositoryConflictRetries = 5

// Ack is the acknowledgement payload every mutating operation resolves to.
type Ack struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Broadcaster is the subset of the Session Registry the coordinator depends
// on; satisfied by *registry.Registry in production and a recording fake in
// tests.
type Broadcaster interface {
	Broadcast(vaultID, event string, payload interface{})
}

// Coordinator is the orchestrator wiring a Repository, a VaultRepository for
// membership checks, and a Broadcaster together. Construct once at startup
// and pass by reference; it holds no per-transaction state of its own.
type Coordinator struct {
	repo      repository.Repository
	vaultRepo repository.VaultRepository
	broadcast Broadcaster
	now       func() time.Time

	transactionTimeout time.Duration

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithClock overrides the time source, for deterministic tests of the
// timeout sweeper (Scenario E).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New constructs a Coordinator. transactionTimeout is the wall-clock
// deadline new transactions are created with by the administrative surface;
// the coordinator itself never creates transactions, it only enforces
// their deadlines via the sweeper.
func New(repo repository.Repository, vaultRepo repository.VaultRepository, broadcast Broadcaster, transactionTimeout time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:               repo,
		vaultRepo:          vaultRepo,
		broadcast:          broadcast,
		now:                time.Now,
		transactionTimeout: transactionTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSweeper launches the background goroutine that transitions
// non-terminal transactions past their deadline to failed. Call once at
// startup; Stop tears it down.
func (c *Coordinator) StartSweeper(ctx context.Context, interval time.Duration) {
	c.stopSweep = make(chan struct{})
	c.sweepDone = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(c.sweepDone)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweepOnce(ctx)
			case <-c.stopSweep:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweeper goroutine, if running, and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.stopSweep == nil {
		return
	}
	close(c.stopSweep)
	<-c.sweepDone
}

func (c *Coordinator) sweepOnce(ctx context.Context) {
	expired, err := c.repo.ListExpired(ctx, c.now())
	if err != nil {
		common.Logger.Errorf("sweeper: list expired: %v", err)
		return
	}
	for _, tx := range expired {
		_, err := c.repo.AtomicUpdate(ctx, tx.TransactionID, tx.Status, func(working *model.Transaction) error {
			return statemachine.Expire(working)
		})
		if err != nil {
			if err == repository.ErrStatusConflict {
				continue // someone else already moved it on
			}
			common.Logger.Errorf("sweeper: expire tx %s: %v", tx.TransactionID, err)
			continue
		}
		metrics.RoundTransitions.WithLabelValues(string(model.StatusFailed)).Inc()
		common.Logger.Infof("tx %s timed out", tx.TransactionID)
		c.broadcast.Broadcast(tx.VaultID, "signing:cancelled", map[string]string{
			"transactionId": tx.TransactionID,
			"reason":        "timeout",
		})
	}
}

// SubmitRound1 validates and folds a guardian's Round 1 payload, per the
// component design: if this submission completes the round, Round 2
// aggregation runs inline in the same logical transaction as the completing
// write, and a signing:round2_ready broadcast follows.
func (c *Coordinator) SubmitRound1(ctx context.Context, transactionID, guardianID, nonceShareHex, rPointHex string) Ack {
	if _, err := crypto.ScalarFromHex(nonceShareHex); err != nil {
		return errAck(tss.WrapError(err, tss.KindInvalidPayload, "submit_round1", 1, transactionID, guardianID))
	}
	if _, err := crypto.PointFromHex(rPointHex); err != nil {
		return errAck(tss.WrapError(err, tss.KindInvalidPayload, "submit_round1", 1, transactionID, guardianID))
	}
	entry := model.Round1Entry{NonceShareHex: nonceShareHex, RPointHex: rPointHex}

	tx, err := c.repo.Get(ctx, transactionID)
	if err != nil {
		return errAck(translateRepoErr(err, "submit_round1", 1, transactionID, guardianID))
	}
	if err := c.checkGuardianMembership(ctx, tx.VaultID, guardianID); err != nil {
		if err == repository.ErrNotFound {
			return errAck(tss.WrapError(err, tss.KindNotFound, "submit_round1", 1, transactionID, guardianID))
		}
		return errAck(tss.WrapError(err, tss.KindNotParticipating, "submit_round1", 1, transactionID, guardianID))
	}
	// A straggler arriving after the participant set has frozen (round1 is
	// closed and this guardian never made it in) is NotParticipating even
	// though the transaction has also moved past the round1/round2 phase —
	// this is testable property #9, and takes precedence over WrongPhase so
	// the guardian gets the more specific, non-fatal-to-the-ceremony answer.
	if tx.Status != model.StatusPending && tx.Status != model.StatusSigningRound1 && !tx.IsParticipant(guardianID) {
		return errAck(tss.NewError(errf("guardian %s not in frozen participant set", guardianID), tss.KindNotParticipating, "submit_round1", 1, transactionID, guardianID))
	}
	if tx.Status != model.StatusPending && tx.Status != model.StatusSigningRound1 {
		return errAck(tss.NewError(errf("transaction not accepting round1 submissions, status=%s", tx.Status), tss.KindWrongPhase, "submit_round1", 1, transactionID, guardianID))
	}

	var completedRound, opened bool
	retryErr := c.retryAtomic(ctx, "submit_round1", transactionID, tx.Status, func(working *model.Transaction) error {
		opened = working.Status == model.StatusPending
		done, err := statemachine.ApplyRound1Submission(working, guardianID, entry, c.now())
		completedRound = done
		return err
	})
	if retryErr != nil {
		return errAck(translateRepoErr(retryErr, "submit_round1", 1, transactionID, guardianID))
	}

	if opened {
		metrics.RoundTransitions.WithLabelValues(string(model.StatusSigningRound1)).Inc()
	}
	if !completedRound {
		return Ack{OK: true}
	}

	// Round 1 just closed: run Round 2 aggregation in the same logical
	// transaction, guarded by the status the completing write just set.
	var round2 *model.Round2Aggregate
	var vaultID string
	var commitErr error
	aggErr := c.retryAtomic(ctx, "commit_round2", transactionID, model.StatusSigningRound1, func(working *model.Transaction) error {
		// CommitRound2 marks working as failed when aggregation fails; the
		// mutator returns nil so that failed status is written, not discarded.
		commitErr = statemachine.CommitRound2(working, c.now())
		round2 = working.Round2
		vaultID = working.VaultID
		return nil
	})
	if aggErr == nil {
		aggErr = commitErr
	}
	if aggErr != nil {
		if tssErr, ok := aggErr.(*tss.Error); ok && tssErr.Kind() == tss.KindAggregationFailure {
			metrics.AggregationFailures.WithLabelValues("2").Inc()
			metrics.RoundTransitions.WithLabelValues(string(model.StatusFailed)).Inc()
			c.broadcast.Broadcast(vaultID, "signing:cancelled", map[string]string{
				"transactionId": transactionID,
				"reason":        "aggregation_failure",
			})
		}
		return errAck(translateRepoErr(aggErr, "submit_round1", 2, transactionID, guardianID))
	}

	metrics.RoundTransitions.WithLabelValues(string(model.StatusSigningRound3)).Inc()
	c.broadcast.Broadcast(vaultID, "signing:round2_ready", map[string]interface{}{
		"transactionId": transactionID,
		"r":             round2.RHex,
		"kTotal":        round2.KTotalHex,
	})
	return Ack{OK: true}
}

// GetRound2Data returns the aggregated r/k_total once Round 1 has closed.
func (c *Coordinator) GetRound2Data(ctx context.Context, transactionID, guardianID string) Ack {
	tx, err := c.repo.Get(ctx, transactionID)
	if err != nil {
		return errAck(translateRepoErr(err, "get_round2_data", 2, transactionID, guardianID))
	}
	if tx.Status == model.StatusPending || tx.Status == model.StatusSigningRound1 {
		return errAck(tss.NewError(errf("round2 data not ready, status=%s", tx.Status), tss.KindWrongPhase, "get_round2_data", 2, transactionID, guardianID))
	}
	if !tx.IsParticipant(guardianID) {
		return errAck(tss.NewError(errf("guardian %s is not participating", guardianID), tss.KindNotParticipating, "get_round2_data", 2, transactionID, guardianID))
	}
	if tx.Round2 == nil {
		return errAck(tss.NewError(errf("round2 aggregate missing"), tss.KindAggregationFailure, "get_round2_data", 2, transactionID, guardianID))
	}
	return Ack{OK: true, Data: map[string]interface{}{
		"kTotal":    tx.Round2.KTotalHex,
		"r":         tx.Round2.RHex,
		"numParties": len(tx.ParticipatingGuardians),
	}}
}

// SubmitRound3 is the Round 3 analogue of SubmitRound1: on completion, Round
// 4 runs inline, writes final_signature, and broadcasts signing:complete.
func (c *Coordinator) SubmitRound3(ctx context.Context, transactionID, guardianID, signatureShareHex string) Ack {
	if _, err := crypto.ScalarFromHex(signatureShareHex); err != nil {
		return errAck(tss.WrapError(err, tss.KindInvalidPayload, "submit_round3", 3, transactionID, guardianID))
	}
	entry := model.Round3Entry{SignatureShareHex: signatureShareHex}

	tx, err := c.repo.Get(ctx, transactionID)
	if err != nil {
		return errAck(translateRepoErr(err, "submit_round3", 3, transactionID, guardianID))
	}
	// Same precedence as SubmitRound1: a guardian outside the frozen
	// participant set is NotParticipating even if the transaction has also
	// moved past round3, and this pre-check avoids handing retryAtomic a
	// hardcoded expected status that would spuriously conflict (and count
	// against RepositoryConflicts) against the transaction's real status.
	if tx.Status != model.StatusSigningRound3 && !tx.IsParticipant(guardianID) {
		return errAck(tss.NewError(errf("guardian %s not in frozen participant set", guardianID), tss.KindNotParticipating, "submit_round3", 3, transactionID, guardianID))
	}
	if tx.Status != model.StatusSigningRound3 {
		return errAck(tss.NewError(errf("round3 submission while status is %s", tx.Status), tss.KindWrongPhase, "submit_round3", 3, transactionID, guardianID))
	}

	var completedRound bool
	retryErr := c.retryAtomic(ctx, "submit_round3", transactionID, tx.Status, func(working *model.Transaction) error {
		done, err := statemachine.ApplyRound3Submission(working, guardianID, entry)
		completedRound = done
		return err
	})
	if retryErr != nil {
		return errAck(translateRepoErr(retryErr, "submit_round3", 3, transactionID, guardianID))
	}

	if !completedRound {
		return Ack{OK: true}
	}

	var final *model.FinalSignature
	var vaultID string
	var commitErr error
	aggErr := c.retryAtomic(ctx, "commit_round4", transactionID, model.StatusSigningRound3, func(working *model.Transaction) error {
		// As in SubmitRound1: return nil so CommitRound4's failed status is written.
		commitErr = statemachine.CommitRound4(working, c.now())
		final = working.Final
		vaultID = working.VaultID
		return nil
	})
	if aggErr == nil {
		aggErr = commitErr
	}
	if aggErr != nil {
		if tssErr, ok := aggErr.(*tss.Error); ok && tssErr.Kind() == tss.KindAggregationFailure {
			metrics.AggregationFailures.WithLabelValues("4").Inc()
			metrics.RoundTransitions.WithLabelValues(string(model.StatusFailed)).Inc()
			c.broadcast.Broadcast(vaultID, "signing:cancelled", map[string]string{
				"transactionId": transactionID,
				"reason":        "aggregation_failure",
			})
		}
		return errAck(translateRepoErr(aggErr, "submit_round3", 4, transactionID, guardianID))
	}

	metrics.RoundTransitions.WithLabelValues(string(model.StatusCompleted)).Inc()
	c.broadcast.Broadcast(vaultID, "signing:complete", map[string]interface{}{
		"transactionId": transactionID,
		"r":             final.RHex,
		"s":             final.SHex,
	})
	return Ack{OK: true}
}

// GetFinalSignature returns {r, s} once the ceremony has completed.
func (c *Coordinator) GetFinalSignature(ctx context.Context, transactionID, guardianID string) Ack {
	tx, err := c.repo.Get(ctx, transactionID)
	if err != nil {
		return errAck(translateRepoErr(err, "get_final_signature", 4, transactionID, guardianID))
	}
	if tx.Status != model.StatusCompleted || tx.Final == nil {
		return errAck(tss.NewError(errf("transaction not completed, status=%s", tx.Status), tss.KindWrongPhase, "get_final_signature", 4, transactionID, guardianID))
	}
	return Ack{OK: true, Data: map[string]string{"r": tx.Final.RHex, "s": tx.Final.SHex}}
}

// Cancel transitions transactionID to cancelled from any non-terminal state.
func (c *Coordinator) Cancel(ctx context.Context, transactionID, reason string) Ack {
	tx, err := c.repo.Get(ctx, transactionID)
	if err != nil {
		return errAck(translateRepoErr(err, "cancel", 0, transactionID, ""))
	}
	retryErr := c.retryAtomic(ctx, "cancel", transactionID, tx.Status, func(working *model.Transaction) error {
		return statemachine.Cancel(working, reason)
	})
	if retryErr != nil {
		return errAck(translateRepoErr(retryErr, "cancel", 0, transactionID, ""))
	}
	metrics.RoundTransitions.WithLabelValues(string(model.StatusCancelled)).Inc()
	c.broadcast.Broadcast(tx.VaultID, "signing:cancelled", map[string]string{
		"transactionId": transactionID,
		"reason":        reason,
	})
	return Ack{OK: true}
}

// retryAtomic retries an AtomicUpdate a bounded number of times when it loses
// the compare-and-set race, per the error handling design's RepositoryConflict
// local-recovery policy. expectedStatus is re-read from the repository between
// attempts since the caller's view may be stale.
func (c *Coordinator) retryAtomic(ctx context.Context, task, transactionID string, expectedStatus model.Status, mutator repository.Mutator) error {
	status := expectedStatus
	for attempt := 0; attempt < repositoryConflictRetries; attempt++ {
		_, err := c.repo.AtomicUpdate(ctx, transactionID, status, mutator)
		if err == nil {
			return nil
		}
		if err != repository.ErrStatusConflict {
			return err
		}
		metrics.RepositoryConflicts.WithLabelValues(task).Inc()
		tx, getErr := c.repo.Get(ctx, transactionID)
		if getErr != nil {
			return getErr
		}
		status = tx.Status
	}
	return tss.NewError(errf("exhausted %d compare-and-set retries", repositoryConflictRetries), tss.KindRepositoryConflict, "retry_atomic", 0, transactionID, "")
}

// checkGuardianMembership validates that guardianID belongs to vaultID,
// satisfying the submit_round1 precondition "guardian belongs to vault"
// before any repository mutation is attempted.
func (c *Coordinator) checkGuardianMembership(ctx context.Context, vaultID, guardianID string) error {
	guardian, err := c.vaultRepo.GetGuardian(ctx, guardianID)
	if err != nil {
		return err
	}
	if guardian.VaultID != vaultID {
		return errf("guardian %s does not belong to vault %s", guardianID, vaultID)
	}
	return nil
}

func errAck(err error) Ack {
	return Ack{OK: false, Error: err.Error()}
}

func translateRepoErr(err error, task string, round int, transactionID, guardianID string) error {
	switch err {
	case repository.ErrNotFound:
		return tss.WrapError(err, tss.KindNotFound, task, round, transactionID, guardianID)
	case repository.ErrPayloadConflict:
		return tss.WrapError(err, tss.KindDuplicateConflict, task, round, transactionID, guardianID)
	case repository.ErrStatusConflict:
		return tss.WrapError(err, tss.KindRepositoryConflict, task, round, transactionID, guardianID)
	}
	if _, ok := err.(*tss.Error); ok {
		return err
	}
	return tss.WrapError(err, tss.KindTransportError, task, round, transactionID, guardianID)
}
