// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package coordinator_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard/mpc-coordinator/coordinator"
	"github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/model"
	"github.com/vaultguard/mpc-coordinator/repository"
	"github.com/vaultguard/mpc-coordinator/tss"
)

// recordingBroadcaster captures every broadcast for assertion; production
// code uses *registry.Registry, which satisfies the same Broadcaster interface.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	vaultID string
	event   string
	payload interface{}
}

func (b *recordingBroadcaster) Broadcast(vaultID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{vaultID, event, payload})
}

func (b *recordingBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.event == event {
			n++
		}
	}
	return n
}

type harness struct {
	repo   *repository.MemoryRepository
	bcast  *recordingBroadcaster
	coord  *coordinator.Coordinator
	vault  *model.Vault
	txID   string
	shares map[string]*big.Int // guardian -> private scalar x_i, test-only
}

func newHarness(t *testing.T, numGuardians, threshold int) *harness {
	t.Helper()
	repo := repository.NewMemoryRepository()
	bcast := &recordingBroadcaster{}
	coord := coordinator.New(repo, repo, bcast, time.Minute)

	guardianIDs := make([]string, numGuardians)
	for i := range guardianIDs {
		guardianIDs[i] = string(rune('1'+i)) + "-guardian"
	}
	vault := &model.Vault{VaultID: "vault-1", Threshold: threshold, TotalGuardians: numGuardians, GuardianIDs: guardianIDs}
	repo.PutVault(vault)
	for _, g := range guardianIDs {
		repo.PutGuardian(&model.Guardian{GuardianID: g, VaultID: vault.VaultID, Status: model.GuardianStatusActive})
	}

	txID := "tx-1"
	tx := &model.Transaction{
		TransactionID:      txID,
		VaultID:             vault.VaultID,
		SignaturesRequired:  threshold,
		MessageHashHex:      "9c12000000000000000000000000000000000000000000000000000000aa",
		Status:              model.StatusPending,
		CreatedAt:           time.Now(),
		Deadline:            time.Now().Add(time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), tx))

	return &harness{repo: repo, bcast: bcast, coord: coord, vault: vault, txID: txID, shares: map[string]*big.Int{}}
}

// submitRound1 fabricates a nonce share for guardianID and submits it.
func (h *harness) submitRound1(t *testing.T, guardianID string, k int64) coordinator.Ack {
	t.Helper()
	scalar := new(big.Int).Mod(big.NewInt(k), tss.N())
	point := crypto.ScalarBaseMult(tss.EC(), scalar)
	return h.coord.SubmitRound1(context.Background(), h.txID, guardianID, crypto.ScalarToHex(scalar), crypto.PointToHex(point))
}

func TestScenarioAHappyPath(t *testing.T) {
	h := newHarness(t, 3, 2)

	ack := h.submitRound1(t, "1-guardian", 11)
	assert.True(t, ack.OK)

	tx, err := h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigningRound1, tx.Status)

	ack = h.submitRound1(t, "2-guardian", 22)
	assert.True(t, ack.OK)

	tx, err = h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigningRound3, tx.Status)
	assert.NotNil(t, tx.Round2)
	assert.Equal(t, 1, h.bcast.count("signing:round2_ready"))

	// Round 3: guardians submit signature shares s_i = k^{-1} * (z + r * x_i) mod n,
	// using a fixed private key split as x1+x2 for this t=2 test vault.
	n := tss.N()
	z, ok := new(big.Int).SetString(tx.MessageHashHex, 16)
	require.True(t, ok)
	r, err := crypto.ScalarFromHex(tx.Round2.RHex)
	require.NoError(t, err)
	kTotal, err := crypto.ScalarFromHex(tx.Round2.KTotalHex)
	require.NoError(t, err)
	kInv := new(big.Int).ModInverse(kTotal, n)
	require.NotNil(t, kInv)

	x1 := big.NewInt(555)
	x2 := big.NewInt(777)
	xTotal := new(big.Int).Add(x1, x2)
	xTotal.Mod(xTotal, n)
	pub := crypto.ScalarBaseMult(tss.EC(), xTotal)

	s1 := shareFor(n, kInv, z, r, x1)
	s2 := shareFor(n, kInv, z, r, x2)

	ack = h.coord.SubmitRound3(context.Background(), h.txID, "1-guardian", crypto.ScalarToHex(s1))
	assert.True(t, ack.OK)
	ack = h.coord.SubmitRound3(context.Background(), h.txID, "2-guardian", crypto.ScalarToHex(s2))
	assert.True(t, ack.OK)

	tx, err = h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, tx.Status)
	require.NotNil(t, tx.Final)
	assert.Equal(t, 1, h.bcast.count("signing:complete"))

	half := model.HalfN(n)
	s, err := crypto.ScalarFromHex(tx.Final.SHex)
	require.NoError(t, err)
	assert.True(t, s.Cmp(half) <= 0)

	assert.True(t, ecdsa.Verify(pub.ToECDSAPubKey(), z.Bytes(), r, s))
}

func shareFor(n, kInv, z, r, x *big.Int) *big.Int {
	t1 := new(big.Int).Mul(r, x)
	t1.Add(t1, z)
	t1.Mod(t1, n)
	t1.Mul(t1, kInv)
	t1.Mod(t1, n)
	return t1
}

func TestScenarioBStraggler(t *testing.T) {
	h := newHarness(t, 3, 2)
	h.submitRound1(t, "1-guardian", 11)
	h.submitRound1(t, "2-guardian", 22)

	ack := h.submitRound1(t, "3-guardian", 33)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "not_participating")

	tx, err := h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigningRound3, tx.Status)
}

func TestScenarioCDuplicate(t *testing.T) {
	h := newHarness(t, 3, 2)
	ack := h.submitRound1(t, "1-guardian", 11)
	assert.True(t, ack.OK)

	ack = h.submitRound1(t, "1-guardian", 11)
	assert.True(t, ack.OK, "identical resubmission is idempotent")

	ack = h.submitRound1(t, "1-guardian", 999)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "duplicate_conflict")
}

func TestScenarioDRestartDurability(t *testing.T) {
	// The in-memory repository stands in for a restart: a fresh Coordinator
	// is constructed against the same repository handle, simulating process
	// restart while the durable store survives.
	h := newHarness(t, 3, 2)
	h.submitRound1(t, "1-guardian", 11)

	freshCoord := coordinator.New(h.repo, h.repo, h.bcast, time.Minute)
	ack := freshCoord.SubmitRound1(context.Background(), h.txID, "2-guardian", crypto.ScalarToHex(new(big.Int).Mod(big.NewInt(22), tss.N())), crypto.PointToHex(crypto.ScalarBaseMult(tss.EC(), new(big.Int).Mod(big.NewInt(22), tss.N()))))
	assert.True(t, ack.OK)

	tx, err := h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigningRound3, tx.Status)
}

func TestScenarioESweeperExpiresOverdueTransaction(t *testing.T) {
	h := newHarness(t, 3, 2)
	h.submitRound1(t, "1-guardian", 11)

	now := time.Now().Add(time.Hour)
	sweepCoord := coordinator.New(h.repo, h.repo, h.bcast, time.Minute, coordinator.WithClock(func() time.Time { return now }))
	sweepCoord.StartSweeper(context.Background(), 10*time.Millisecond)
	defer sweepCoord.Stop()

	require.Eventually(t, func() bool {
		tx, err := h.repo.Get(context.Background(), h.txID)
		require.NoError(t, err)
		return tx.Status == model.StatusFailed
	}, time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, h.bcast.count("signing:cancelled"), 1)
}

func TestCancelFromNonTerminalState(t *testing.T) {
	h := newHarness(t, 3, 2)
	h.submitRound1(t, "1-guardian", 11)

	ack := h.coord.Cancel(context.Background(), h.txID, "operator_abort")
	assert.True(t, ack.OK)

	tx, err := h.repo.Get(context.Background(), h.txID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, tx.Status)
	assert.Equal(t, 1, h.bcast.count("signing:cancelled"))
}
