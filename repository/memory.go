// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vaultguard/mpc-coordinator/model"
)

// MemoryRepository is an in-process Repository used by tests and by any
// deployment that accepts losing ceremony state across a restart. It honors
// the same compare-and-set contract as the MongoDB-backed implementation so
// the Coordinator and state machine are exercised identically either way.
type MemoryRepository struct {
	mu   sync.Mutex
	txns map[string]*model.Transaction

	vaults    map[string]*model.Vault
	guardians map[string]*model.Guardian
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		txns:      make(map[string]*model.Transaction),
		vaults:    make(map[string]*model.Vault),
		guardians: make(map[string]*model.Guardian),
	}
}

func (r *MemoryRepository) Get(_ context.Context, transactionID string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txns[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[tx.TransactionID]; ok {
		return ErrDuplicate
	}
	r.txns[tx.TransactionID] = tx.Clone()
	return nil
}

func (r *MemoryRepository) AtomicUpdate(_ context.Context, transactionID string, expectedStatus model.Status, mutator Mutator) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.txns[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.Status != expectedStatus {
		return nil, ErrStatusConflict
	}
	working := stored.Clone()
	if err := mutator(working); err != nil {
		return nil, err
	}
	r.txns[transactionID] = working
	return working.Clone(), nil
}

func (r *MemoryRepository) ListPending(_ context.Context, vaultID string) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range r.txns {
		if tx.VaultID == vaultID && !tx.Status.IsTerminal() {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListExpired(_ context.Context, now time.Time) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range r.txns {
		if !tx.Status.IsTerminal() && now.After(tx.Deadline) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetVault(_ context.Context, vaultID string) (*model.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[vaultID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) GetGuardian(_ context.Context, guardianID string) (*model.Guardian, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guardians[guardianID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *MemoryRepository) ListAll(_ context.Context, vaultID string) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range r.txns {
		if tx.VaultID == vaultID {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[transactionID]; !ok {
		return ErrNotFound
	}
	delete(r.txns, transactionID)
	return nil
}

func (r *MemoryRepository) CreateVault(_ context.Context, v *model.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[v.VaultID]; ok {
		return ErrDuplicate
	}
	cp := *v
	r.vaults[v.VaultID] = &cp
	return nil
}

func (r *MemoryRepository) ListVaults(_ context.Context) ([]*model.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Vault, 0, len(r.vaults))
	for _, v := range r.vaults {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) UpdateVault(_ context.Context, v *model.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[v.VaultID]; !ok {
		return ErrNotFound
	}
	cp := *v
	r.vaults[v.VaultID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteVault(_ context.Context, vaultID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[vaultID]; !ok {
		return ErrNotFound
	}
	delete(r.vaults, vaultID)
	return nil
}

func (r *MemoryRepository) CreateGuardian(_ context.Context, g *model.Guardian) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guardians[g.GuardianID]; ok {
		return ErrDuplicate
	}
	cp := *g
	r.guardians[g.GuardianID] = &cp
	return nil
}

func (r *MemoryRepository) ListGuardians(_ context.Context, vaultID string) ([]*model.Guardian, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Guardian
	for _, g := range r.guardians {
		if g.VaultID == vaultID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpdateGuardian(_ context.Context, g *model.Guardian) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guardians[g.GuardianID]; !ok {
		return ErrNotFound
	}
	cp := *g
	r.guardians[g.GuardianID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteGuardian(_ context.Context, guardianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guardians[guardianID]; !ok {
		return ErrNotFound
	}
	delete(r.guardians, guardianID)
	return nil
}

// PutVault and PutGuardian are test/seed helpers that bypass the duplicate
// check CreateVault/CreateGuardian apply, for harnesses that just want fixed
// fixture state in place.
func (r *MemoryRepository) PutVault(v *model.Vault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.vaults[v.VaultID] = &cp
}

func (r *MemoryRepository) PutGuardian(g *model.Guardian) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.guardians[g.GuardianID] = &cp
}
