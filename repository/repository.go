// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package repository implements the Transaction Repository: a durable
// per-transaction document store with atomic compare-and-set on status and
// round maps. It is the serialization point for round progression — every
// state transition is expressed as an atomic update conditioned on the
// previous status, so concurrent submissions race safely at this boundary
// and no in-process lock is needed on Transaction data.
package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/vaultguard/mpc-coordinator/model"
)

// ErrNotFound is returned by Get/AtomicUpdate when a transaction does not exist.
var ErrNotFound = errors.New("repository: transaction not found")

// ErrDuplicate is returned by Create when a transaction_id already exists.
var ErrDuplicate = errors.New("repository: transaction already exists")

// ErrStatusConflict is returned by AtomicUpdate when the stored status no
// longer matches expectedStatus, i.e. the compare-and-set lost a race.
var ErrStatusConflict = errors.New("repository: status changed concurrently")

// ErrPayloadConflict denotes a guardian resubmitting to the same round with a
// payload that differs from the one already committed for that (round,
// guardian) slot. No Repository method in this package returns it; the state
// machine reports such resubmissions as tss.KindDuplicateConflict errors.
var ErrPayloadConflict = errors.New("repository: conflicting payload for guardian/round")

// Mutator transforms a local copy of a Transaction in place. It must not
// retain the pointer past its call; AtomicUpdate discards it after either
// committing or discovering the conditional write lost.
type Mutator func(tx *model.Transaction) error

// Repository is the durable backing store the Coordinator and HTTP surface
// share. Implementations: mongo.go (production, backed by mongo-driver) and
// memory.go (in-process, used by the coordinator's tests).
type Repository interface {
	Get(ctx context.Context, transactionID string) (*model.Transaction, error)
	Create(ctx context.Context, tx *model.Transaction) error

	// AtomicUpdate reads the document, verifies status == expectedStatus,
	// applies mutator to a local copy, and writes back conditionally on the
	// status being unchanged. Returns ErrStatusConflict if the condition no
	// longer holds, ErrNotFound if the document vanished.
	AtomicUpdate(ctx context.Context, transactionID string, expectedStatus model.Status, mutator Mutator) (*model.Transaction, error)

	// ListPending returns all transactions for vaultID whose status is not
	// terminal, backing the transactions:get_pending read-through query.
	ListPending(ctx context.Context, vaultID string) ([]*model.Transaction, error)

	// ListExpired returns all non-terminal transactions whose deadline has
	// elapsed as of now, for the background timeout sweeper.
	ListExpired(ctx context.Context, now time.Time) ([]*model.Transaction, error)

	// ListAll returns every transaction for vaultID regardless of status,
	// backing the administrative surface's transaction listing.
	ListAll(ctx context.Context, vaultID string) ([]*model.Transaction, error)

	// Delete removes a transaction record outright. The administrative
	// surface's only caller of this; the coordinator never deletes.
	Delete(ctx context.Context, transactionID string) error
}

// VaultRepository is the read surface the coordinator needs for
// guardian/vault membership checks, extended with the write methods the
// administrative HTTP surface uses against the same backing collection.
type VaultRepository interface {
	GetVault(ctx context.Context, vaultID string) (*model.Vault, error)
	GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error)

	CreateVault(ctx context.Context, v *model.Vault) error
	ListVaults(ctx context.Context) ([]*model.Vault, error)
	UpdateVault(ctx context.Context, v *model.Vault) error
	DeleteVault(ctx context.Context, vaultID string) error

	CreateGuardian(ctx context.Context, g *model.Guardian) error
	ListGuardians(ctx context.Context, vaultID string) ([]*model.Guardian, error)
	UpdateGuardian(ctx context.Context, g *model.Guardian) error
	DeleteGuardian(ctx context.Context, guardianID string) error
}
