// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vaultguard/mpc-coordinator/common"
	"github.com/vaultguard/mpc-coordinator/model"
)

// MongoRepository is the production Repository, one document per
// transaction in the "transactions" collection of the configured database.
// Compare-and-set is implemented as a FindOneAndReplace conditioned on the
// document's status field still matching expectedStatus at write time —
// MongoDB's single-document atomicity is the serialization primitive the
// whole coordinator is built on.
type MongoRepository struct {
	db *mongo.Database
}

// NewMongoRepository wraps an already-connected database handle.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

func (r *MongoRepository) transactions() *mongo.Collection {
	return r.db.Collection("transactions")
}

func (r *MongoRepository) vaults() *mongo.Collection {
	return r.db.Collection("vaults")
}

func (r *MongoRepository) guardians() *mongo.Collection {
	return r.db.Collection("guardians")
}

func (r *MongoRepository) Get(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.transactions().FindOne(ctx, bson.M{"_id": transactionID}).Decode(&tx)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "repository: get transaction")
	}
	return &tx, nil
}

func (r *MongoRepository) Create(ctx context.Context, tx *model.Transaction) error {
	_, err := r.transactions().InsertOne(ctx, tx)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "repository: create transaction")
	}
	return nil
}

// AtomicUpdate implements the read -> mutate copy -> conditional-replace
// cycle described in the component design: the document is only overwritten
// if its status field still equals expectedStatus at replace time, which is
// what makes concurrent round completions race safely without an in-process
// lock.
func (r *MongoRepository) AtomicUpdate(ctx context.Context, transactionID string, expectedStatus model.Status, mutator Mutator) (*model.Transaction, error) {
	var current model.Transaction
	err := r.transactions().FindOne(ctx, bson.M{"_id": transactionID}).Decode(&current)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "repository: atomic_update read")
	}
	if current.Status != expectedStatus {
		return nil, ErrStatusConflict
	}

	working := current.Clone()
	if err := mutator(working); err != nil {
		return nil, err
	}

	filter := bson.M{"_id": transactionID, "status": string(expectedStatus)}
	opts := options.FindOneAndReplace().SetReturnDocument(options.After)
	var replaced model.Transaction
	err = r.transactions().FindOneAndReplace(ctx, filter, working, opts).Decode(&replaced)
	if err == mongo.ErrNoDocuments {
		common.Logger.Warnf("atomic_update lost race on tx %s (expected status %s)", transactionID, expectedStatus)
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "repository: atomic_update replace")
	}
	return &replaced, nil
}

func (r *MongoRepository) ListPending(ctx context.Context, vaultID string) ([]*model.Transaction, error) {
	cur, err := r.transactions().Find(ctx, bson.M{
		"vault_id": vaultID,
		"status":   bson.M{"$nin": []string{string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusCancelled)}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "repository: list pending")
	}
	defer cur.Close(ctx)

	var out []*model.Transaction
	for cur.Next(ctx) {
		var tx model.Transaction
		if err := cur.Decode(&tx); err != nil {
			return nil, errors.Wrap(err, "repository: decode pending")
		}
		out = append(out, &tx)
	}
	return out, cur.Err()
}

func (r *MongoRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	cur, err := r.transactions().Find(ctx, bson.M{
		"status":   bson.M{"$nin": []string{string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusCancelled)}},
		"deadline": bson.M{"$lte": now},
	})
	if err != nil {
		return nil, errors.Wrap(err, "repository: list expired")
	}
	defer cur.Close(ctx)

	var out []*model.Transaction
	for cur.Next(ctx) {
		var tx model.Transaction
		if err := cur.Decode(&tx); err != nil {
			return nil, errors.Wrap(err, "repository: decode expired")
		}
		out = append(out, &tx)
	}
	return out, cur.Err()
}

func (r *MongoRepository) ListAll(ctx context.Context, vaultID string) ([]*model.Transaction, error) {
	cur, err := r.transactions().Find(ctx, bson.M{"vault_id": vaultID})
	if err != nil {
		return nil, errors.Wrap(err, "repository: list all")
	}
	defer cur.Close(ctx)

	var out []*model.Transaction
	for cur.Next(ctx) {
		var tx model.Transaction
		if err := cur.Decode(&tx); err != nil {
			return nil, errors.Wrap(err, "repository: decode transaction")
		}
		out = append(out, &tx)
	}
	return out, cur.Err()
}

func (r *MongoRepository) Delete(ctx context.Context, transactionID string) error {
	res, err := r.transactions().DeleteOne(ctx, bson.M{"_id": transactionID})
	if err != nil {
		return errors.Wrap(err, "repository: delete transaction")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) GetVault(ctx context.Context, vaultID string) (*model.Vault, error) {
	var v model.Vault
	err := r.vaults().FindOne(ctx, bson.M{"_id": vaultID}).Decode(&v)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "repository: get vault")
	}
	return &v, nil
}

func (r *MongoRepository) GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error) {
	var g model.Guardian
	err := r.guardians().FindOne(ctx, bson.M{"_id": guardianID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "repository: get guardian")
	}
	return &g, nil
}

func (r *MongoRepository) CreateVault(ctx context.Context, v *model.Vault) error {
	_, err := r.vaults().InsertOne(ctx, v)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "repository: create vault")
	}
	return nil
}

func (r *MongoRepository) ListVaults(ctx context.Context) ([]*model.Vault, error) {
	cur, err := r.vaults().Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "repository: list vaults")
	}
	defer cur.Close(ctx)

	var out []*model.Vault
	for cur.Next(ctx) {
		var v model.Vault
		if err := cur.Decode(&v); err != nil {
			return nil, errors.Wrap(err, "repository: decode vault")
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

func (r *MongoRepository) UpdateVault(ctx context.Context, v *model.Vault) error {
	res, err := r.vaults().ReplaceOne(ctx, bson.M{"_id": v.VaultID}, v)
	if err != nil {
		return errors.Wrap(err, "repository: update vault")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteVault(ctx context.Context, vaultID string) error {
	res, err := r.vaults().DeleteOne(ctx, bson.M{"_id": vaultID})
	if err != nil {
		return errors.Wrap(err, "repository: delete vault")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) CreateGuardian(ctx context.Context, g *model.Guardian) error {
	_, err := r.guardians().InsertOne(ctx, g)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "repository: create guardian")
	}
	return nil
}

func (r *MongoRepository) ListGuardians(ctx context.Context, vaultID string) ([]*model.Guardian, error) {
	cur, err := r.guardians().Find(ctx, bson.M{"vault_id": vaultID})
	if err != nil {
		return nil, errors.Wrap(err, "repository: list guardians")
	}
	defer cur.Close(ctx)

	var out []*model.Guardian
	for cur.Next(ctx) {
		var g model.Guardian
		if err := cur.Decode(&g); err != nil {
			return nil, errors.Wrap(err, "repository: decode guardian")
		}
		out = append(out, &g)
	}
	return out, cur.Err()
}

func (r *MongoRepository) UpdateGuardian(ctx context.Context, g *model.Guardian) error {
	res, err := r.guardians().ReplaceOne(ctx, bson.M{"_id": g.GuardianID}, g)
	if err != nil {
		return errors.Wrap(err, "repository: update guardian")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteGuardian(ctx context.Context, guardianID string) error {
	res, err := r.guardians().DeleteOne(ctx, bson.M{"_id": guardianID})
	if err != nil {
		return errors.Wrap(err, "repository: delete guardian")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Connect dials MongoDB and pings it, following the fail-fast-at-startup
// convention: the process exits nonzero only on configuration failure.
func Connect(ctx context.Context, mongoURL, dbName string) (*mongo.Database, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, nil, errors.Wrap(err, "repository: connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, errors.Wrap(err, "repository: ping")
	}
	return client.Database(dbName), client.Disconnect, nil
}
