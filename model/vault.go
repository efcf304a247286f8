// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package model

// Vault is a referenced, not owned, entity: a logical (threshold, total)
// group of guardians and the master public key their shares jointly control.
// The coordinator never derives or stores this key's private half.
type Vault struct {
	VaultID         string   `bson:"_id" json:"vaultId"`
	Threshold       int      `bson:"threshold" json:"threshold"`
	TotalGuardians  int      `bson:"total_guardians" json:"totalGuardians"`
	GuardianIDs     []string `bson:"guardian_ids" json:"guardianIds"`
	MasterPublicKey string   `bson:"master_public_key" json:"masterPublicKey"`
}

// HasGuardian reports whether guardianID belongs to this vault.
func (v *Vault) HasGuardian(guardianID string) bool {
	for _, g := range v.GuardianIDs {
		if g == guardianID {
			return true
		}
	}
	return false
}

// GuardianStatus is the connectivity/custody status of a Guardian record.
type GuardianStatus string

const (
	GuardianStatusActive   GuardianStatus = "active"
	GuardianStatusRevoked  GuardianStatus = "revoked"
	GuardianStatusPending  GuardianStatus = "pending"
)

// Guardian is a referenced entity: one party holding a Shamir share of a
// vault's private key. The coordinator never reads ShareID's backing secret;
// it only uses the identity to authorize round submissions.
type Guardian struct {
	GuardianID string         `bson:"_id" json:"guardianId"`
	VaultID    string         `bson:"vault_id" json:"vaultId"`
	Status     GuardianStatus `bson:"status" json:"status"`
	ShareID    string         `bson:"share_id" json:"shareId"`
}
