// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package registry implements the Session Registry: an in-memory index of
// live guardian connections keyed by (vault_id, guardian_id). It knows which
// broadcast group a message belongs to. It is ephemeral process-local state —
// closing a socket removes the entry but never mutates any Transaction.
package registry

import (
	"sync"

	"github.com/vaultguard/mpc-coordinator/common"
	"github.com/vaultguard/mpc-coordinator/metrics"
)

// Session is anything the registry can address: send an event to, and
// identify by its (vaultID, guardianID) pair. The WebSocket adapter's
// connection wrapper implements this.
type Session interface {
	GuardianID() string
	VaultID() string
	Send(event string, payload interface{}) error
	Close() error
}

type slotKey struct {
	vaultID    string
	guardianID string
}

// Registry is shared across all WebSocket connections. A guardian
// reconnecting replaces its prior session rather than running alongside it;
// the single-writer discipline is enforced per (vaultID, guardianID) slot
// by mu, and broadcasts iterate a snapshot taken under the same lock so a
// concurrent attach/detach never corrupts an in-flight broadcast.
type Registry struct {
	mu    sync.Mutex
	slots map[slotKey]Session
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{slots: make(map[slotKey]Session)}
}

// Attach registers session under (vaultID, guardianID), replacing and
// closing any prior session in that slot. It then broadcasts
// guardian:connected to the vault group, the new session included.
func (r *Registry) Attach(session Session) {
	key := slotKey{vaultID: session.VaultID(), guardianID: session.GuardianID()}

	r.mu.Lock()
	prior, hadPrior := r.slots[key]
	if hadPrior && prior != session {
		_ = prior.Close()
	}
	r.slots[key] = session
	r.mu.Unlock()

	if !hadPrior {
		metrics.ConnectedGuardians.Inc()
	}
	common.Logger.Infof("guardian %s attached to vault %s", session.GuardianID(), session.VaultID())
	r.Broadcast(session.VaultID(), "guardian:connected", map[string]string{
		"guardianId": session.GuardianID(),
		"vaultId":    session.VaultID(),
	})
}

// Detach removes session if it is still the slot's current occupant (a
// reconnect may have already replaced it, in which case Detach is a no-op).
func (r *Registry) Detach(session Session) {
	key := slotKey{vaultID: session.VaultID(), guardianID: session.GuardianID()}

	r.mu.Lock()
	current, ok := r.slots[key]
	if ok && current == session {
		delete(r.slots, key)
	}
	r.mu.Unlock()

	if !ok || current != session {
		return
	}
	metrics.ConnectedGuardians.Dec()
	common.Logger.Infof("guardian %s detached from vault %s", session.GuardianID(), session.VaultID())
	r.Broadcast(session.VaultID(), "guardian:disconnected", map[string]string{
		"guardianId": session.GuardianID(),
		"vaultId":    session.VaultID(),
	})
}

// Broadcast is best-effort fire-and-forget: a send failure to one guardian
// does not prevent delivery to the rest of the group, and persistence
// (not broadcast delivery) remains the source of truth for ceremony state.
func (r *Registry) Broadcast(vaultID, event string, payload interface{}) {
	r.mu.Lock()
	targets := make([]Session, 0, len(r.slots))
	for key, session := range r.slots {
		if key.vaultID == vaultID {
			targets = append(targets, session)
		}
	}
	r.mu.Unlock()

	for _, session := range targets {
		if err := session.Send(event, payload); err != nil {
			common.Logger.Warnf("broadcast %s to guardian %s failed: %v", event, session.GuardianID(), err)
		}
	}
}

// Send delivers event to exactly one guardian's current session, if
// connected. It returns false if no session is attached for that slot.
func (r *Registry) Send(vaultID, guardianID, event string, payload interface{}) bool {
	r.mu.Lock()
	session, ok := r.slots[slotKey{vaultID: vaultID, guardianID: guardianID}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := session.Send(event, payload); err != nil {
		common.Logger.Warnf("send %s to guardian %s failed: %v", event, guardianID, err)
		return false
	}
	return true
}

// ConnectedCount reports the number of live sessions across all vaults. The
// metrics gauge is not derived from it; Attach and Detach adjust that directly.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
