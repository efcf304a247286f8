// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package transport implements the Signing Protocol Endpoint: a thin
// WebSocket adapter translating wire events into coordinator calls and
// coordinator outputs into broadcasts/acks. Incoming events are dispatched
// by a tagged-variant event type through a dispatch table, never reflection.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultguard/mpc-coordinator/common"
	"github.com/vaultguard/mpc-coordinator/coordinator"
	"github.com/vaultguard/mpc-coordinator/registry"
	"github.com/vaultguard/mpc-coordinator/repository"
)

// InboundEvent is the tagged-variant wire shape every client->server message
// is decoded into before dispatch; Type selects the handler, Payload is
// re-decoded into the handler's specific struct.
type InboundEvent struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// OutboundEvent is the envelope every server->client message (ack or
// broadcast) is wrapped in.
type OutboundEvent struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type submitRound1Payload struct {
	TransactionID string `json:"transactionId"`
	GuardianID    string `json:"guardianId"`
	NonceShare    string `json:"nonceShare"`
	RPoint        string `json:"rPoint"`
}

type getRound2DataPayload struct {
	TransactionID string `json:"transactionId"`
	GuardianID    string `json:"guardianId"`
}

type submitRound3Payload struct {
	TransactionID string `json:"transactionId"`
	GuardianID    string `json:"guardianId"`
	SignatureShare string `json:"signatureShare"`
}

type getFinalSignaturePayload struct {
	TransactionID string `json:"transactionId"`
	GuardianID    string `json:"guardianId"`
}

type getPendingPayload struct {
	VaultID string `json:"vaultId"`
}

type getTransactionPayload struct {
	TransactionID string `json:"transactionId"`
}

// connectAuth is the {vaultId, guardianId} metadata a client supplies on
// connect, before any event is dispatched.
type connectAuth struct {
	VaultID    string `json:"vaultId"`
	GuardianID string `json:"guardianId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // any origin; the CORS handler wraps only the admin router, not /ws
}

// session wraps one gorilla/websocket connection and implements registry.Session.
type session struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	vaultID    string
	guardianID string
}

func (s *session) VaultID() string    { return s.vaultID }
func (s *session) GuardianID() string { return s.guardianID }

func (s *session) Send(event string, payload interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(OutboundEvent{Type: event, Data: payload})
}

func (s *session) Close() error {
	return s.conn.Close()
}

// Endpoint is the WebSocket handler: it owns the upgrade, the connect
// handshake, and the read loop that dispatches InboundEvents to the
// Coordinator and the read-through repository queries.
type Endpoint struct {
	coord    *coordinator.Coordinator
	registry *registry.Registry
	repo     repository.Repository
	vaults   repository.VaultRepository
}

// New constructs an Endpoint wired to the given Coordinator, Registry, and
// repositories.
func New(coord *coordinator.Coordinator, reg *registry.Registry, repo repository.Repository, vaults repository.VaultRepository) *Endpoint {
	return &Endpoint{coord: coord, registry: reg, repo: repo, vaults: vaults}
}

// ServeHTTP upgrades the connection, performs the connect-time auth
// handshake, attaches the session to the registry, and then runs the read
// loop until the client disconnects or a fatal transport error occurs.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		common.Logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	var auth connectAuth
	if err := conn.ReadJSON(&auth); err != nil {
		common.Logger.Warnf("websocket connect auth read failed: %v", err)
		_ = conn.Close()
		return
	}

	ctx := r.Context()
	guardian, err := e.vaults.GetGuardian(ctx, auth.GuardianID)
	if err != nil || guardian.VaultID != auth.VaultID {
		common.Logger.Warnf("websocket connect auth rejected for guardian %s vault %s", auth.GuardianID, auth.VaultID)
		_ = conn.Close()
		return
	}

	sess := &session{conn: conn, vaultID: auth.VaultID, guardianID: auth.GuardianID}
	e.registry.Attach(sess)
	defer e.registry.Detach(sess)

	e.readLoop(ctx, sess)
}

func (e *Endpoint) readLoop(ctx context.Context, sess *session) {
	for {
		var evt InboundEvent
		if err := sess.conn.ReadJSON(&evt); err != nil {
			return
		}
		ack := e.dispatch(ctx, evt)
		if err := sess.Send(evt.Type+":ack", withRequestID(ack, evt.RequestID)); err != nil {
			return
		}
	}
}

func withRequestID(ack coordinator.Ack, requestID string) map[string]interface{} {
	out := map[string]interface{}{"ok": ack.OK}
	if ack.Error != "" {
		out["error"] = ack.Error
	}
	if ack.Data != nil {
		out["data"] = ack.Data
	}
	if requestID != "" {
		out["requestId"] = requestID
	}
	return out
}

// dispatch is the tagged-variant event table: each case decodes its own
// payload shape and calls exactly one coordinator/repository method.
func (e *Endpoint) dispatch(ctx context.Context, evt InboundEvent) coordinator.Ack {
	switch evt.Type {
	case "signing:submit_round1":
		var p submitRound1Payload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		return e.coord.SubmitRound1(ctx, p.TransactionID, p.GuardianID, p.NonceShare, p.RPoint)

	case "signing:get_round2_data":
		var p getRound2DataPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		return e.coord.GetRound2Data(ctx, p.TransactionID, p.GuardianID)

	case "signing:submit_round3":
		var p submitRound3Payload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		return e.coord.SubmitRound3(ctx, p.TransactionID, p.GuardianID, p.SignatureShare)

	case "signing:get_final_signature":
		var p getFinalSignaturePayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		return e.coord.GetFinalSignature(ctx, p.TransactionID, p.GuardianID)

	case "transactions:get_pending":
		var p getPendingPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		txs, err := e.repo.ListPending(ctx, p.VaultID)
		if err != nil {
			return coordinator.Ack{OK: false, Error: err.Error()}
		}
		return coordinator.Ack{OK: true, Data: txs}

	case "transactions:get":
		var p getTransactionPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return badPayloadAck(err)
		}
		tx, err := e.repo.Get(ctx, p.TransactionID)
		if err != nil {
			return coordinator.Ack{OK: false, Error: err.Error()}
		}
		return coordinator.Ack{OK: true, Data: tx}

	default:
		return coordinator.Ack{OK: false, Error: "unknown event type: " + evt.Type}
	}
}

func badPayloadAck(err error) coordinator.Ack {
	return coordinator.Ack{OK: false, Error: "invalid_payload: " + err.Error()}
}

// pingInterval names a keepalive period. Nothing references it: connections
// run without keepalive pings and without read/write deadlines.
const pingInterval = 30 * time.Second
