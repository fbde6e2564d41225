// Package v1 defines the Ripple Realtime Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Inbound type constants (client -> server, wire-stable).
const (
	// TypeTypingStart signals the sender started typing in a room.
	TypeTypingStart = "typing_start"
	// TypeTypingStop signals the sender stopped typing in a room.
	TypeTypingStop = "typing_stop"
	// TypeReadReceipt reports the sender has read a room up to a sequence number.
	TypeReadReceipt = "read_receipt"

	// Call signaling kinds. Payloads are relayed opaquely (encrypted SDP/ICE blobs).
	TypeCallOffer  = "call_offer"
	TypeCallAnswer = "call_answer"
	TypeCallICE    = "call_ice"
	TypeCallEnd    = "call_end"

	// TypeJoinRoom primes the server-side membership view for a room.
	TypeJoinRoom = "join_room"
	// TypePing is an application-level liveness probe answered with TypePong.
	TypePing = "ping"
)

// Outbound type constants (server -> client, wire-stable).
const (
	// TypeHelloAck confirms a session handshake and carries the session id.
	TypeHelloAck = "hello_ack"
	// TypePong answers TypePing.
	TypePong = "pong"

	// Durable-ish room events retained for the pull transport's since cursor.
	TypeMessageNew     = "message_new"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"

	// TypeReactionUpdate reports a reaction set change on a message.
	TypeReactionUpdate = "reaction_update"
	// TypeMessageSeen reports a per-message seen marker.
	TypeMessageSeen = "message_seen"

	// TypePresenceUpdate reports an online/offline transition.
	TypePresenceUpdate = "presence_update"

	// TypeError is a generic error envelope.
	TypeError = "error"
)

// Envelope is the canonical wire wrapper for both transports.
// Seq is present only on retained room events; ephemeral kinds omit it.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var inboundTypes = map[string]struct{}{
	TypeTypingStart: {},
	TypeTypingStop:  {},
	TypeReadReceipt: {},
	TypeCallOffer:   {},
	TypeCallAnswer:  {},
	TypeCallICE:     {},
	TypeCallEnd:     {},
	TypeJoinRoom:    {},
	TypePing:        {},
}

// roomScoped lists inbound kinds that must carry a room id.
var roomScoped = map[string]struct{}{
	TypeTypingStart: {},
	TypeTypingStop:  {},
	TypeReadReceipt: {},
	TypeJoinRoom:    {},
}

// RoomScoped reports whether an inbound kind must name a room.
func RoomScoped(typ string) bool {
	_, ok := roomScoped[typ]
	return ok
}

// MembershipChecked reports whether an inbound kind requires a membership
// check before it is routed. Ping and join_room are exempt: ping carries no
// room and join_room performs its own check as part of priming.
func MembershipChecked(typ string) bool {
	switch typ {
	case TypePing, TypeJoinRoom:
		return false
	default:
		return true
	}
}

// ValidateInbound performs strict structural validation for a client envelope.
func (e Envelope) ValidateInbound() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	typ := strings.TrimSpace(e.Type)
	if typ == "" {
		return errors.New("missing field: type")
	}
	if _, ok := inboundTypes[typ]; !ok {
		return fmt.Errorf("unknown type: %q", typ)
	}
	if RoomScoped(typ) && strings.TrimSpace(e.RoomID) == "" {
		return fmt.Errorf("missing room_id for type %q", typ)
	}
	return nil
}

// ---- Payloads ----

// HelloAckPayload carries the session id plus the initial presence snapshot.
type HelloAckPayload struct {
	SessionID   string   `json:"session_id"`
	OnlineUsers []string `json:"online_users,omitempty"`
}

// TypingPayload identifies the typist for typing_start/typing_stop.
type TypingPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// ReadReceiptPayload marks a room as read up to a sequence number.
type ReadReceiptPayload struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	UpToSeq int64  `json:"up_to_seq"`
}

// CallSignalPayload addresses a call signal to a single user.
// Signal is opaque to the server (typically an encrypted SDP or ICE blob).
type CallSignalPayload struct {
	To     string          `json:"to"`
	From   string          `json:"from,omitempty"`
	RoomID string          `json:"room_id,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// JoinRoomPayload requests a membership-view refresh for a room.
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

// PresencePayload reports an online/offline transition for a user.
type PresencePayload struct {
	UserID       string    `json:"user_id"`
	State        string    `json:"state"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// PollResponse is the pull-transport response envelope.
type PollResponse struct {
	Events   []Envelope `json:"events"`
	ServerTS time.Time  `json:"server_ts"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
