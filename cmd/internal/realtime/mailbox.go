package realtime

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// Signal is a short-TTL, best-effort notification held for a recipient that
// currently has no push session. A client that never drains within the TTL
// window permanently loses the signal; that is the contract.
type Signal struct {
	Recipient string
	Kind      string
	RoomID    string
	Sender    string
	Payload   json.RawMessage

	DepositedAt time.Time
	ExpiresAt   time.Time
}

type signalKey struct {
	kind   string
	roomID string
	sender string
}

// coalesceKey maps a signal to its replacement slot. The two typing kinds
// share a slot per (room, sender): a typing_stop must replace a pending
// typing_start, leaving only the final state for the drainer.
func coalesceKey(kind, roomID, sender string) (signalKey, bool) {
	switch kind {
	case v1.TypeTypingStart, v1.TypeTypingStop:
		return signalKey{kind: "typing", roomID: roomID, sender: sender}, true
	case v1.TypeCallOffer, v1.TypeCallAnswer, v1.TypeCallICE, v1.TypeCallEnd:
		return signalKey{kind: kind, roomID: roomID, sender: sender}, true
	default:
		// read_receipt, reaction_update, message_seen: each is informationally
		// distinct, so they accumulate as a bounded list instead.
		return signalKey{}, false
	}
}

// SignalTTL returns the default TTL for a signal kind.
func SignalTTL(kind string) time.Duration {
	switch kind {
	case v1.TypeTypingStart, v1.TypeTypingStop:
		return typingSignalTTL
	case v1.TypeCallOffer, v1.TypeCallAnswer, v1.TypeCallICE, v1.TypeCallEnd:
		return callSignalTTL
	default:
		return receiptSignalTTL
	}
}

// Mailbox is the per-recipient ephemeral signal store consumed by the pull
// transport. Deposit and Drain are atomic per recipient: a signal deposited
// concurrently with a drain lands in exactly one of the two outcomes.
type Mailbox struct {
	metrics *Metrics
	clock   func() time.Time

	mu    sync.Mutex
	boxes map[string]*userBox
}

type userBox struct {
	mu        sync.Mutex
	coalesced map[signalKey]Signal
	queue     []Signal
}

// NewMailbox constructs a Mailbox. Metrics may be nil.
func NewMailbox(metrics *Metrics) *Mailbox {
	return &Mailbox{
		metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
		boxes:   make(map[string]*userBox),
	}
}

func (m *Mailbox) box(recipient string) *userBox {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[recipient]
	if !ok {
		b = &userBox{coalesced: make(map[signalKey]Signal)}
		m.boxes[recipient] = b
	}
	return b
}

// Deposit stores a signal for a recipient. Coalescing kinds replace any
// pending signal in the same slot; list kinds append, dropping the oldest
// past the cap. Deposit never blocks the caller.
func (m *Mailbox) Deposit(recipient, kind, roomID, sender string, payload json.RawMessage, ttl time.Duration) {
	if recipient == "" || kind == "" {
		return
	}
	if ttl <= 0 {
		ttl = SignalTTL(kind)
	}
	now := m.clock()
	sig := Signal{
		Recipient:   recipient,
		Kind:        kind,
		RoomID:      roomID,
		Sender:      sender,
		Payload:     payload,
		DepositedAt: now,
		ExpiresAt:   now.Add(ttl),
	}

	b := m.box(recipient)
	b.mu.Lock()
	if key, ok := coalesceKey(kind, roomID, sender); ok {
		b.coalesced[key] = sig
	} else {
		b.queue = append(b.queue, sig)
		if len(b.queue) > mailboxQueueCap {
			// Oldest dropped; the depositor is never blocked.
			b.queue = b.queue[len(b.queue)-mailboxQueueCap:]
		}
	}
	b.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SignalsDeposited.WithLabelValues(kind).Inc()
	}
}

// Drain atomically returns and clears the recipient's pending signals.
// Expired signals are dropped, not returned. Results are ordered by deposit time.
func (m *Mailbox) Drain(recipient string) []Signal {
	m.mu.Lock()
	b, ok := m.boxes[recipient]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	out := make([]Signal, 0, len(b.queue)+len(b.coalesced))
	out = append(out, b.queue...)
	for _, sig := range b.coalesced {
		out = append(out, sig)
	}
	b.queue = nil
	b.coalesced = make(map[signalKey]Signal)
	b.mu.Unlock()

	now := m.clock()
	live := out[:0]
	expired := 0
	for _, sig := range out {
		if sig.ExpiresAt.After(now) {
			live = append(live, sig)
		} else {
			expired++
		}
	}
	if expired > 0 && m.metrics != nil {
		m.metrics.SignalsExpired.Add(float64(expired))
	}

	sort.Slice(live, func(i, j int) bool { return live[i].DepositedAt.Before(live[j].DepositedAt) })
	return live
}

// Pending reports whether the recipient has at least one unexpired signal
// without consuming anything.
func (m *Mailbox) Pending(recipient string) bool {
	m.mu.Lock()
	b, ok := m.boxes[recipient]
	m.mu.Unlock()
	if !ok {
		return false
	}

	now := m.clock()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sig := range b.queue {
		if sig.ExpiresAt.After(now) {
			return true
		}
	}
	for _, sig := range b.coalesced {
		if sig.ExpiresAt.After(now) {
			return true
		}
	}
	return false
}

// Envelope converts a drained signal into its pull-transport representation.
func (s Signal) Envelope() v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    s.Kind,
		ID:      NewEnvelopeID(s.DepositedAt),
		RoomID:  s.RoomID,
		TS:      s.DepositedAt,
		Payload: s.Payload,
	}
}
