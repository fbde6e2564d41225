package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// Router is the single fan-out entry point shared by both transports.
// The CRUD layer calls Broadcast after committing a state change; transport
// adapters call it for ephemeral client signals. It is the only component
// that advances a room's sequence counter, so push and pull clients observe
// the same ordering.
type Router struct {
	log      *slog.Logger
	registry *Registry
	index    *MembershipIndex
	mailbox  *Mailbox
	events   *EventLog
	waiters  *waiterSet
	metrics  *Metrics

	clock func() time.Time
}

// NewRouter wires a Router over shared engine state.
func NewRouter(log *slog.Logger, registry *Registry, index *MembershipIndex, mailbox *Mailbox, events *EventLog, waiters *waiterSet, metrics *Metrics) *Router {
	return &Router{
		log:      log,
		registry: registry,
		index:    index,
		mailbox:  mailbox,
		events:   events,
		waiters:  waiters,
		metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Broadcast delivers an event to every present member of a room except the
// excluded sender. Durable kinds get the room's next seq and are retained for
// the since cursor; ephemeral kinds are mailboxed for sessionless members.
//
// Returns the assigned seq (0 for ephemeral kinds). The only error is a
// membership resolution failure on a cold cache; a room with zero resolvable
// members is a no-op, not an error. Broadcast is best-effort by contract: it
// must never roll back the caller's already-committed state change.
func (r *Router) Broadcast(ctx context.Context, roomID, eventType string, payload json.RawMessage, excludeUserID string) (int64, error) {
	members, err := r.index.MembersOf(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	recipients := members[:0:0]
	for _, m := range members {
		if m != excludeUserID {
			recipients = append(recipients, m)
		}
	}

	now := r.clock()
	var seq int64

	if DurableKind(eventType) {
		// Seq assignment and push delivery share the room's critical section:
		// two concurrent broadcasters can never deliver out of seq order.
		r.events.withRoom(roomID, func(rl *roomLog) {
			env := rl.append(eventType, roomID, payload, now)
			seq = env.Seq
			for _, userID := range recipients {
				r.pushToUser(userID, env)
			}
		})
	} else {
		env := v1.Envelope{
			V:       v1.Version,
			Type:    eventType,
			ID:      NewEnvelopeID(now),
			RoomID:  roomID,
			TS:      now,
			Payload: payload,
		}
		for _, userID := range recipients {
			if !r.pushToUser(userID, env) {
				// No push session: park the signal for the pull transport.
				r.mailbox.Deposit(userID, eventType, roomID, excludeUserID, payload, SignalTTL(eventType))
			}
		}
	}

	for _, userID := range recipients {
		r.waiters.wake(userID)
	}

	if r.metrics != nil {
		r.metrics.BroadcastsTotal.WithLabelValues(eventType).Inc()
	}
	r.log.Debug("router.broadcast", "room_id", roomID, "type", eventType, "seq", seq, "recipients", len(recipients))
	return seq, nil
}

// SendToUser bypasses room resolution for strictly 1:1 signals such as call
// offers addressed by user id.
func (r *Router) SendToUser(fromUserID, toUserID, eventType string, payload json.RawMessage) {
	if toUserID == "" {
		return
	}

	now := r.clock()
	env := v1.Envelope{
		V:       v1.Version,
		Type:    eventType,
		ID:      NewEnvelopeID(now),
		TS:      now,
		Payload: payload,
	}

	if !r.pushToUser(toUserID, env) {
		r.mailbox.Deposit(toUserID, eventType, "", fromUserID, payload, SignalTTL(eventType))
	}
	r.waiters.wake(toUserID)

	if r.metrics != nil {
		r.metrics.BroadcastsTotal.WithLabelValues(eventType).Inc()
	}
}

// NotifyPresence publishes a presence transition to every user sharing at
// least one cached room with the subject. Presence is push-only: pull clients
// re-seed their presence view on the next connect instead.
func (r *Router) NotifyPresence(rec PresenceRecord) {
	payload, _ := json.Marshal(v1.PresencePayload{
		UserID:       rec.UserID,
		State:        rec.State,
		LastActiveAt: rec.LastActiveAt,
	})

	now := r.clock()
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypePresenceUpdate,
		ID:      NewEnvelopeID(now),
		TS:      now,
		Payload: payload,
	}

	interested := r.index.InterestedIn(rec.UserID)
	for _, userID := range interested {
		r.pushToUser(userID, env)
	}
	r.log.Debug("router.presence", "user_id", rec.UserID, "state", rec.State, "interested", len(interested))
}

// pushToUser fans an envelope out to all of a user's devices, not just one.
// Reports whether the user had at least one live session.
func (r *Router) pushToUser(userID string, env v1.Envelope) bool {
	sessions := r.registry.SessionsFor(userID)
	if len(sessions) == 0 {
		return false
	}
	for _, sess := range sessions {
		if !sess.TrySend(env) && r.metrics != nil {
			r.metrics.EnvelopesDropped.Inc()
		}
	}
	return true
}
