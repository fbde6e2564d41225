package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// EngineConfig carries the tunable knobs of the engine.
type EngineConfig struct {
	SendQueueSize  int
	LivenessWindow time.Duration
	SweepInterval  time.Duration
}

// Engine is the facade the CRUD layer and transport adapters program against.
// It owns the engine's components and their wiring; it holds no durable state,
// only in-memory projections reconstructible from the CRUD layer on restart.
type Engine struct {
	log *slog.Logger

	registry *Registry
	presence *PresenceManager
	index    *MembershipIndex
	mailbox  *Mailbox
	events   *EventLog
	router   *Router
	poll     *LongPollCoordinator
	waiters  *waiterSet
}

// NewEngine wires a complete engine over the given membership source.
// Metrics may be nil.
func NewEngine(log *slog.Logger, source MembershipSource, cfg EngineConfig, metrics *Metrics) *Engine {
	registry := NewRegistry(log, cfg.SendQueueSize, metrics)
	index := NewMembershipIndex(log, source)
	mailbox := NewMailbox(metrics)
	events := NewEventLog()
	waiters := newWaiterSet()
	router := NewRouter(log, registry, index, mailbox, events, waiters, metrics)
	presence := NewPresenceManager(log, registry, cfg.LivenessWindow, cfg.SweepInterval, metrics)
	poll := NewLongPollCoordinator(log, index, events, mailbox, waiters, metrics)

	presence.SetNotifier(router)
	registry.SetHooks(presence)

	return &Engine{
		log:      log,
		registry: registry,
		presence: presence,
		index:    index,
		mailbox:  mailbox,
		events:   events,
		router:   router,
		poll:     poll,
		waiters:  waiters,
	}
}

// Start launches the engine's background work (the presence sweep).
func (e *Engine) Start(ctx context.Context) { e.presence.Start(ctx) }

// Stop terminates background work.
func (e *Engine) Stop() { e.presence.Stop() }

// OnConnect registers a push session for a pre-authenticated user.
func (e *Engine) OnConnect(userID string) *Session { return e.registry.Register(userID) }

// OnDisconnect removes a session; unknown ids are silent no-ops.
func (e *Engine) OnDisconnect(sessionID string) { e.registry.Unregister(sessionID) }

// Heartbeat records pull-transport liveness.
func (e *Engine) Heartbeat(userID string) { e.presence.Heartbeat(userID) }

// Broadcast fans an event out to a room. See Router.Broadcast.
func (e *Engine) Broadcast(ctx context.Context, roomID, eventType string, payload json.RawMessage, excludeUserID string) (int64, error) {
	return e.router.Broadcast(ctx, roomID, eventType, payload, excludeUserID)
}

// SendToUser delivers a strictly 1:1 signal by user id.
func (e *Engine) SendToUser(fromUserID, toUserID, eventType string, payload json.RawMessage) {
	e.router.SendToUser(fromUserID, toUserID, eventType, payload)
}

// AwaitUpdates is the pull-transport entry point. See LongPollCoordinator.
func (e *Engine) AwaitUpdates(ctx context.Context, userID string, sinceSeq int64, maxWait time.Duration) ([]v1.Envelope, error) {
	return e.poll.AwaitUpdates(ctx, userID, sinceSeq, maxWait)
}

// NotifyMembershipChange applies a CRUD-layer membership mutation to the
// cached projection. Removals take effect immediately.
func (e *Engine) NotifyMembershipChange(roomID, userID string, added bool) {
	if added {
		e.index.AddMember(roomID, userID)
	} else {
		e.index.RemoveMember(roomID, userID)
	}
}

// InvalidateRoom drops a room's cached membership projection.
func (e *Engine) InvalidateRoom(roomID string) { e.index.Invalidate(roomID) }

// IsOnlineNow reports whether the user owns at least one live push session.
func (e *Engine) IsOnlineNow(userID string) bool { return e.registry.IsOnlineNow(userID) }

// StatusOf returns the user's derived presence record.
func (e *Engine) StatusOf(userID string) PresenceRecord { return e.presence.StatusOf(userID) }

// SnapshotOnlineUsers seeds a newly connected client's presence view.
func (e *Engine) SnapshotOnlineUsers() []string { return e.presence.SnapshotOnlineUsers() }

// Membership exposes the cached membership index to transport adapters for
// inbound signal validation.
func (e *Engine) Membership() *MembershipIndex { return e.index }

// CurrentSeq returns a room's last assigned sequence number.
func (e *Engine) CurrentSeq(roomID string) int64 { return e.events.CurrentSeq(roomID) }
