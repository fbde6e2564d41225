package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// waiterSet holds per-user wake channels for suspended long-poll calls.
// Broadcast/deposit paths signal it instead of waiters polling shared state,
// so idle waiters cost nothing between events.
type waiterSet struct {
	mu    sync.Mutex
	users map[string]map[*waiter]struct{}
}

type waiter struct {
	ch chan struct{}
}

func newWaiterSet() *waiterSet {
	return &waiterSet{users: make(map[string]map[*waiter]struct{})}
}

// register installs a wake channel for userID. The caller must release it on
// every exit path, including timeout, to avoid leaking subscriptions.
func (ws *waiterSet) register(userID string) *waiter {
	w := &waiter{ch: make(chan struct{}, 1)}
	ws.mu.Lock()
	set, ok := ws.users[userID]
	if !ok {
		set = make(map[*waiter]struct{}, 1)
		ws.users[userID] = set
	}
	set[w] = struct{}{}
	ws.mu.Unlock()
	return w
}

func (ws *waiterSet) release(userID string, w *waiter) {
	ws.mu.Lock()
	if set, ok := ws.users[userID]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(ws.users, userID)
		}
	}
	ws.mu.Unlock()
}

// wake signals every suspended waiter of userID. Non-blocking: a waiter that
// already has a pending wake keeps exactly one.
func (ws *waiterSet) wake(userID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for w := range ws.users[userID] {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// LongPollCoordinator implements the pull-transport contract: suspend a caller
// until new events are deliverable or the bounded wait elapses.
type LongPollCoordinator struct {
	log     *slog.Logger
	index   *MembershipIndex
	events  *EventLog
	mailbox *Mailbox
	waiters *waiterSet
	metrics *Metrics

	clock func() time.Time
}

// NewLongPollCoordinator wires the coordinator over shared engine state.
func NewLongPollCoordinator(log *slog.Logger, index *MembershipIndex, events *EventLog, mailbox *Mailbox, waiters *waiterSet, metrics *Metrics) *LongPollCoordinator {
	return &LongPollCoordinator{
		log:     log,
		index:   index,
		events:  events,
		mailbox: mailbox,
		waiters: waiters,
		metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// AwaitUpdates returns the user's deliverable events past sinceSeq, blocking
// up to maxWait when none exist yet. A timeout is a normal terminal state and
// returns an empty slice with a nil error. Context cancellation (client gone)
// returns the context error.
//
// State machine: WAITING -> (wake) -> collect -> RETURN, or
// WAITING -> (timeout) -> RETURN empty.
func (c *LongPollCoordinator) AwaitUpdates(ctx context.Context, userID string, sinceSeq int64, maxWait time.Duration) ([]v1.Envelope, error) {
	if maxWait <= 0 {
		maxWait = defaultLongPollWait
	}
	if maxWait > maxLongPollWait {
		maxWait = maxLongPollWait
	}

	// Register before the first collect so an event landing between collect
	// and suspend still wakes us.
	w := c.waiters.register(userID)
	defer c.waiters.release(userID, w)

	if c.metrics != nil {
		c.metrics.LongPollWaiters.Inc()
		defer c.metrics.LongPollWaiters.Dec()
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		if evs := c.collect(userID, sinceSeq); len(evs) > 0 {
			return evs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return []v1.Envelope{}, nil
		case <-w.ch:
			// Re-collect; a wake can race with another poller draining the
			// same mailbox, in which case we go back to waiting.
		}
	}
}

// collect gathers retained room events past the cursor across the user's
// rooms plus any pending mailbox signals, ordered events-then-signals.
func (c *LongPollCoordinator) collect(userID string, sinceSeq int64) []v1.Envelope {
	var out []v1.Envelope

	for _, roomID := range c.index.RoomsOf(userID) {
		out = append(out, c.events.Since(roomID, sinceSeq)...)
	}
	for _, sig := range c.mailbox.Drain(userID) {
		out = append(out, sig.Envelope())
	}
	return out
}
