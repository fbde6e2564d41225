package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock shared by tests that exercise TTL
// and liveness-window behavior without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingNotifier captures presence transitions.
type recordingNotifier struct {
	mu   sync.Mutex
	recs []PresenceRecord
}

func (n *recordingNotifier) NotifyPresence(rec PresenceRecord) {
	n.mu.Lock()
	n.recs = append(n.recs, rec)
	n.mu.Unlock()
}

func (n *recordingNotifier) records() []PresenceRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PresenceRecord, len(n.recs))
	copy(out, n.recs)
	return out
}

// failingSource always errors, standing in for an unreachable CRUD layer.
type failingSource struct{}

var errSourceDown = errors.New("source down")

func (failingSource) IsMember(context.Context, string, string) (bool, error) {
	return false, errSourceDown
}

func (failingSource) MemberIDsOf(context.Context, string) ([]string, error) {
	return nil, errSourceDown
}

func (failingSource) RoleOf(context.Context, string, string) (string, error) {
	return "", errSourceDown
}

// newTestEngine builds an engine over an in-memory source with no metrics.
func newTestEngine(source MembershipSource) *Engine {
	return NewEngine(testLogger(), source, EngineConfig{SendQueueSize: 256}, nil)
}

// drainSession reads every envelope currently queued on a session.
func drainSession(s *Session) []v1.Envelope {
	var out []v1.Envelope
	for {
		select {
		case env := <-s.Send:
			out = append(out, env)
		default:
			return out
		}
	}
}
