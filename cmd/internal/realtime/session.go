package realtime

import (
	"sync"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// Session represents one connected push-transport connection owned by a user.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	Send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs a Session with a bounded send queue.
func NewSession(userID string, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(now),
		UserID:    userID,
		CreatedAt: now,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the session is shutting down.
func (s *Session) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close signals the session goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// TrySend enqueues an envelope without blocking.
// Envelopes are dropped when the session is shutting down or the queue is full.
func (s *Session) TrySend(env v1.Envelope) bool {
	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.Send <- env:
		return true
	default:
		// Drop rather than block the broadcaster.
		return false
	}
}
