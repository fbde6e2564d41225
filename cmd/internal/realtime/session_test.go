package realtime

import (
	"testing"

	v1 "ripple/shared/contracts/realtime/v1"
)

func TestSession_TrySendDropsWhenFull(t *testing.T) {
	t.Parallel()

	s := NewSession("alice", 2)
	if !s.TrySend(v1.Envelope{Type: v1.TypePong}) || !s.TrySend(v1.Envelope{Type: v1.TypePong}) {
		t.Fatal("sends under capacity rejected")
	}
	if s.TrySend(v1.Envelope{Type: v1.TypePong}) {
		t.Fatal("send over capacity must drop, not block")
	}
}

func TestSession_CloseIsIdempotentAndStopsSends(t *testing.T) {
	t.Parallel()

	s := NewSession("alice", 8)
	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	if s.TrySend(v1.Envelope{Type: v1.TypePong}) {
		t.Fatal("send accepted after Close")
	}
}

func TestSession_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var s *Session
	s.Close()
	if s.TrySend(v1.Envelope{}) {
		t.Fatal("nil session accepted a send")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("nil session Done must read as closed")
	}
}
