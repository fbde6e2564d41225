package realtime

import (
	"context"
	"testing"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

func TestLongPoll_ImmediateReturnWhenEventsExist(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	start := time.Now()
	evs, err := e.AwaitUpdates(context.Background(), "bob", 0, 10*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(evs) != 1 || evs[0].Seq != 1 {
		t.Fatalf("evs=%+v want one event with seq=1", evs)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll with pending events blocked for %v", elapsed)
	}
}

func TestLongPoll_TimeoutReturnsEmptyNotError(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	if _, err := e.Membership().MembersOf(context.Background(), "room-1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	start := time.Now()
	evs, err := e.AwaitUpdates(context.Background(), "bob", 0, 300*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if evs == nil || len(evs) != 0 {
		t.Fatalf("evs=%+v want empty non-nil slice", evs)
	}
	if elapsed < 250*time.Millisecond {
		t.Fatalf("returned after %v, before the bounded wait elapsed", elapsed)
	}
}

func TestLongPoll_ContextCancelReturnsContextError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(NewInMemoryMembershipSource())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.AwaitUpdates(ctx, "bob", 0, 10*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not unblock after cancellation")
	}
}

func TestLongPoll_WokenMidPollByBroadcast(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	// Advance the room to seq 1 so bob polls from a non-zero cursor.
	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	type result struct {
		evs []v1.Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		evs, err := e.AwaitUpdates(context.Background(), "bob", 1, 10*time.Second)
		done <- result{evs, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("await: %v", res.err)
		}
		if len(res.evs) != 1 || res.evs[0].Seq != 2 {
			t.Fatalf("evs=%+v want one event with seq=2", res.evs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by the broadcast")
	}
}

func TestLongPoll_EphemeralSignalWakesWaiter(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	if _, err := e.Membership().MembersOf(context.Background(), "room-1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	done := make(chan []v1.Envelope, 1)
	go func() {
		evs, _ := e.AwaitUpdates(context.Background(), "bob", 0, 10*time.Second)
		done <- evs
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeTypingStart, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case evs := <-done:
		if countType(evs, v1.TypeTypingStart) != 1 {
			t.Fatalf("evs=%+v want one typing_start", evs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by the mailboxed signal")
	}
}

func TestWaiterSet_ReleaseRemovesSubscription(t *testing.T) {
	t.Parallel()

	ws := newWaiterSet()
	w := ws.register("bob")
	ws.release("bob", w)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if len(ws.users) != 0 {
		t.Fatalf("waiterSet still tracks %d users after release", len(ws.users))
	}
}
