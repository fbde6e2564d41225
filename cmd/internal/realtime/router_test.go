package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	v1 "ripple/shared/contracts/realtime/v1"
)

func TestRouter_BroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	aliceSess := e.OnConnect("alice")
	bobSess := e.OnConnect("bob")

	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, json.RawMessage(`{"id":"m1"}`), "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if got := countType(drainSession(aliceSess), v1.TypeMessageNew); got != 0 {
		t.Fatalf("sender received %d copies of own event", got)
	}
	if got := countType(drainSession(bobSess), v1.TypeMessageNew); got != 1 {
		t.Fatalf("bob received %d events, want 1", got)
	}
}

func TestRouter_FanOutToAllDevices(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	phone := e.OnConnect("bob")
	laptop := e.OnConnect("bob")

	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if countType(drainSession(phone), v1.TypeMessageNew) != 1 || countType(drainSession(laptop), v1.TypeMessageNew) != 1 {
		t.Fatal("event not fanned out to every device")
	}
}

func TestRouter_SessionlessMemberGetsMailboxedSignal(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	// bob has no session; a typing signal must land in his mailbox.
	if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeTypingStart, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	sigs := e.mailbox.Drain("bob")
	if len(sigs) != 1 || sigs[0].Kind != v1.TypeTypingStart {
		t.Fatalf("mailbox=%+v want one typing_start", sigs)
	}
	if sigs[0].Sender != "alice" || sigs[0].RoomID != "room-1" {
		t.Fatalf("signal attribution wrong: %+v", sigs[0])
	}
}

func TestRouter_DurableKindRetainedForPoll(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	e := newTestEngine(source)

	seq, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, json.RawMessage(`{"id":"m1"}`), "alice")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq=%d want=1", seq)
	}

	evs := e.events.Since("room-1", 0)
	if len(evs) != 1 || evs[0].Seq != 1 || evs[0].Type != v1.TypeMessageNew {
		t.Fatalf("retained=%+v want one message_new seq=1", evs)
	}
}

func TestRouter_ZeroMembersIsNoop(t *testing.T) {
	t.Parallel()

	e := newTestEngine(NewInMemoryMembershipSource())

	seq, err := e.Broadcast(context.Background(), "empty-room", v1.TypeMessageNew, nil, "")
	if err != nil {
		t.Fatalf("broadcast to empty room errored: %v", err)
	}
	if seq != 0 {
		t.Fatalf("seq=%d want=0 for no-op", seq)
	}
}

func TestRouter_MembershipUnavailableSurfaces(t *testing.T) {
	t.Parallel()

	e := newTestEngine(failingSource{})

	_, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, "")
	if !errors.Is(err, ErrMembershipUnavailable) {
		t.Fatalf("err=%v want ErrMembershipUnavailable", err)
	}
	if !errors.Is(err, errSourceDown) {
		t.Fatalf("err=%v should wrap the source error", err)
	}
}

func TestRouter_RemovedMemberReceivesNothing(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-7", "alice", "member")
	source.SetMember("room-7", "carol", "member")
	e := newTestEngine(source)

	carolSess := e.OnConnect("carol")

	// Prime the projection, then remove carol the way the CRUD layer would:
	// mutate the source of truth and notify the engine.
	if _, err := e.Broadcast(context.Background(), "room-7", v1.TypeMessageNew, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	drainSession(carolSess)

	source.DropMember("room-7", "carol")
	e.NotifyMembershipChange("room-7", "carol", false)

	if _, err := e.Broadcast(context.Background(), "room-7", v1.TypeMessageNew, nil, "alice"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := countType(drainSession(carolSess), v1.TypeMessageNew); got != 0 {
		t.Fatalf("removed member received %d events via push", got)
	}

	// And nothing via a fresh poll either.
	evs, err := e.AwaitUpdates(context.Background(), "carol", 1, 1)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("removed member polled %d events, want 0", len(evs))
	}
}

func TestRouter_ConcurrentBroadcastsGapFreeSeq(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "writer", "member")
	source.SetMember("room-1", "reader", "member")
	e := newTestEngine(source)

	readerSess := e.OnConnect("reader")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.Broadcast(context.Background(), "room-1", v1.TypeMessageNew, nil, "writer"); err != nil {
				t.Errorf("broadcast: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := e.CurrentSeq("room-1"); got != n {
		t.Fatalf("CurrentSeq=%d want=%d", got, n)
	}

	envs := drainSession(readerSess)
	if len(envs) != n {
		t.Fatalf("reader received %d events, want %d", len(envs), n)
	}
	// Delivery shares the seq critical section, so the reader observes the
	// exact permutation 1..n in order with no duplicates or gaps.
	for i, env := range envs {
		if env.Seq != int64(i+1) {
			t.Fatalf("event %d has seq=%d want=%d", i, env.Seq, i+1)
		}
	}
}

func TestRouter_SendToUserFallsBackToMailbox(t *testing.T) {
	t.Parallel()

	e := newTestEngine(NewInMemoryMembershipSource())

	payload, _ := json.Marshal(v1.CallSignalPayload{To: "bob", From: "alice"})
	e.SendToUser("alice", "bob", v1.TypeCallOffer, payload)

	sigs := e.mailbox.Drain("bob")
	if len(sigs) != 1 || sigs[0].Kind != v1.TypeCallOffer {
		t.Fatalf("mailbox=%+v want one call_offer", sigs)
	}
}

func TestRouter_PresenceScopedToSharedRooms(t *testing.T) {
	t.Parallel()

	source := NewInMemoryMembershipSource()
	source.SetMember("room-1", "alice", "member")
	source.SetMember("room-1", "bob", "member")
	source.SetMember("room-2", "mallory", "member")
	e := newTestEngine(source)

	bobSess := e.OnConnect("bob")
	mallorySess := e.OnConnect("mallory")

	// Cache both rooms so the interested set is computable.
	if _, err := e.Membership().MembersOf(context.Background(), "room-1"); err != nil {
		t.Fatalf("prime room-1: %v", err)
	}
	if _, err := e.Membership().MembersOf(context.Background(), "room-2"); err != nil {
		t.Fatalf("prime room-2: %v", err)
	}
	drainSession(bobSess)
	drainSession(mallorySess)

	e.router.NotifyPresence(PresenceRecord{UserID: "alice", State: StateOffline})

	if got := countType(drainSession(bobSess), v1.TypePresenceUpdate); got != 1 {
		t.Fatalf("bob got %d presence updates, want 1", got)
	}
	if got := countType(drainSession(mallorySess), v1.TypePresenceUpdate); got != 0 {
		t.Fatalf("mallory shares no room with alice but got %d presence updates", got)
	}
}

func countType(envs []v1.Envelope, typ string) int {
	n := 0
	for _, env := range envs {
		if env.Type == typ {
			n++
		}
	}
	return n
}
