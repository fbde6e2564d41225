package realtime

import (
	"testing"
	"time"
)

func newTestPresence(t *testing.T) (*PresenceManager, *Registry, *fakeClock, *recordingNotifier) {
	t.Helper()

	reg := NewRegistry(testLogger(), 8, nil)
	clock := newFakeClock()
	n := &recordingNotifier{}

	p := NewPresenceManager(testLogger(), reg, 60*time.Second, 30*time.Second, nil)
	p.clock = clock.Now
	p.SetNotifier(n)
	return p, reg, clock, n
}

func TestPresence_HeartbeatAnnouncesOnce(t *testing.T) {
	t.Parallel()

	p, _, clock, n := newTestPresence(t)

	p.Heartbeat("alice")
	clock.Advance(5 * time.Second)
	p.Heartbeat("alice")
	clock.Advance(5 * time.Second)
	p.Heartbeat("alice")

	recs := n.records()
	if len(recs) != 1 {
		t.Fatalf("got %d presence events, want 1", len(recs))
	}
	if recs[0].State != StateOnline || recs[0].UserID != "alice" {
		t.Fatalf("unexpected first event: %+v", recs[0])
	}

	if got := p.StatusOf("alice").State; got != StateOnline {
		t.Fatalf("StatusOf(alice)=%s want=%s", got, StateOnline)
	}
}

func TestPresence_HeartbeatExpiresExactlyOnce(t *testing.T) {
	t.Parallel()

	p, _, clock, n := newTestPresence(t)

	p.Heartbeat("bob")

	clock.Advance(61 * time.Second)
	p.sweep()
	p.sweep() // second sweep must not re-emit

	recs := n.records()
	if len(recs) != 2 {
		t.Fatalf("got %d presence events, want 2 (online, offline)", len(recs))
	}
	if recs[1].State != StateOffline {
		t.Fatalf("second event state=%s want=%s", recs[1].State, StateOffline)
	}
	if got := p.StatusOf("bob").State; got != StateOffline {
		t.Fatalf("StatusOf(bob)=%s want=%s", got, StateOffline)
	}
}

func TestPresence_SessionKeepsUserOnlinePastWindow(t *testing.T) {
	t.Parallel()

	p, reg, clock, n := newTestPresence(t)
	reg.SetHooks(p)

	reg.Register("carol")

	clock.Advance(10 * time.Minute)
	p.sweep()

	if got := p.StatusOf("carol").State; got != StateOnline {
		t.Fatalf("StatusOf(carol)=%s want=%s while session lives", got, StateOnline)
	}
	for _, rec := range n.records() {
		if rec.State == StateOffline {
			t.Fatalf("offline emitted while a session is live: %+v", rec)
		}
	}
}

func TestPresence_DisconnectWithFreshHeartbeatStaysOnline(t *testing.T) {
	t.Parallel()

	p, _, clock, n := newTestPresence(t)

	p.OnConnect("dave")
	p.Heartbeat("dave")
	clock.Advance(5 * time.Second)
	p.OnDisconnect("dave")

	// Device switch: the heartbeat is still inside the liveness window.
	if got := p.StatusOf("dave").State; got != StateOnline {
		t.Fatalf("StatusOf(dave)=%s want=%s", got, StateOnline)
	}
	for _, rec := range n.records() {
		if rec.State == StateOffline {
			t.Fatalf("premature offline: %+v", rec)
		}
	}
}

func TestPresence_DisconnectWithoutHeartbeatGoesOffline(t *testing.T) {
	t.Parallel()

	p, _, _, n := newTestPresence(t)

	p.OnConnect("erin")
	p.OnDisconnect("erin")

	recs := n.records()
	if len(recs) != 2 || recs[1].State != StateOffline {
		t.Fatalf("records=%+v want online then offline", recs)
	}
}

func TestPresence_SnapshotOnlineUsers(t *testing.T) {
	t.Parallel()

	p, reg, clock, _ := newTestPresence(t)
	reg.SetHooks(p)

	reg.Register("sess-user")
	p.Heartbeat("hb-user")
	p.Heartbeat("stale-user")
	clock.Advance(30 * time.Second)
	p.Heartbeat("hb-user") // refresh
	clock.Advance(45 * time.Second)

	snap := p.SnapshotOnlineUsers()
	want := map[string]bool{"sess-user": true, "hb-user": true}
	if len(snap) != len(want) {
		t.Fatalf("snapshot=%v want users %v", snap, want)
	}
	for _, u := range snap {
		if !want[u] {
			t.Fatalf("unexpected online user %q in %v", u, snap)
		}
	}
}
