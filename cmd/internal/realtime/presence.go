package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Presence states.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// PresenceRecord is the derived liveness view of one user.
// It is never stored durably; a restart loses it and clients re-establish it.
type PresenceRecord struct {
	UserID       string
	State        string
	LastActiveAt time.Time
}

// PresenceNotifier publishes a presence transition to the interested set.
// Implemented by the Router; injected to keep the dependency one-way.
type PresenceNotifier interface {
	NotifyPresence(rec PresenceRecord)
}

// PresenceManager derives online/offline state from active sessions plus
// heartbeat recency, and emits each offline transition exactly once.
//
// Concurrency guarantees:
// - Heartbeat/OnConnect/OnDisconnect/StatusOf are non-blocking.
// - Transition broadcasts run outside the manager's lock.
type PresenceManager struct {
	log      *slog.Logger
	registry *Registry
	notifier PresenceNotifier
	metrics  *Metrics

	livenessWindow time.Duration
	sweepInterval  time.Duration
	clock          func() time.Time

	mu         sync.Mutex
	heartbeats map[string]time.Time
	announced  map[string]struct{} // users currently announced as online

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresenceManager constructs a PresenceManager over the given registry.
// Notifier may be set later via SetNotifier during wiring.
func NewPresenceManager(log *slog.Logger, registry *Registry, livenessWindow, sweepInterval time.Duration, metrics *Metrics) *PresenceManager {
	if livenessWindow <= 0 {
		livenessWindow = defaultLivenessWindow
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &PresenceManager{
		log:            log,
		registry:       registry,
		metrics:        metrics,
		livenessWindow: livenessWindow,
		sweepInterval:  sweepInterval,
		clock:          func() time.Time { return time.Now().UTC() },
		heartbeats:     make(map[string]time.Time),
		announced:      make(map[string]struct{}),
		stopCh:         make(chan struct{}),
	}
}

// SetNotifier installs the transition publisher. Set once during wiring.
func (p *PresenceManager) SetNotifier(n PresenceNotifier) {
	p.mu.Lock()
	p.notifier = n
	p.mu.Unlock()
}

// Heartbeat records liveness for a pull-transport user.
// Repeated heartbeats while already online never re-broadcast.
func (p *PresenceManager) Heartbeat(userID string) {
	if userID == "" {
		return
	}
	now := p.clock()

	p.mu.Lock()
	p.heartbeats[userID] = now
	_, wasOnline := p.announced[userID]
	if !wasOnline {
		p.announced[userID] = struct{}{}
	}
	n := p.notifier
	p.mu.Unlock()

	if !wasOnline {
		p.emit(n, PresenceRecord{UserID: userID, State: StateOnline, LastActiveAt: now})
	}
}

// OnConnect is the Registry hook for a user's first session.
func (p *PresenceManager) OnConnect(userID string) {
	now := p.clock()

	p.mu.Lock()
	_, wasOnline := p.announced[userID]
	if !wasOnline {
		p.announced[userID] = struct{}{}
	}
	n := p.notifier
	p.mu.Unlock()

	if !wasOnline {
		p.emit(n, PresenceRecord{UserID: userID, State: StateOnline, LastActiveAt: now})
	}
}

// OnDisconnect is the Registry hook for a user's last session.
// The registry already schedules this off the teardown path. A heartbeat
// within the liveness window keeps the user online (device switch).
func (p *PresenceManager) OnDisconnect(userID string) {
	now := p.clock()

	p.mu.Lock()
	if p.registry.IsOnlineNow(userID) {
		// A new session registered between the unregister and this hook.
		p.mu.Unlock()
		return
	}
	if hb, ok := p.heartbeats[userID]; ok && now.Sub(hb) < p.livenessWindow {
		p.mu.Unlock()
		return
	}
	_, wasOnline := p.announced[userID]
	delete(p.announced, userID)
	delete(p.heartbeats, userID)
	n := p.notifier
	p.mu.Unlock()

	if wasOnline {
		p.emit(n, PresenceRecord{UserID: userID, State: StateOffline, LastActiveAt: now})
	}
}

// StatusOf returns the derived presence record for a user.
func (p *PresenceManager) StatusOf(userID string) PresenceRecord {
	now := p.clock()

	if p.registry.IsOnlineNow(userID) {
		return PresenceRecord{UserID: userID, State: StateOnline, LastActiveAt: now}
	}

	p.mu.Lock()
	hb, ok := p.heartbeats[userID]
	p.mu.Unlock()

	if ok && now.Sub(hb) < p.livenessWindow {
		return PresenceRecord{UserID: userID, State: StateOnline, LastActiveAt: hb}
	}
	return PresenceRecord{UserID: userID, State: StateOffline, LastActiveAt: hb}
}

// SnapshotOnlineUsers returns every user currently online over either
// criterion. Used to seed a newly connected client's presence view.
func (p *PresenceManager) SnapshotOnlineUsers() []string {
	now := p.clock()
	out := p.registry.ConnectedUserIDs()

	p.mu.Lock()
	for userID, hb := range p.heartbeats {
		if now.Sub(hb) < p.livenessWindow {
			out = append(out, userID)
		}
	}
	p.mu.Unlock()

	return lo.Uniq(out)
}

// Start launches the background sweep that expires heartbeat-only users.
func (p *PresenceManager) Start(ctx context.Context) {
	go p.sweepLoop(ctx)
}

// Stop terminates the sweep loop.
func (p *PresenceManager) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *PresenceManager) sweepLoop(ctx context.Context) {
	t := time.NewTicker(p.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-t.C:
			p.sweep()
		}
	}
}

// sweep detects users who went silent and emits the offline transition
// exactly once per expiry.
func (p *PresenceManager) sweep() {
	now := p.clock()

	var expired []PresenceRecord

	p.mu.Lock()
	n := p.notifier
	for userID := range p.announced {
		if p.registry.IsOnlineNow(userID) {
			continue
		}
		hb, ok := p.heartbeats[userID]
		if ok && now.Sub(hb) < p.livenessWindow {
			continue
		}
		delete(p.announced, userID)
		delete(p.heartbeats, userID)
		expired = append(expired, PresenceRecord{UserID: userID, State: StateOffline, LastActiveAt: hb})
	}
	p.mu.Unlock()

	for _, rec := range expired {
		p.emit(n, rec)
	}
	if len(expired) > 0 {
		p.log.Info("presence.sweep", "expired", len(expired))
	}
}

func (p *PresenceManager) emit(n PresenceNotifier, rec PresenceRecord) {
	if p.metrics != nil {
		p.metrics.PresenceEvents.WithLabelValues(rec.State).Inc()
		switch rec.State {
		case StateOnline:
			p.metrics.OnlineUsers.Inc()
		case StateOffline:
			p.metrics.OnlineUsers.Dec()
		}
	}
	p.log.Info("presence.transition", "user_id", rec.UserID, "state", rec.State)
	if n != nil {
		n.NotifyPresence(rec)
	}
}
