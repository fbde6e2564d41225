package realtime

import (
	"hash/fnv"
	"log/slog"
	"sync"
)

// PresenceHooks receives session-lifecycle transitions from the Registry.
// OnConnect fires when a user's first session registers; OnDisconnect fires
// after a user's last session unregisters.
type PresenceHooks interface {
	OnConnect(userID string)
	OnDisconnect(userID string)
}

const registryShardCount = 16

// Registry tracks live push sessions per authenticated user.
//
// Concurrency guarantees:
// - Register/Unregister/SessionsFor are safe under full concurrency.
// - User state is partitioned across shards so unrelated users never contend.
// - Unregister is idempotent: an unknown session id is a silent no-op.
//
// The registry is an injected instance owned by the server lifecycle,
// never a package-level singleton, so tests can run isolated registries.
type Registry struct {
	log           *slog.Logger
	sendQueueSize int
	metrics       *Metrics

	hooksMu sync.RWMutex
	hooks   PresenceHooks

	idMu sync.RWMutex
	byID map[string]*Session

	shards [registryShardCount]registryShard
}

type registryShard struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Session
}

// NewRegistry constructs a Registry. Metrics may be nil.
func NewRegistry(log *slog.Logger, sendQueueSize int, metrics *Metrics) *Registry {
	r := &Registry{
		log:           log,
		sendQueueSize: sendQueueSize,
		metrics:       metrics,
		byID:          make(map[string]*Session),
	}
	for i := range r.shards {
		r.shards[i].byUser = make(map[string]map[string]*Session)
	}
	return r
}

// SetHooks installs the presence lifecycle hooks.
// Set once during wiring, before any session registers.
func (r *Registry) SetHooks(h PresenceHooks) {
	r.hooksMu.Lock()
	r.hooks = h
	r.hooksMu.Unlock()
}

func (r *Registry) shard(userID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.shards[h.Sum32()%registryShardCount]
}

// Register creates a session for a pre-authenticated user id.
// The caller must have verified the identity; the registry trusts it.
// Registry operations never fail.
func (r *Registry) Register(userID string) *Session {
	sess := NewSession(userID, r.sendQueueSize)

	r.idMu.Lock()
	r.byID[sess.ID] = sess
	r.idMu.Unlock()

	sh := r.shard(userID)
	sh.mu.Lock()
	set := sh.byUser[userID]
	if set == nil {
		set = make(map[string]*Session, 1)
		sh.byUser[userID] = set
	}
	set[sess.ID] = sess
	first := len(set) == 1
	sh.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionsActive.Inc()
	}
	r.log.Info("registry.session.register", "session_id", sess.ID, "user_id", userID, "first", first)

	if first {
		if h := r.currentHooks(); h != nil {
			h.OnConnect(userID)
		}
	}
	return sess
}

// Unregister removes a session. Unknown or already-removed ids are no-ops,
// which makes it safe to call from a connection-closed callback racing with
// a liveness sweep.
func (r *Registry) Unregister(sessionID string) {
	if sessionID == "" {
		return
	}

	r.idMu.Lock()
	sess, ok := r.byID[sessionID]
	if ok {
		delete(r.byID, sessionID)
	}
	r.idMu.Unlock()
	if !ok {
		return
	}

	sh := r.shard(sess.UserID)
	sh.mu.Lock()
	set := sh.byUser[sess.UserID]
	delete(set, sessionID)
	last := len(set) == 0
	if last {
		delete(sh.byUser, sess.UserID)
	}
	sh.mu.Unlock()

	sess.Close()

	if r.metrics != nil {
		r.metrics.SessionsActive.Dec()
	}
	r.log.Info("registry.session.unregister", "session_id", sessionID, "user_id", sess.UserID, "last", last)

	if last {
		// Scheduled, not synchronous: the offline broadcast must not run on the
		// connection-teardown path that still holds transport resources.
		if h := r.currentHooks(); h != nil {
			go h.OnDisconnect(sess.UserID)
		}
	}
}

func (r *Registry) currentHooks() PresenceHooks {
	r.hooksMu.RLock()
	defer r.hooksMu.RUnlock()
	return r.hooks
}

// SessionsFor returns a snapshot of the user's live sessions.
func (r *Registry) SessionsFor(userID string) []*Session {
	sh := r.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	set := sh.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// IsOnlineNow reports whether the user owns at least one live session.
func (r *Registry) IsOnlineNow(userID string) bool {
	sh := r.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.byUser[userID]) > 0
}

// ConnectedUserIDs returns the ids of all users owning at least one session.
func (r *Registry) ConnectedUserIDs() []string {
	var out []string
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for userID := range sh.byUser {
			out = append(out, userID)
		}
		sh.mu.RUnlock()
	}
	return out
}
