package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// ErrMembershipUnavailable wraps a membership-source failure on a cache miss.
// It is the only engine error surfaced to a broadcasting caller.
var ErrMembershipUnavailable = errors.New("realtime: membership source unavailable")

// MembershipSource is the external source of truth for room membership.
// The engine only reads through it; membership writes happen in the CRUD layer,
// which notifies the index afterwards.
type MembershipSource interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	MemberIDsOf(ctx context.Context, roomID string) ([]string, error)
	RoleOf(ctx context.Context, roomID, userID string) (string, error)
}

// MembershipIndex is a cached projection of room membership used for fan-out.
//
// Invariants:
//   - Entries are never expired by time; only explicit membership-change
//     notifications mutate or invalidate them. A removed member must stop
//     receiving events promptly, so removals apply immediately.
//   - A cache miss triggers a synchronous fetch from the source; a source
//     failure on a miss surfaces ErrMembershipUnavailable to the caller.
//   - A notification that races an in-flight load is never lost: each
//     notification bumps the room's generation, and a load whose generation
//     moved discards its snapshot instead of installing it.
type MembershipIndex struct {
	log    *slog.Logger
	source MembershipSource

	mu        sync.RWMutex
	rooms     map[string]map[string]struct{} // roomID -> member set
	userRooms map[string]map[string]struct{} // userID -> cached rooms containing them
	gen       map[string]uint64              // roomID -> notification generation, guards in-flight loads
}

// NewMembershipIndex constructs an index over the given source.
func NewMembershipIndex(log *slog.Logger, source MembershipSource) *MembershipIndex {
	return &MembershipIndex{
		log:       log,
		source:    source,
		rooms:     make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
		gen:       make(map[string]uint64),
	}
}

// MembersOf returns the cached member set for a room, fetching from the source
// on a miss. The returned slice is a snapshot safe to iterate without locks.
func (m *MembershipIndex) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, nil
	}

	m.mu.RLock()
	set, ok := m.rooms[roomID]
	if ok {
		out := lo.Keys(set)
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	return m.loadMembers(ctx, roomID)
}

// loadMembers fetches a room's member list from the source and installs it.
func (m *MembershipIndex) loadMembers(ctx context.Context, roomID string) ([]string, error) {
	m.mu.RLock()
	startGen := m.gen[roomID]
	m.mu.RUnlock()

	ids, err := m.source.MemberIDsOf(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMembershipUnavailable, err)
	}
	ids = lo.Uniq(ids)

	m.mu.Lock()
	// A concurrent loader or a membership notification may have won; the
	// freshest explicit notification wins, so only install when still absent.
	if set, ok := m.rooms[roomID]; ok {
		ids = lo.Keys(set)
		m.mu.Unlock()
		return ids, nil
	}
	if m.gen[roomID] != startGen {
		// A membership notification landed while the fetch was in flight.
		// Installing this snapshot would silently undo it, so skip the
		// install; the next lookup refetches a post-notification view.
		m.mu.Unlock()
		return ids, nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
		m.linkLocked(id, roomID)
	}
	m.rooms[roomID] = set
	m.mu.Unlock()

	m.log.Debug("membership.load", "room_id", roomID, "members", len(ids))
	return ids, nil
}

// IsMember checks membership, preferring the cache and falling back to the source.
func (m *MembershipIndex) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	m.mu.RLock()
	set, ok := m.rooms[roomID]
	if ok {
		_, member := set[userID]
		m.mu.RUnlock()
		return member, nil
	}
	m.mu.RUnlock()

	ids, err := m.loadMembers(ctx, roomID)
	if err != nil {
		return false, err
	}
	return lo.Contains(ids, userID), nil
}

// AddMember applies a membership addition notified by the CRUD layer.
// Uncached rooms are left alone; they self-heal on next load.
func (m *MembershipIndex) AddMember(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen[roomID]++
	set, ok := m.rooms[roomID]
	if !ok {
		return
	}
	set[userID] = struct{}{}
	m.linkLocked(userID, roomID)
}

// RemoveMember applies a membership removal notified by the CRUD layer.
// Removals take effect immediately so a removed user stops receiving events.
func (m *MembershipIndex) RemoveMember(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen[roomID]++
	if set, ok := m.rooms[roomID]; ok {
		delete(set, userID)
	}
	if rooms, ok := m.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.userRooms, userID)
		}
	}
}

// Invalidate drops a room's cached projection entirely.
func (m *MembershipIndex) Invalidate(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen[roomID]++
	set, ok := m.rooms[roomID]
	if !ok {
		return
	}
	for userID := range set {
		if rooms, ok := m.userRooms[userID]; ok {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(m.userRooms, userID)
			}
		}
	}
	delete(m.rooms, roomID)
}

// RoomsOf returns the cached rooms a user belongs to.
// Only rooms that have been loaded are known; that is sufficient for both the
// interested-set computation and the poll path, because every broadcast loads
// its room before delivery.
func (m *MembershipIndex) RoomsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms, ok := m.userRooms[userID]
	if !ok {
		return nil
	}
	return lo.Keys(rooms)
}

// InterestedIn returns the deduplicated union of members across every cached
// room containing subject, excluding subject. This bounds presence fan-out to
// users who share context with the subject instead of the whole user base.
func (m *MembershipIndex) InterestedIn(subject string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := m.userRooms[subject]
	if len(rooms) == 0 {
		return nil
	}

	var all []string
	for roomID := range rooms {
		for userID := range m.rooms[roomID] {
			if userID != subject {
				all = append(all, userID)
			}
		}
	}
	return lo.Uniq(all)
}

// linkLocked records userID -> roomID in the reverse index. Caller holds mu.
func (m *MembershipIndex) linkLocked(userID, roomID string) {
	rooms, ok := m.userRooms[userID]
	if !ok {
		rooms = make(map[string]struct{}, 1)
		m.userRooms[userID] = rooms
	}
	rooms[roomID] = struct{}{}
}
