package realtime

import (
	"context"
	"sync"
)

// InMemoryMembershipSource is a dev/test fallback when no DB is configured.
// The CRUD layer it stands in for would normally own these rows.
type InMemoryMembershipSource struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string // roomID -> userID -> role
}

// NewInMemoryMembershipSource constructs an empty in-memory source.
func NewInMemoryMembershipSource() *InMemoryMembershipSource {
	return &InMemoryMembershipSource{rooms: make(map[string]map[string]string)}
}

// SetMember records userID as a member of roomID with the given role.
func (s *InMemoryMembershipSource) SetMember(roomID, userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rooms[roomID]
	if !ok {
		set = make(map[string]string, 1)
		s.rooms[roomID] = set
	}
	set[userID] = role
}

// DropMember removes userID from roomID.
func (s *InMemoryMembershipSource) DropMember(roomID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms[roomID], userID)
}

// IsMember implements MembershipSource.
func (s *InMemoryMembershipSource) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID][userID]
	return ok, nil
}

// MemberIDsOf implements MembershipSource.
func (s *InMemoryMembershipSource) MemberIDsOf(_ context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.rooms[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

// RoleOf implements MembershipSource.
func (s *InMemoryMembershipSource) RoleOf(_ context.Context, roomID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.rooms[roomID][userID]
	if !ok {
		return "", ErrNotAMember
	}
	return role, nil
}
