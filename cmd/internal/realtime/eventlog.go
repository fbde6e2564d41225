package realtime

import (
	"encoding/json"
	"sync"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// durableKinds are the room events retained for the pull transport's since
// cursor. Everything else is ephemeral and never consumes a sequence number,
// so the retained stream stays contiguous for polling clients.
var durableKinds = map[string]struct{}{
	v1.TypeMessageNew:     {},
	v1.TypeMessageEdited:  {},
	v1.TypeMessageDeleted: {},
}

// DurableKind reports whether eventType is retained in the room log.
func DurableKind(eventType string) bool {
	_, ok := durableKinds[eventType]
	return ok
}

// EventLog holds the per-room retained event window and the per-room sequence
// counters. All engine state is in-memory and reconstructible from the CRUD
// layer on restart.
type EventLog struct {
	mu    sync.RWMutex
	rooms map[string]*roomLog
}

type roomLog struct {
	mu     sync.Mutex
	seq    int64
	events []v1.Envelope // ordered by seq, capped at roomLogCap
}

// NewEventLog constructs an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{rooms: make(map[string]*roomLog)}
}

func (e *EventLog) room(roomID string) *roomLog {
	e.mu.RLock()
	rl, ok := e.rooms[roomID]
	e.mu.RUnlock()
	if ok {
		return rl
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rl, ok = e.rooms[roomID]; ok {
		return rl
	}
	rl = &roomLog{}
	e.rooms[roomID] = rl
	return rl
}

// withRoom runs fn while holding the room's critical section. Sequence
// allocation and push delivery run under the same lock so two concurrent
// broadcasters never produce out-of-order or duplicate sequence numbers.
func (e *EventLog) withRoom(roomID string, fn func(rl *roomLog)) {
	rl := e.room(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	fn(rl)
}

// append assigns the next seq and retains the envelope. Caller holds rl.mu.
func (rl *roomLog) append(eventType, roomID string, payload json.RawMessage, ts time.Time) v1.Envelope {
	rl.seq++
	env := v1.Envelope{
		V:       v1.Version,
		Type:    eventType,
		ID:      NewEnvelopeID(ts),
		RoomID:  roomID,
		Seq:     rl.seq,
		TS:      ts,
		Payload: payload,
	}
	rl.events = append(rl.events, env)
	if len(rl.events) > roomLogCap {
		rl.events = rl.events[len(rl.events)-roomLogCap:]
	}
	return env
}

// CurrentSeq returns the room's last assigned sequence number.
func (e *EventLog) CurrentSeq(roomID string) int64 {
	e.mu.RLock()
	rl, ok := e.rooms[roomID]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.seq
}

// Since returns the retained events of a room with seq > after, in seq order.
func (e *EventLog) Since(roomID string, after int64) []v1.Envelope {
	e.mu.RLock()
	rl, ok := e.rooms[roomID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Events are appended in seq order; find the first one past the cursor.
	idx := len(rl.events)
	for i, ev := range rl.events {
		if ev.Seq > after {
			idx = i
			break
		}
	}
	if idx == len(rl.events) {
		return nil
	}
	out := make([]v1.Envelope, len(rl.events)-idx)
	copy(out, rl.events[idx:])
	return out
}
