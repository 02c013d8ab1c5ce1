package session

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store persists session records keyed by room.
//
// Save is optimistic: the stored revision must equal s.Rev (zero for a new
// room), otherwise ErrConflict is returned. On success s.Rev is advanced.
type Store interface {
	Load(ctx context.Context, room string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, room string) error
	Rooms(ctx context.Context) ([]string, error)
	Close() error
}

var (
	ErrConflict    = errf("session revision conflict")
	ErrInvalidRoom = errf("invalid room id")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }

// MemoryStore keeps sessions in process memory. Records are copied on the
// way in and out so callers never share mutable state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, room string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rooms[strings.TrimSpace(room)]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || strings.TrimSpace(s.Room) == "" {
		return ErrInvalidRoom
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur int64
	if prev, ok := m.rooms[s.Room]; ok {
		cur = prev.Rev
	}
	if cur != s.Rev {
		return ErrConflict
	}
	s.Rev++
	m.rooms[s.Room] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, room string) error {
	m.mu.Lock()
	delete(m.rooms, strings.TrimSpace(room))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Rooms(_ context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.rooms))
	for k := range m.rooms {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
