package room

import (
	"context"
	"sort"
	"time"

	"github.com/park285/Cheese-LiveChess/internal/session"
)

// Summary is the admin view of one room.
type Summary struct {
	RoomID    string    `json:"roomId"`
	Members   int       `json:"members"`
	White     bool      `json:"white"`
	Black     bool      `json:"black"`
	Idle      bool      `json:"idle"`
	IdleSince time.Time `json:"idleSince,omitempty"`
}

// Detail is a summary plus a copy of the stored session.
type Detail struct {
	Summary
	Session *session.Session
}

func (c *Coordinator) activeSummary(id string) (Summary, bool) {
	c.mu.Lock()
	r, ok := c.rooms[id]
	c.mu.Unlock()
	if !ok {
		return Summary{RoomID: id}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return Summary{RoomID: id}, false
	}
	sum := Summary{RoomID: id, Members: len(r.members)}
	if len(r.members) == 0 {
		sum.Idle = true
		sum.IdleSince = r.emptySince
	}
	return sum, true
}

// Rooms lists rooms known to the coordinator or the store, sorted by id.
// It never creates rooms.
func (c *Coordinator) Rooms(ctx context.Context) ([]Summary, error) {
	ids, err := c.store.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	c.mu.Lock()
	for id := range c.rooms {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(ids)

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sum, active := c.activeSummary(id)
		if !active {
			sum.Idle = true
		}
		s, err := c.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil && !active {
			continue
		}
		if s != nil {
			sum.White, sum.Black = s.Occupancy()
		}
		out = append(out, sum)
	}
	return out, nil
}

// Inspect returns a copy of the room's session and summary. found is false
// when neither the coordinator nor the store knows the room.
func (c *Coordinator) Inspect(ctx context.Context, roomID string) (*Detail, bool, error) {
	sum, active := c.activeSummary(roomID)
	s, err := c.store.Load(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, nil
	}
	if !active {
		sum.Idle = true
	}
	sum.White, sum.Black = s.Occupancy()
	return &Detail{Summary: sum, Session: s}, true, nil
}
