package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(rdb, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func storesUnderTest(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{"memory": NewMemoryStore(), "redis": rs}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New("R1", time.Now())
			s.Seats.Occupy(White, "p1")
			if err := store.Save(ctx, s); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if s.Rev != 1 {
				t.Fatalf("expected rev 1 after first save, got %d", s.Rev)
			}
			got, err := store.Load(ctx, "R1")
			if err != nil || got == nil {
				t.Fatalf("Load: %v (nil=%v)", err, got == nil)
			}
			if got.Seats.White != "p1" || got.Position != StartFEN || got.Turn != White || got.Rev != 1 {
				t.Fatalf("unexpected session: %+v", got)
			}
			missing, err := store.Load(ctx, "nope")
			if err != nil || missing != nil {
				t.Fatalf("expected nil for unknown room, got %v %v", missing, err)
			}
		})
	}
}

func TestStoreDetectsStaleRevision(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New("R1", time.Now())
			if err := store.Save(ctx, s); err != nil {
				t.Fatalf("Save: %v", err)
			}
			a, _ := store.Load(ctx, "R1")
			b, _ := store.Load(ctx, "R1")
			a.Turn = Black
			if err := store.Save(ctx, a); err != nil {
				t.Fatalf("Save a: %v", err)
			}
			b.Seats.Occupy(Black, "p2")
			if err := store.Save(ctx, b); !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestStoreDeleteAndRooms(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"b", "a"} {
				if err := store.Save(ctx, New(id, time.Now())); err != nil {
					t.Fatalf("Save %s: %v", id, err)
				}
			}
			rooms, err := store.Rooms(ctx)
			if err != nil || len(rooms) != 2 || rooms[0] != "a" || rooms[1] != "b" {
				t.Fatalf("Rooms: %v %v", rooms, err)
			}
			if err := store.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			rooms, _ = store.Rooms(ctx)
			if len(rooms) != 1 || rooms[0] != "b" {
				t.Fatalf("expected [b], got %v", rooms)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := New("R1", time.Now())
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.MovesUCI = append(s.MovesUCI, "e2e4")
	got, _ := store.Load(ctx, "R1")
	if len(got.MovesUCI) != 0 {
		t.Fatalf("store shares memory with caller: %v", got.MovesUCI)
	}
}

func TestRedisStoreExpiredRoomsArePruned(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, New("R1", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.Del(roomKey("R1"))
	rooms, err := store.Rooms(ctx)
	if err != nil || len(rooms) != 0 {
		t.Fatalf("expected pruned index, got %v %v", rooms, err)
	}
}

func TestRestartKeepsSeats(t *testing.T) {
	s := New("R1", time.Now())
	s.Seats.Occupy(White, "p1")
	s.Seats.Occupy(Black, "p2")
	s.MovesUCI = []string{"e2e4"}
	s.LastMove = &LastMove{From: "e2", To: "e4", SAN: "e4"}
	s.Terminal = &Terminal{Draw: true}
	s.Turn = Black
	old := s.GameID
	s.Restart(time.Now())
	if s.Seats.White != "p1" || s.Seats.Black != "p2" {
		t.Fatalf("seats changed: %+v", s.Seats)
	}
	if s.LastMove != nil || s.Terminal != nil || s.Turn != White || s.Position != StartFEN || len(s.MovesUCI) != 0 {
		t.Fatalf("restart did not reset game: %+v", s)
	}
	if s.GameID == old {
		t.Fatalf("expected a fresh game id")
	}
}
