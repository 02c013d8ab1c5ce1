// Package room is the per-room serialization point. Every join, move,
// reset and leave for a room runs under that room's lock, including the
// broadcasts it causes, so all members observe changes in apply order.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LiveChess/internal/game"
	"github.com/park285/Cheese-LiveChess/internal/msgcat"
	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/internal/rules"
	"github.com/park285/Cheese-LiveChess/internal/seat"
	"github.com/park285/Cheese-LiveChess/internal/session"
	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

// Participant is one connected member. Send must not block; a participant
// that cannot accept a frame returns an error and is expected to drop its
// own connection.
type Participant interface {
	ID() string
	Send(ev chessdto.Event) error
}

// Archiver stores finished games.
type Archiver interface {
	SaveResult(ctx context.Context, s *session.Session) error
}

// Publisher announces finished games.
type Publisher interface {
	GameFinished(ctx context.Context, s *session.Session) error
}

const maxSaveAttempts = 3

type Option func(*Coordinator)

func WithArchiver(a Archiver) Option   { return func(c *Coordinator) { c.archiver = a } }
func WithPublisher(p Publisher) Option { return func(c *Coordinator) { c.publisher = p } }
func WithMessages(m *msgcat.Catalog) Option {
	return func(c *Coordinator) { c.msgs = m }
}
func WithIdleTTL(d time.Duration) Option { return func(c *Coordinator) { c.idleTTL = d } }
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

type Coordinator struct {
	store     session.Store
	proc      *game.Processor
	msgs      *msgcat.Catalog
	archiver  Archiver
	publisher Publisher

	idleTTL     time.Duration
	hookTimeout time.Duration
	now         func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomState
	// participant id -> room holding its seat
	seated map[string]string

	hooks sync.WaitGroup
}

type roomState struct {
	mu         sync.Mutex
	id         string
	members    []Participant
	emptySince time.Time
	evicted    bool
}

func (r *roomState) has(id string) bool {
	for _, m := range r.members {
		if m.ID() == id {
			return true
		}
	}
	return false
}

func (r *roomState) add(p Participant) {
	if r.has(p.ID()) {
		return
	}
	r.members = append(r.members, p)
	r.emptySince = time.Time{}
}

func (r *roomState) remove(id string, now time.Time) bool {
	for i, m := range r.members {
		if m.ID() == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			if len(r.members) == 0 {
				r.emptySince = now
			}
			return true
		}
	}
	return false
}

func New(store session.Store, oracle rules.Oracle, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		proc:        game.NewProcessor(oracle),
		idleTTL:     10 * time.Minute,
		hookTimeout: 10 * time.Second,
		now:         time.Now,
		rooms:       make(map[string]*roomState),
		seated:      make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// lockRoom returns the room locked. With create=false a missing room
// yields nil. A room evicted between lookup and lock is retried.
func (c *Coordinator) lockRoom(id string, create bool) *roomState {
	for {
		c.mu.Lock()
		r, ok := c.rooms[id]
		if !ok {
			if !create {
				c.mu.Unlock()
				return nil
			}
			r = &roomState{id: id, emptySince: c.now()}
			c.rooms[id] = r
		}
		c.mu.Unlock()

		r.mu.Lock()
		if !r.evicted {
			return r
		}
		r.mu.Unlock()
	}
}

// mutate loads (or lazily creates) the session and applies fn. The session
// is saved only when fn reports a change. Revision conflicts are retried
// against a fresh load.
func (c *Coordinator) mutate(ctx context.Context, room string, fn func(s *session.Session) (bool, error)) (*session.Session, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		s, err := c.store.Load(ctx, room)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", room, err)
		}
		if s == nil {
			s = session.New(room, c.now())
			if err := c.store.Save(ctx, s); err != nil {
				if errors.Is(err, session.ErrConflict) {
					continue
				}
				return nil, fmt.Errorf("create session %s: %w", room, err)
			}
			obslog.L().Info("room_created", zap.String("room", room), zap.String("game_id", s.GameID))
		}
		changed, err := fn(s)
		if err != nil {
			return s, err
		}
		if !changed {
			return s, nil
		}
		if err := c.store.Save(ctx, s); err != nil {
			if errors.Is(err, session.ErrConflict) {
				obslog.L().Warn("room_save_conflict", zap.String("room", room), zap.Int("attempt", attempt+1))
				continue
			}
			return nil, fmt.Errorf("save session %s: %w", room, err)
		}
		return s, nil
	}
	return nil, session.ErrConflict
}

func (c *Coordinator) broadcast(r *roomState, ev chessdto.Event) {
	for _, m := range r.members {
		c.deliver(r.id, m, ev)
	}
}

func (c *Coordinator) deliver(room string, p Participant, ev chessdto.Event) {
	if err := p.Send(ev); err != nil {
		obslog.L().Warn("room_deliver_failed",
			zap.String("room", room),
			zap.String("participant", p.ID()),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}

// claimSeat reserves roomID as the only room where pid may hold a seat.
// ok is false when pid is already seated elsewhere; fresh reports a new
// reservation.
func (c *Coordinator) claimSeat(pid, roomID string) (ok, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, held := c.seated[pid]
	switch {
	case !held:
		c.seated[pid] = roomID
		return true, true
	case cur == roomID:
		return true, false
	default:
		return false, false
	}
}

func (c *Coordinator) releaseSeat(pid, roomID string) {
	c.mu.Lock()
	if c.seated[pid] == roomID {
		delete(c.seated, pid)
	}
	c.mu.Unlock()
}

// SeatedIn returns the room where pid holds a seat, if any.
func (c *Coordinator) SeatedIn(pid string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.seated[pid]
	return id, ok
}

// Join adds p to the room and assigns it a role. The joiner receives its
// role, then a full snapshot, then gameOver if the game already ended.
// Seat changes are broadcast to every member. Joining a room p already
// belongs to re-sends role and snapshot without taking another seat.
// A participant seated in another room joins as a spectator.
func (c *Coordinator) Join(ctx context.Context, roomID string, p Participant, req seat.Request) (session.Role, error) {
	if err := chessdto.ValidateRoomID(roomID); err != nil {
		return session.RoleSpectator, err
	}
	r := c.lockRoom(roomID, true)
	defer r.mu.Unlock()

	rejoin := r.has(p.ID())
	r.add(p)
	mayHold, fresh := c.claimSeat(p.ID(), roomID)

	var (
		role         session.Role
		seatsChanged bool
	)
	s, err := c.mutate(ctx, roomID, func(s *session.Session) (bool, error) {
		// 이전 프로세스가 남긴 좌석은 현재 멤버가 아니면 비운다
		reconciled := seat.Reconcile(s, r.has)
		if !mayHold {
			// 다른 방에서 좌석을 가진 참가자는 관전만
			_, released := seat.Release(s, p.ID())
			role = session.RoleSpectator
			seatsChanged = reconciled || released
			return seatsChanged, nil
		}
		var assigned bool
		role, assigned = seat.Assign(s, p.ID(), req)
		seatsChanged = reconciled || assigned
		return seatsChanged, nil
	})
	if err != nil {
		if !rejoin {
			r.remove(p.ID(), c.now())
		}
		if fresh {
			c.releaseSeat(p.ID(), roomID)
		}
		return session.RoleSpectator, err
	}
	if mayHold && role == session.RoleSpectator {
		c.releaseSeat(p.ID(), roomID)
	}

	snap := s.Snapshot()
	c.deliver(roomID, p, colorAssignedEvent(roomID, role))
	if seatsChanged {
		c.broadcast(r, playersEvent(snap))
	}
	c.deliver(roomID, p, stateEvent(snap, true))
	if snap.Terminal != nil {
		c.deliver(roomID, p, gameOverEvent(roomID, snap.Terminal))
	}

	obslog.L().Info("room_join",
		zap.String("room", roomID),
		zap.String("participant", p.ID()),
		zap.String("requested", string(req)),
		zap.String("role", string(role)),
		zap.Bool("rejoin", rejoin),
		zap.Int("members", len(r.members)))
	return role, nil
}

// Move submits a move intent. Rejections go to p only and leave the
// session untouched; an applied move is broadcast to all members, followed
// by gameOver when it ended the game.
func (c *Coordinator) Move(ctx context.Context, roomID string, p Participant, intent rules.Intent) (*game.Applied, error) {
	if err := chessdto.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	r := c.lockRoom(roomID, true)
	defer r.mu.Unlock()

	var applied *game.Applied
	s, err := c.mutate(ctx, roomID, func(s *session.Session) (bool, error) {
		a, err := c.proc.Submit(s, p.ID(), intent)
		if err != nil {
			return false, err
		}
		applied = a
		return true, nil
	})
	if err != nil {
		if rej, ok := game.AsRejection(err); ok {
			c.Reject(roomID, p, rej.Kind, rej.Turn, intent)
		}
		return nil, err
	}

	snap := s.Snapshot()
	c.broadcast(r, stateEvent(snap, false))
	obslog.L().Info("room_move",
		zap.String("room", roomID),
		zap.String("participant", p.ID()),
		zap.String("uci", applied.UCI),
		zap.String("san", applied.Move.SAN),
		zap.Int("ply", len(s.MovesUCI)))

	if applied.Terminal != nil {
		c.broadcast(r, gameOverEvent(roomID, applied.Terminal))
		obslog.L().Info("room_game_over",
			zap.String("room", roomID),
			zap.String("game_id", s.GameID),
			zap.String("winner", string(applied.Terminal.Winner)),
			zap.String("method", applied.Terminal.Method))
		c.finish(s.Clone())
	}
	return applied, nil
}

// Reject reports a refused move to p alone. It is also used by the
// transport for intents that fail validation before reaching the gate.
func (c *Coordinator) Reject(roomID string, p Participant, kind game.RejectionKind, turn session.Color, intent rules.Intent) {
	msg := c.msgs.Text("reject."+string(kind), map[string]any{
		"Turn": string(turn),
		"From": intent.From,
		"To":   intent.To,
	})
	c.deliver(roomID, p, moveRejectedEvent(roomID, string(kind), msg))
	obslog.L().Info("room_move_rejected",
		zap.String("room", roomID),
		zap.String("participant", p.ID()),
		zap.String("reason", string(kind)),
		zap.String("from", intent.From),
		zap.String("to", intent.To))
}

// Reset restarts the room's game. Seats are kept; every member receives
// the start position with current seat occupancy.
func (c *Coordinator) Reset(ctx context.Context, roomID string, p Participant) error {
	if err := chessdto.ValidateRoomID(roomID); err != nil {
		return err
	}
	r := c.lockRoom(roomID, true)
	defer r.mu.Unlock()

	s, err := c.mutate(ctx, roomID, func(s *session.Session) (bool, error) {
		c.proc.Reset(s)
		return true, nil
	})
	if err != nil {
		return err
	}
	c.broadcast(r, stateEvent(s.Snapshot(), true))

	by := ""
	if p != nil {
		by = p.ID()
	}
	obslog.L().Info("room_reset", zap.String("room", roomID), zap.String("by", by), zap.String("game_id", s.GameID))
	return nil
}

// Leave removes p from the room and frees its seat. Leaving a room p is
// not in is a no-op. The room is marked idle when its last member leaves.
func (c *Coordinator) Leave(ctx context.Context, roomID string, p Participant) error {
	r := c.lockRoom(roomID, false)
	if r == nil {
		return nil
	}
	defer r.mu.Unlock()
	if !r.remove(p.ID(), c.now()) {
		return nil
	}
	c.releaseSeat(p.ID(), roomID)

	var released session.Role
	s, err := c.mutate(ctx, roomID, func(s *session.Session) (bool, error) {
		role, changed := seat.Release(s, p.ID())
		released = role
		return changed, nil
	})
	if err != nil {
		return err
	}
	if released != session.RoleSpectator {
		c.broadcast(r, playersEvent(s.Snapshot()))
	}
	obslog.L().Info("room_leave",
		zap.String("room", roomID),
		zap.String("participant", p.ID()),
		zap.String("released", string(released)),
		zap.Int("members", len(r.members)))
	return nil
}

// finish runs the archive and publish hooks outside the room lock.
func (c *Coordinator) finish(s *session.Session) {
	if c.archiver == nil && c.publisher == nil {
		return
	}
	c.hooks.Add(1)
	go func() {
		defer c.hooks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.hookTimeout)
		defer cancel()
		if c.archiver != nil {
			if err := c.archiver.SaveResult(ctx, s); err != nil {
				obslog.L().Error("room_archive_failed", zap.String("room", s.Room), zap.String("game_id", s.GameID), zap.Error(err))
			}
		}
		if c.publisher != nil {
			if err := c.publisher.GameFinished(ctx, s); err != nil {
				obslog.L().Warn("room_publish_failed", zap.String("room", s.Room), zap.String("game_id", s.GameID), zap.Error(err))
			}
		}
	}()
}

// Wait blocks until in-flight finish hooks complete.
func (c *Coordinator) Wait() { c.hooks.Wait() }

// Sweep evicts rooms that have had no members for at least the idle TTL,
// deleting their sessions from the store. It returns the evicted ids.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) []string {
	c.mu.Lock()
	candidates := make([]*roomState, 0, len(c.rooms))
	for _, r := range c.rooms {
		candidates = append(candidates, r)
	}
	c.mu.Unlock()

	var evicted []string
	for _, r := range candidates {
		r.mu.Lock()
		if r.evicted || len(r.members) > 0 || r.emptySince.IsZero() || now.Sub(r.emptySince) < c.idleTTL {
			r.mu.Unlock()
			continue
		}
		r.evicted = true
		c.mu.Lock()
		delete(c.rooms, r.id)
		c.mu.Unlock()
		if err := c.store.Delete(ctx, r.id); err != nil {
			obslog.L().Warn("room_evict_store_failed", zap.String("room", r.id), zap.Error(err))
		}
		r.mu.Unlock()
		evicted = append(evicted, r.id)
		obslog.L().Info("room_evict", zap.String("room", r.id), zap.Duration("idle", now.Sub(r.emptySince)))
	}
	sort.Strings(evicted)
	return evicted
}

// Run sweeps idle rooms every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep(ctx, c.now())
		}
	}
}
