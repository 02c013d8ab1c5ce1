package session

import (
	"time"

	"github.com/google/uuid"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Short returns the FEN side-to-move letter.
func (c Color) Short() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// Role is what a participant is allowed to do in a room.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// Color maps a seated role to its side. ok is false for spectators.
func (r Role) Color() (Color, bool) {
	switch r {
	case RoleWhite:
		return White, true
	case RoleBlack:
		return Black, true
	default:
		return "", false
	}
}

// RoleFor maps a side to its seated role.
func RoleFor(c Color) Role {
	if c == Black {
		return RoleBlack
	}
	return RoleWhite
}

// Seats holds the participant id occupying each color ("" when empty).
type Seats struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}

func (s Seats) Holder(c Color) string {
	if c == Black {
		return s.Black
	}
	return s.White
}

func (s *Seats) set(c Color, id string) {
	if c == Black {
		s.Black = id
		return
	}
	s.White = id
}

// Occupy seats id on color. It does not check occupancy.
func (s *Seats) Occupy(c Color, id string) { s.set(c, id) }

// Vacate empties the seat of color.
func (s *Seats) Vacate(c Color) { s.set(c, "") }

// LastMove is the last applied move.
type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
}

// Terminal describes a finished game. Winner is empty unless checkmate.
type Terminal struct {
	Checkmate bool   `json:"checkmate"`
	Stalemate bool   `json:"stalemate"`
	Draw      bool   `json:"draw"`
	Winner    Color  `json:"winner,omitempty"`
	Method    string `json:"method,omitempty"`
}

// Session is the authoritative record of one room.
type Session struct {
	Room      string    `json:"room"`
	GameID    string    `json:"game_id"`
	Position  string    `json:"fen"`
	Turn      Color     `json:"turn"`
	Seats     Seats     `json:"seats"`
	MovesUCI  []string  `json:"moves_uci"`
	MovesSAN  []string  `json:"moves_san"`
	LastMove  *LastMove `json:"last_move,omitempty"`
	Terminal  *Terminal `json:"terminal,omitempty"`
	Rev       int64     `json:"rev"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a session in the standard start position with empty seats.
func New(room string, now time.Time) *Session {
	s := &Session{Room: room}
	s.Restart(now)
	return s
}

// Restart reinitialises the game while keeping seat occupancy.
func (s *Session) Restart(now time.Time) {
	s.GameID = uuid.NewString()
	s.Position = StartFEN
	s.Turn = White
	s.MovesUCI = []string{}
	s.MovesSAN = []string{}
	s.LastMove = nil
	s.Terminal = nil
	s.StartedAt = now
	s.UpdatedAt = now
}

// RoleOf returns the seat held by participant id, or RoleSpectator.
func (s *Session) RoleOf(id string) Role {
	if id == "" {
		return RoleSpectator
	}
	switch id {
	case s.Seats.White:
		return RoleWhite
	case s.Seats.Black:
		return RoleBlack
	}
	return RoleSpectator
}

// Occupancy reports which seats are taken.
func (s *Session) Occupancy() (white, black bool) {
	return s.Seats.White != "", s.Seats.Black != ""
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.MovesUCI = append([]string{}, s.MovesUCI...)
	cp.MovesSAN = append([]string{}, s.MovesSAN...)
	if s.LastMove != nil {
		lm := *s.LastMove
		cp.LastMove = &lm
	}
	if s.Terminal != nil {
		t := *s.Terminal
		cp.Terminal = &t
	}
	return &cp
}

// Snapshot is the broadcastable view of a session.
type Snapshot struct {
	Room     string
	FEN      string
	Turn     Color
	LastMove *LastMove
	White    bool
	Black    bool
	Terminal *Terminal
}

// Snapshot captures the current broadcastable state.
func (s *Session) Snapshot() Snapshot {
	cp := s.Clone()
	w, b := cp.Occupancy()
	return Snapshot{
		Room:     cp.Room,
		FEN:      cp.Position,
		Turn:     cp.Turn,
		LastMove: cp.LastMove,
		White:    w,
		Black:    b,
		Terminal: cp.Terminal,
	}
}
