// Package game gates move intents by terminal state, seat and turn before
// handing them to the rules oracle, and applies accepted moves to a session.
package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-LiveChess/internal/rules"
	"github.com/park285/Cheese-LiveChess/internal/session"
)

// RejectionKind names why a move was refused.
type RejectionKind string

const (
	GameOver    RejectionKind = "GameOver"
	NotAPlayer  RejectionKind = "NotAPlayer"
	WrongTurn   RejectionKind = "WrongTurn"
	IllegalMove RejectionKind = "IllegalMove"
)

// Rejection is returned for refused moves. The session is never mutated
// when a Rejection is returned.
type Rejection struct {
	Kind  RejectionKind
	Turn  session.Color
	Cause error
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("move rejected: %s: %v", r.Kind, r.Cause)
	}
	return "move rejected: " + string(r.Kind)
}

func (r *Rejection) Unwrap() error { return r.Cause }

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Applied describes an accepted move. Terminal is non-nil only when this
// move ended the game.
type Applied struct {
	Mover    session.Color
	Move     session.LastMove
	UCI      string
	Check    bool
	Terminal *session.Terminal
}

// Processor is the turn gate. It holds no per-room state; callers must
// serialise calls per session.
type Processor struct {
	oracle rules.Oracle
	now    func() time.Time
}

func NewProcessor(oracle rules.Oracle) *Processor {
	return &Processor{oracle: oracle, now: time.Now}
}

// Submit checks, in order: terminal state, seat, turn, legality. The first
// failing check determines the rejection.
func (p *Processor) Submit(s *session.Session, participantID string, intent rules.Intent) (*Applied, error) {
	if s.Terminal != nil {
		return nil, &Rejection{Kind: GameOver, Turn: s.Turn}
	}
	mover, seated := s.RoleOf(participantID).Color()
	if !seated {
		return nil, &Rejection{Kind: NotAPlayer, Turn: s.Turn}
	}
	if mover != s.Turn {
		return nil, &Rejection{Kind: WrongTurn, Turn: s.Turn}
	}
	res, err := p.oracle.Apply(s.MovesUCI, intent)
	if err != nil {
		return nil, &Rejection{Kind: IllegalMove, Turn: s.Turn, Cause: err}
	}

	applied := &Applied{
		Mover: mover,
		Move:  session.LastMove{From: lower(intent.From), To: lower(intent.To), SAN: res.SAN},
		UCI:   res.UCI,
		Check: res.Check,
	}
	s.Position = res.FEN
	s.Turn = mover.Opponent()
	s.MovesUCI = append(s.MovesUCI, res.UCI)
	s.MovesSAN = append(s.MovesSAN, res.SAN)
	lm := applied.Move
	s.LastMove = &lm
	s.UpdatedAt = p.now()
	if res.Terminal() {
		t := &session.Terminal{
			Checkmate: res.Checkmate,
			Stalemate: res.Stalemate,
			Draw:      res.Draw,
			Method:    res.Method,
		}
		if res.Checkmate {
			t.Winner = mover
		}
		s.Terminal = t
		cp := *t
		applied.Terminal = &cp
	}
	return applied, nil
}

// Reset restarts the game in s. Seats are untouched.
func (p *Processor) Reset(s *session.Session) {
	s.Restart(p.now())
}

func lower(sq string) string { return strings.ToLower(strings.TrimSpace(sq)) }
