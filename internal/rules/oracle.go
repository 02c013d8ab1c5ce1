// Package rules adapts github.com/corentings/chess/v2 as the legality and
// terminal-condition evaluator for live rooms.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal move")

// Intent is a requested move. Promotion is one of q, r, b, n or empty (queen).
type Intent struct {
	From      string
	To        string
	Promotion string
}

// Result is what the oracle reports for a legal move.
type Result struct {
	UCI       string
	SAN       string
	FEN       string
	Check     bool
	Checkmate bool
	Stalemate bool
	Draw      bool
	Method    string
}

// Terminal reports whether the move ended the game.
func (r Result) Terminal() bool { return r.Checkmate || r.Stalemate || r.Draw }

// Oracle evaluates a move intent against a game history (UCI moves from the
// standard start position).
type Oracle interface {
	Apply(history []string, intent Intent) (Result, error)
}

// ChessOracle is the Oracle backed by corentings/chess.
type ChessOracle struct{}

func NewChessOracle() *ChessOracle { return &ChessOracle{} }

func (ChessOracle) Apply(history []string, intent Intent) (Result, error) {
	game, err := reconstruct(history)
	if err != nil {
		return Result{}, err
	}
	from := strings.ToLower(strings.TrimSpace(intent.From))
	to := strings.ToLower(strings.TrimSpace(intent.To))
	if !ValidSquare(from) || !ValidSquare(to) {
		return Result{}, ErrIllegalMove
	}
	promo, ok := normalizePromotion(intent.Promotion)
	if !ok {
		return Result{}, ErrIllegalMove
	}

	pos := game.Position()
	uci := from + to
	if isPromotion(pos, from, to) {
		uci += promo
	}
	notation := nchess.UCINotation{}
	mv, err := notation.Decode(pos, uci)
	if err != nil {
		return Result{}, ErrIllegalMove
	}
	if err := game.Move(mv, nil); err != nil {
		return Result{}, ErrIllegalMove
	}
	moves := game.Moves()
	applied := moves[len(moves)-1]

	res := Result{
		UCI:   uci,
		SAN:   nchess.AlgebraicNotation{}.Encode(pos, applied),
		FEN:   game.FEN(),
		Check: applied.HasTag(nchess.Check),
	}
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		res.Checkmate = game.Method() == nchess.Checkmate
		// 기권 등 다른 종료 사유는 이 경로에서 발생하지 않음
	case nchess.Draw:
		if game.Method() == nchess.Stalemate {
			res.Stalemate = true
		} else {
			res.Draw = true
		}
	}
	if game.Outcome() != nchess.NoOutcome {
		res.Method = strings.ToLower(game.Method().String())
	}
	return res, nil
}

// reconstruct replays history from the start position. Replaying (rather
// than loading a FEN) keeps repetition counts intact.
func reconstruct(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, raw := range history {
		mv, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", raw, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", raw, err)
		}
	}
	return game, nil
}

func isPromotion(pos *nchess.Position, from, to string) bool {
	if to[1] != '1' && to[1] != '8' {
		return false
	}
	sq := squareOf(from)
	piece := pos.Board().Piece(sq)
	return piece != nchess.NoPiece && piece.Type() == nchess.Pawn
}

func squareOf(s string) nchess.Square {
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	return nchess.Square(rank*8 + file)
}

func normalizePromotion(p string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "q":
		return "q", true
	case "r":
		return "r", true
	case "b":
		return "b", true
	case "n":
		return "n", true
	default:
		return "", false
	}
}

// ValidSquare reports whether s is an algebraic square like e4.
func ValidSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// ValidPromotion reports whether p is an accepted promotion choice.
func ValidPromotion(p string) bool {
	_, ok := normalizePromotion(p)
	return ok
}
