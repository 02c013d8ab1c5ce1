package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-LiveChess/internal/session"
)

// ResultToken is "white", "black", "draw", or "" while the game is live.
func ResultToken(s *session.Session) string {
	if s == nil || s.Terminal == nil {
		return ""
	}
	if s.Terminal.Checkmate {
		return string(s.Terminal.Winner)
	}
	return "draw"
}

func mapResultToPGN(result string) string {
	switch result {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders the session's game. Live games get result "*".
func BuildPGN(s *session.Session) string {
	if s == nil {
		return ""
	}
	pgnResult := mapResultToPGN(ResultToken(s))
	date := s.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"LiveChess\"]\n")
	fmt.Fprintf(&b, "[Site \"room:%s\"]\n", sanitizePGN(s.Room))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", seatName(s.Seats.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", seatName(s.Seats.Black))
	if s.Terminal != nil && s.Terminal.Method != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(s.Terminal.Method))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	for i := 0; i < len(s.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(s.MovesSAN[i]))
		if i+1 < len(s.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(s.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func seatName(id string) string {
	if strings.TrimSpace(id) == "" {
		return "?"
	}
	return sanitizePGN(id)
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
