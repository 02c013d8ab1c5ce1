// Package seat assigns and releases the two colored seats of a session.
package seat

import (
	"strings"

	"github.com/park285/Cheese-LiveChess/internal/session"
)

// Request is a textual color preference sent with join.
type Request string

const (
	RequestWhite Request = "white"
	RequestBlack Request = "black"
	RequestAuto  Request = "auto"
)

// ParseRequest maps client input to a Request. Anything unrecognised is auto.
func ParseRequest(s string) Request {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return RequestWhite
	case "black", "b":
		return RequestBlack
	default:
		return RequestAuto
	}
}

// Assign gives participant id a role in s. A requested color is honored
// when free; otherwise auto assignment fills White, then Black, then
// falls back to spectator. An id that already holds a seat keeps it.
// changed reports whether seat occupancy was modified.
func Assign(s *session.Session, id string, req Request) (role session.Role, changed bool) {
	if r := s.RoleOf(id); r != session.RoleSpectator {
		return r, false
	}
	switch req {
	case RequestWhite:
		if s.Seats.White == "" {
			s.Seats.Occupy(session.White, id)
			return session.RoleWhite, true
		}
	case RequestBlack:
		if s.Seats.Black == "" {
			s.Seats.Occupy(session.Black, id)
			return session.RoleBlack, true
		}
	}
	// 요청 색이 점유된 경우 거절하지 않고 자동 배정
	if s.Seats.White == "" {
		s.Seats.Occupy(session.White, id)
		return session.RoleWhite, true
	}
	if s.Seats.Black == "" {
		s.Seats.Occupy(session.Black, id)
		return session.RoleBlack, true
	}
	return session.RoleSpectator, false
}

// Release frees whatever seat id holds. Spectators release nothing, and a
// second call for the same id is a no-op.
func Release(s *session.Session, id string) (released session.Role, changed bool) {
	role := s.RoleOf(id)
	c, ok := role.Color()
	if !ok {
		return session.RoleSpectator, false
	}
	s.Seats.Vacate(c)
	return role, true
}

// Reconcile vacates seats whose holder is not live. It returns true when
// any seat was vacated.
func Reconcile(s *session.Session, live func(id string) bool) bool {
	changed := false
	for _, c := range []session.Color{session.White, session.Black} {
		if h := s.Seats.Holder(c); h != "" && !live(h) {
			s.Seats.Vacate(c)
			changed = true
		}
	}
	return changed
}
