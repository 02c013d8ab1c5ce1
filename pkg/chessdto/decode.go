package chessdto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const MaxRoomIDLen = 64

var (
	ErrMalformed     = errors.New("malformed frame")
	ErrUnknownEvent  = errors.New("unknown event type")
	ErrInvalidRoom   = errors.New("invalid roomId")
	ErrInvalidColor  = errors.New("invalid color")
	ErrMalformedMove = errors.New("malformed move")
)

// Request is one of *JoinRequest, *MoveRequest, *ResetRequest, *LeaveRequest.
type Request interface {
	Room() string
	Validate() error
	isRequest()
}

func (r *JoinRequest) Room() string  { return r.RoomID }
func (r *MoveRequest) Room() string  { return r.RoomID }
func (r *ResetRequest) Room() string { return r.RoomID }
func (r *LeaveRequest) Room() string { return r.RoomID }

func (*JoinRequest) isRequest()  {}
func (*MoveRequest) isRequest()  {}
func (*ResetRequest) isRequest() {}
func (*LeaveRequest) isRequest() {}

func (r *JoinRequest) Validate() error {
	if err := ValidateRoomID(r.RoomID); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(r.Color)) {
	case "", "auto", "white", "black":
		return nil
	}
	return ErrInvalidColor
}

// Validate checks the room first; square and promotion problems are
// reported as ErrMalformedMove so callers can treat them as illegal moves.
func (r *MoveRequest) Validate() error {
	if err := ValidateRoomID(r.RoomID); err != nil {
		return err
	}
	if !isSquare(r.From) || !isSquare(r.To) {
		return ErrMalformedMove
	}
	switch strings.ToLower(strings.TrimSpace(r.Promotion)) {
	case "", "q", "r", "b", "n":
		return nil
	}
	return ErrMalformedMove
}

func (r *ResetRequest) Validate() error { return ValidateRoomID(r.RoomID) }
func (r *LeaveRequest) Validate() error { return ValidateRoomID(r.RoomID) }

// Decode parses and validates one client frame. When the envelope parses
// but validation fails, the typed request is still returned with the error.
func Decode(raw []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var req Request
	switch env.Type {
	case EventJoin:
		req = &JoinRequest{}
	case EventMove:
		req = &MoveRequest{}
	case EventReset:
		req = &ResetRequest{}
	case EventLeaveRoom:
		req = &LeaveRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return req, req.Validate()
}

// ValidateRoomID accepts 1..MaxRoomIDLen printable, non-space characters.
func ValidateRoomID(id string) error {
	if id == "" || len(id) > MaxRoomIDLen {
		return ErrInvalidRoom
	}
	for _, r := range id {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return ErrInvalidRoom
		}
	}
	return nil
}

func isSquare(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
