package chessdto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeKnownEvents(t *testing.T) {
	req, err := Decode([]byte(`{"type":"join","data":{"roomId":"room1","color":"auto"}}`))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if j, ok := req.(*JoinRequest); !ok || j.RoomID != "room1" || j.Color != "auto" {
		t.Fatalf("unexpected join: %#v", req)
	}

	req, err = Decode([]byte(`{"type":"move","data":{"roomId":"room1","from":"e2","to":"e4","promotion":"q"}}`))
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if m, ok := req.(*MoveRequest); !ok || m.From != "e2" || m.To != "e4" {
		t.Fatalf("unexpected move: %#v", req)
	}

	for _, raw := range []string{
		`{"type":"reset","data":{"roomId":"room1"}}`,
		`{"type":"leaveRoom","data":{"roomId":"room1"}}`,
	} {
		if req, err := Decode([]byte(raw)); err != nil || req.Room() != "room1" {
			t.Fatalf("%s: %v", raw, err)
		}
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := map[string]error{
		`not json`:                                            ErrMalformed,
		`{"type":"chat","data":{"roomId":"r"}}`:               ErrUnknownEvent,
		`{"type":"join"}`:                                     ErrMalformed,
		`{"type":"join","data":{"color":"white"}}`:            ErrInvalidRoom,
		`{"type":"join","data":{"roomId":"r","color":1}}`:     ErrMalformed,
		`{"type":"join","data":{"roomId":"r","color":"red"}}`: ErrInvalidColor,
		`{"type":"reset","data":{"roomId":"has space"}}`:      ErrInvalidRoom,
	}
	for raw, want := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", raw, want, err)
		}
	}
}

func TestDecodeMalformedMoveKeepsRequest(t *testing.T) {
	req, err := Decode([]byte(`{"type":"move","data":{"roomId":"r","from":"e9","to":"e4"}}`))
	if !errors.Is(err, ErrMalformedMove) {
		t.Fatalf("expected ErrMalformedMove, got %v", err)
	}
	if req == nil || req.Room() != "r" {
		t.Fatalf("typed request should be returned for routing, got %#v", req)
	}
	if _, err := Decode([]byte(`{"type":"move","data":{"roomId":"r","from":"e7","to":"e8","promotion":"k"}}`)); !errors.Is(err, ErrMalformedMove) {
		t.Fatalf("expected ErrMalformedMove for bad promotion, got %v", err)
	}
}

func TestValidateRoomIDLength(t *testing.T) {
	if err := ValidateRoomID(strings.Repeat("x", MaxRoomIDLen)); err != nil {
		t.Fatalf("max length rejected: %v", err)
	}
	if err := ValidateRoomID(strings.Repeat("x", MaxRoomIDLen+1)); !errors.Is(err, ErrInvalidRoom) {
		t.Fatalf("expected ErrInvalidRoom, got %v", err)
	}
}

func TestStateEncodesNullLastMove(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventState, Data: State{FEN: "x", Turn: "w", Players: &Players{White: true}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"lastMove":null`) || !strings.Contains(s, `"players":{"white":true,"black":false}`) {
		t.Fatalf("unexpected encoding: %s", s)
	}
}
