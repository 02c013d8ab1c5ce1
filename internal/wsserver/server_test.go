package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-LiveChess/internal/room"
	"github.com/park285/Cheese-LiveChess/internal/rules"
	"github.com/park285/Cheese-LiveChess/internal/session"
	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

func startServer(t *testing.T, cfg Config) (*httptest.Server, *Server) {
	t.Helper()
	coord := room.New(session.NewMemoryStore(), rules.NewChessOracle())
	srv := New(coord, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseAll()
		ts.Close()
	})
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ chessdto.EventType, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, chessdto.Event{Type: typ, Data: data}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// await reads frames until one of type typ arrives and decodes its data.
func await(t *testing.T, c *websocket.Conn, typ chessdto.EventType, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type != typ {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return
	}
}

func TestJoinMoveAndDisconnect(t *testing.T) {
	ts, _ := startServer(t, Config{})
	a, b := dial(t, ts), dial(t, ts)

	var ca chessdto.ColorAssigned
	send(t, a, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "room1", Color: "auto"})
	await(t, a, chessdto.EventColorAssigned, &ca)
	if ca.Color != "white" || ca.RoomID != "room1" {
		t.Fatalf("A: %+v", ca)
	}
	var st chessdto.State
	await(t, a, chessdto.EventState, &st)

	send(t, b, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "room1", Color: "white"})
	await(t, b, chessdto.EventColorAssigned, &ca)
	if ca.Color != "black" {
		t.Fatalf("B: %+v", ca)
	}
	await(t, b, chessdto.EventState, nil)
	var pl chessdto.Players
	await(t, a, chessdto.EventPlayers, &pl)
	if !pl.White || !pl.Black {
		t.Fatalf("players: %+v", pl)
	}

	send(t, a, chessdto.EventMove, chessdto.MoveRequest{RoomID: "room1", From: "e2", To: "e4", Promotion: "q"})
	for _, c := range []*websocket.Conn{a, b} {
		await(t, c, chessdto.EventState, &st)
		if st.Turn != "b" || st.LastMove == nil || st.LastMove.SAN != "e4" {
			t.Fatalf("state after e4: %+v", st)
		}
	}

	var rej chessdto.MoveRejected
	send(t, a, chessdto.EventMove, chessdto.MoveRequest{RoomID: "room1", From: "d2", To: "d4"})
	await(t, a, chessdto.EventMoveRejected, &rej)
	if rej.Reason != "WrongTurn" || rej.Message == "" {
		t.Fatalf("rejection: %+v", rej)
	}

	if err := a.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	await(t, b, chessdto.EventPlayers, &pl)
	if pl.White || !pl.Black {
		t.Fatalf("white seat not released on disconnect: %+v", pl)
	}
}

func TestOneConnectionOneSeat(t *testing.T) {
	ts, _ := startServer(t, Config{})
	a := dial(t, ts)

	var ca chessdto.ColorAssigned
	send(t, a, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "r1", Color: "auto"})
	await(t, a, chessdto.EventColorAssigned, &ca)
	if ca.Color != "white" {
		t.Fatalf("r1: %+v", ca)
	}
	send(t, a, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "r2", Color: "auto"})
	await(t, a, chessdto.EventColorAssigned, &ca)
	if ca.RoomID != "r2" || ca.Color != "spectator" {
		t.Fatalf("second room must be watch-only: %+v", ca)
	}

	send(t, a, chessdto.EventLeaveRoom, chessdto.LeaveRequest{RoomID: "r1"})
	send(t, a, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "r2", Color: "black"})
	await(t, a, chessdto.EventColorAssigned, &ca)
	if ca.RoomID != "r2" || ca.Color != "black" {
		t.Fatalf("seat after leaving r1: %+v", ca)
	}
}

func TestMalformedInput(t *testing.T) {
	ts, _ := startServer(t, Config{AllowRoom: func(r string) bool { return r != "closed" }})
	c := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var e chessdto.ErrorPayload
	await(t, c, chessdto.EventError, &e)
	if e.Code != "bad_request" || !strings.HasPrefix(e.Message, "Bad request: ") {
		t.Fatalf("error: %+v", e)
	}

	send(t, c, chessdto.EventMove, chessdto.MoveRequest{RoomID: "r", From: "z9", To: "e4"})
	var rej chessdto.MoveRejected
	await(t, c, chessdto.EventMoveRejected, &rej)
	if rej.Reason != "IllegalMove" {
		t.Fatalf("malformed move: %+v", rej)
	}

	send(t, c, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "closed"})
	await(t, c, chessdto.EventError, &e)
	if e.Code != "room_not_allowed" || e.Message != "Room closed is not open." {
		t.Fatalf("error: %+v", e)
	}

	// connection stays usable
	send(t, c, chessdto.EventJoin, chessdto.JoinRequest{RoomID: "r"})
	await(t, c, chessdto.EventColorAssigned, nil)
}

func TestForbiddenOrigin(t *testing.T) {
	ts, _ := startServer(t, Config{AllowedOrigins: []string{"https://chess.example"}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}}})
	if err == nil {
		t.Fatalf("dial with forbidden origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestSendFullQueueKillsConnection(t *testing.T) {
	cancelled := false
	c := newConn("slow", nil, 1, func() { cancelled = true })
	ev := chessdto.Event{Type: chessdto.EventPlayers, Data: chessdto.Players{}}
	if err := c.Send(ev); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send(ev); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !c.closed() || !cancelled {
		t.Fatalf("slow consumer not killed")
	}
	if err := c.Send(ev); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
