package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

func main() {
	url := pflag.String("url", envDefault("ROOMCHECK_URL", "ws://localhost:3001/ws"), "websocket endpoint")
	roomID := pflag.String("room", "room1", "room to join")
	color := pflag.String("color", "auto", "requested color: white|black|auto")
	move := pflag.String("move", "", "optional move to play after joining, e.g. e2e4 or e7e8q")
	wait := pflag.Duration("wait", 5*time.Second, "how long to print incoming events")
	pflag.Parse()

	join := chessdto.JoinRequest{RoomID: *roomID, Color: *color}
	if err := join.Validate(); err != nil {
		log.Fatalf("invalid join: %v", err)
	}
	var mv *chessdto.MoveRequest
	if *move != "" {
		m, err := parseMove(*roomID, *move)
		if err != nil {
			log.Fatalf("invalid --move: %v", err)
		}
		mv = m
	}

	ctx, cancel := context.WithTimeout(context.Background(), *wait+10*time.Second)
	defer cancel()

	dctx, dcancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dctx, *url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	dcancel()
	if err != nil {
		log.Fatalf("dial %s: %v", *url, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	log.Printf("connected to %s", *url)

	if err := wsjson.Write(ctx, conn, chessdto.Event{Type: chessdto.EventJoin, Data: join}); err != nil {
		log.Fatalf("send join: %v", err)
	}

	rctx, rcancel := context.WithTimeout(ctx, *wait)
	defer rcancel()
	moved := false
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(rctx, conn, &env); err != nil {
			if rctx.Err() != nil {
				return
			}
			log.Printf("read: %v", err)
			return
		}
		fmt.Printf("%-14s %s\n", env.Type, compact(env.Data))

		// 첫 state 를 받은 뒤에 수를 둔다
		if mv != nil && !moved && env.Type == chessdto.EventState {
			moved = true
			if err := wsjson.Write(ctx, conn, chessdto.Event{Type: chessdto.EventMove, Data: mv}); err != nil {
				log.Printf("send move: %v", err)
				return
			}
		}
	}
}

func parseMove(roomID, s string) (*chessdto.MoveRequest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return nil, fmt.Errorf("expected uci like e2e4, got %q", s)
	}
	m := &chessdto.MoveRequest{RoomID: roomID, From: s[0:2], To: s[2:4], Promotion: "q"}
	if len(s) == 5 {
		m.Promotion = s[4:]
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
