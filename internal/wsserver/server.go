// Package wsserver carries the room protocol over WebSocket connections.
// Each connection is one participant, multiplexed across rooms by roomId.
package wsserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/Cheese-LiveChess/internal/game"
	"github.com/park285/Cheese-LiveChess/internal/msgcat"
	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/internal/room"
	"github.com/park285/Cheese-LiveChess/internal/rules"
	"github.com/park285/Cheese-LiveChess/internal/seat"
	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

const maxFrameBytes = 8 << 10

type Config struct {
	AllowedOrigins []string
	AllowRoom      func(room string) bool
	QueueSize      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OpTimeout      time.Duration
	// Messages renders error texts. Embedded defaults are used when nil.
	Messages *msgcat.Catalog
}

type Server struct {
	coord   *room.Coordinator
	cfg     Config
	origins map[string]bool

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(coord *room.Coordinator, cfg Config) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	if cfg.Messages == nil {
		if m, err := msgcat.New(""); err == nil {
			cfg.Messages = m
		}
	}
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return &Server{coord: coord, cfg: cfg, origins: origins, conns: make(map[*conn]struct{})}
}

// Handler serves the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	return mux
}

func (s *Server) originAllowed(origin string) bool {
	return origin == "" || len(s.origins) == 0 || s.origins[origin]
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !s.originAllowed(origin) {
		obslog.L().Warn("ws_forbidden_origin", zap.String("origin", origin), zap.String("remote", r.RemoteAddr))
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	c := newConn(uuid.NewString(), ws, s.cfg.QueueSize, cancel)
	s.register(c)
	obslog.L().Info("ws_connect", zap.String("conn", c.id), zap.String("remote", r.RemoteAddr))

	go c.writeLoop(ctx, s.cfg.PingInterval, s.cfg.WriteTimeout)
	s.readLoop(ctx, c)

	c.kill()
	s.unregister(c)
	s.leaveAll(c)
	_ = ws.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnect", zap.String("conn", c.id))
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway && !c.closed() {
				obslog.L().Debug("ws_read_failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		s.dispatch(ctx, c, data)
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, data []byte) {
	// 연결이 끊겨도 제출된 요청은 끝까지 처리
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
	defer cancel()

	req, err := chessdto.Decode(data)
	if err != nil {
		if mv, ok := req.(*chessdto.MoveRequest); ok && errors.Is(err, chessdto.ErrMalformedMove) && s.roomAllowed(mv.RoomID) {
			s.coord.Reject(mv.RoomID, c, game.IllegalMove, "", intentOf(mv))
			return
		}
		obslog.L().Debug("ws_bad_frame", zap.String("conn", c.id), zap.Error(err))
		_ = c.Send(s.errorEvent("bad_request", map[string]any{"Reason": err.Error()}))
		return
	}
	if !s.roomAllowed(req.Room()) {
		_ = c.Send(s.errorEvent("room_not_allowed", map[string]any{"Room": req.Room()}))
		return
	}

	switch r := req.(type) {
	case *chessdto.JoinRequest:
		if _, err = s.coord.Join(opCtx, r.RoomID, c, seat.ParseRequest(r.Color)); err == nil {
			c.track(r.RoomID)
		}
	case *chessdto.MoveRequest:
		_, err = s.coord.Move(opCtx, r.RoomID, c, intentOf(r))
		if _, rejected := game.AsRejection(err); rejected {
			err = nil
		}
	case *chessdto.ResetRequest:
		err = s.coord.Reset(opCtx, r.RoomID, c)
	case *chessdto.LeaveRequest:
		err = s.coord.Leave(opCtx, r.RoomID, c)
		c.untrack(r.RoomID)
	}
	if err != nil {
		obslog.L().Error("ws_request_failed", zap.String("conn", c.id), zap.String("room", req.Room()), zap.Error(err))
		_ = c.Send(s.errorEvent("internal", nil))
	}
}

func (s *Server) roomAllowed(id string) bool {
	return s.cfg.AllowRoom == nil || s.cfg.AllowRoom(id)
}

func (s *Server) leaveAll(c *conn) {
	for _, id := range c.joined() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
		if err := s.coord.Leave(ctx, id, c); err != nil {
			obslog.L().Warn("ws_leave_failed", zap.String("conn", c.id), zap.String("room", id), zap.Error(err))
		}
		cancel()
		c.untrack(id)
	}
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// CloseAll drops every live connection. Used on shutdown since hijacked
// connections are not closed by http.Server.Shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.kill()
	}
}

// Connections returns the number of live connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func intentOf(m *chessdto.MoveRequest) rules.Intent {
	return rules.Intent{From: m.From, To: m.To, Promotion: m.Promotion}
}

func (s *Server) errorEvent(code string, data map[string]any) chessdto.Event {
	msg := s.cfg.Messages.Text("error."+code, data)
	return chessdto.Event{Type: chessdto.EventError, Data: chessdto.ErrorPayload{Code: code, Message: msg}}
}
