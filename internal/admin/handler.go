// Package admin serves a read-only inspection API over fasthttp.
package admin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LiveChess/internal/archive"
	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/internal/room"
	"github.com/park285/Cheese-LiveChess/internal/session"
)

type Handler struct {
	coord   *room.Coordinator
	conns   func() int
	timeout time.Duration
}

// NewHandler wires the coordinator. conns may be nil.
func NewHandler(coord *room.Coordinator, conns func() int) *Handler {
	return &Handler{coord: coord, conns: conns, timeout: 3 * time.Second}
}

// NewServer wraps h in a fasthttp server with conservative timeouts.
func NewServer(h *Handler) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:            h.Handle,
		Name:               "livechess-admin",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        30 * time.Second,
		MaxRequestBodySize: 1 << 10,
	}
}

type health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type roomDetail struct {
	room.Summary
	GameID    string            `json:"gameId"`
	FEN       string            `json:"fen"`
	Turn      string            `json:"turn"`
	LastMove  *session.LastMove `json:"lastMove"`
	Terminal  *session.Terminal `json:"terminal,omitempty"`
	MovesUCI  []string          `json:"movesUci"`
	MovesSAN  []string          `json:"movesSan"`
	StartedAt time.Time         `json:"startedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		n := 0
		if h.conns != nil {
			n = h.conns()
		}
		writeJSON(ctx, fasthttp.StatusOK, health{Status: "ok", Connections: n})
	case path == "/rooms" || path == "/rooms/":
		h.listRooms(ctx)
	case strings.HasPrefix(path, "/rooms/"):
		rest := strings.TrimPrefix(path, "/rooms/")
		if id, ok := strings.CutSuffix(rest, "/pgn"); ok {
			h.roomPGN(ctx, id)
			return
		}
		h.roomDetail(ctx, rest)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (h *Handler) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

func (h *Handler) listRooms(ctx *fasthttp.RequestCtx) {
	c, cancel := h.opContext()
	defer cancel()
	rooms, err := h.coord.Rooms(c)
	if err != nil {
		h.fail(ctx, "admin_rooms_failed", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, rooms)
}

func (h *Handler) lookup(ctx *fasthttp.RequestCtx, id string) (*room.Detail, bool) {
	c, cancel := h.opContext()
	defer cancel()
	d, found, err := h.coord.Inspect(c, id)
	if err != nil {
		h.fail(ctx, "admin_inspect_failed", err)
		return nil, false
	}
	if !found {
		ctx.Error("room not found", fasthttp.StatusNotFound)
		return nil, false
	}
	return d, true
}

func (h *Handler) roomDetail(ctx *fasthttp.RequestCtx, id string) {
	d, ok := h.lookup(ctx, id)
	if !ok {
		return
	}
	s := d.Session
	writeJSON(ctx, fasthttp.StatusOK, roomDetail{
		Summary:   d.Summary,
		GameID:    s.GameID,
		FEN:       s.Position,
		Turn:      s.Turn.Short(),
		LastMove:  s.LastMove,
		Terminal:  s.Terminal,
		MovesUCI:  s.MovesUCI,
		MovesSAN:  s.MovesSAN,
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

func (h *Handler) roomPGN(ctx *fasthttp.RequestCtx, id string) {
	d, ok := h.lookup(ctx, id)
	if !ok {
		return
	}
	ctx.SetContentType("application/x-chess-pgn; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(archive.BuildPGN(d.Session))
}

func (h *Handler) fail(ctx *fasthttp.RequestCtx, event string, err error) {
	obslog.L().Error(event, zap.ByteString("path", ctx.Path()), zap.Error(err))
	ctx.Error("internal error", fasthttp.StatusInternalServerError)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}
