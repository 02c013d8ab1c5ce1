package wsserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/pkg/chessdto"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrQueueFull = staticErr("outbound queue full")
	ErrClosed    = staticErr("connection closed")
)

// conn is one participant. Frames are queued by Send and written by a
// single writer goroutine in FIFO order.
type conn struct {
	id     string
	ws     *websocket.Conn
	out    chan chessdto.Event
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConn(id string, ws *websocket.Conn, queue int, cancel context.CancelFunc) *conn {
	if queue <= 0 {
		queue = 64
	}
	return &conn{
		id:     id,
		ws:     ws,
		out:    make(chan chessdto.Event, queue),
		done:   make(chan struct{}),
		cancel: cancel,
		rooms:  make(map[string]struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send enqueues ev without blocking. A full queue kills the connection;
// the read loop then observes cancellation and leaves every room.
func (c *conn) Send(ev chessdto.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- ev:
		return nil
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("conn", c.id), zap.Int("queued", len(c.out)))
		c.kill()
		return ErrQueueFull
	}
}

func (c *conn) kill() {
	c.once.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *conn) track(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) untrack(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *conn) joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// writeLoop drains the queue and pings the peer until the connection dies.
func (c *conn) writeLoop(ctx context.Context, ping, writeTimeout time.Duration) {
	t := time.NewTicker(ping)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn", c.id), zap.Error(err))
				c.kill()
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_ping_failed", zap.String("conn", c.id), zap.Error(err))
				c.kill()
				return
			}
		}
	}
}
