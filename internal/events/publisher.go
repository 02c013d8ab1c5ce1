// Package events announces finished games on a RabbitMQ queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LiveChess/internal/archive"
	"github.com/park285/Cheese-LiveChess/internal/obslog"
	"github.com/park285/Cheese-LiveChess/internal/session"
)

// GameFinishedEvent is the message body published per finished game.
type GameFinishedEvent struct {
	GameID    string    `json:"gameId"`
	RoomID    string    `json:"roomId"`
	White     string    `json:"white,omitempty"`
	Black     string    `json:"black,omitempty"`
	Result    string    `json:"result"`
	Method    string    `json:"method,omitempty"`
	Plies     int       `json:"plies"`
	FEN       string    `json:"fen"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

func NewGameFinishedEvent(s *session.Session) GameFinishedEvent {
	ev := GameFinishedEvent{
		GameID:    s.GameID,
		RoomID:    s.Room,
		White:     s.Seats.White,
		Black:     s.Seats.Black,
		Result:    archive.ResultToken(s),
		Plies:     len(s.MovesUCI),
		FEN:       s.Position,
		StartedAt: s.StartedAt.UTC(),
		EndedAt:   s.UpdatedAt.UTC(),
	}
	if s.Terminal != nil {
		ev.Method = s.Terminal.Method
	}
	return ev
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher keeps one broker channel open and re-dials after a failure.
type Publisher struct {
	queue string
	dial  func() (channel, func() error, error)

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

func NewPublisher(url, queue string) (*Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}
	if strings.TrimSpace(queue) == "" {
		queue = "chess.game.finished"
	}
	p := &Publisher{queue: queue}
	p.dial = func() (channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
		return ch, conn.Close, nil
	}
	return p, nil
}

func (p *Publisher) ensureChannel() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, closeConn, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.ch, p.closeConn = ch, closeConn
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

// GameFinished publishes a persistent message for a finished session.
func (p *Publisher) GameFinished(ctx context.Context, s *session.Session) error {
	if p == nil || s == nil {
		return nil
	}
	body, err := json.Marshal(NewGameFinishedEvent(s))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    s.GameID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish game %s: %w", s.GameID, err)
	}
	obslog.L().Debug("events_game_finished", zap.String("room", s.Room), zap.String("game_id", s.GameID), zap.String("queue", p.queue))
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
