package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr string
	AdminAddr  string

	AllowedOrigins []string
	AllowedRooms   []string

	RedisURL   string
	SessionTTL time.Duration

	DatabaseURL   string
	ArchiveDriver string

	AMQPURL   string
	AMQPQueue string

	RoomIdleTTL       time.Duration
	RoomSweepInterval time.Duration
	OutboundQueue     int
	WSPingInterval    time.Duration

	MessagesDir string
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; variables already set are not overridden.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":3001",
		AdminAddr:         ":3002",
		ArchiveDriver:     "postgres",
		AMQPQueue:         "chess.game.finished",
		SessionTTL:        24 * time.Hour,
		RoomIdleTTL:       10 * time.Minute,
		RoomSweepInterval: time.Minute,
		OutboundQueue:     64,
		WSPingInterval:    30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ADMIN_ADDR"); ok {
		// 빈 값이면 admin 서버 비활성화
		cfg.AdminAddr = strings.TrimSpace(v)
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	cfg.AllowedRooms = splitList(os.Getenv("ALLOWED_ROOMS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("ARCHIVE_DRIVER")); v != "" {
		cfg.ArchiveDriver = strings.ToLower(v)
	}
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	if v := strings.TrimSpace(os.Getenv("AMQP_QUEUE")); v != "" {
		cfg.AMQPQueue = v
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	var err error
	if cfg.SessionTTL, err = seconds("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.RoomIdleTTL, err = seconds("ROOM_IDLE_TTL", cfg.RoomIdleTTL); err != nil {
		return nil, err
	}
	if cfg.RoomSweepInterval, err = seconds("ROOM_SWEEP_INTERVAL", cfg.RoomSweepInterval); err != nil {
		return nil, err
	}
	if cfg.WSPingInterval, err = seconds("WS_PING_INTERVAL", cfg.WSPingInterval); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(os.Getenv("OUTBOUND_QUEUE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("OUTBOUND_QUEUE must be a positive integer: %q", v)
		}
		cfg.OutboundQueue = n
	}

	switch cfg.ArchiveDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("ARCHIVE_DRIVER must be postgres or sqlite: %q", cfg.ArchiveDriver)
	}
	if cfg.ListenAddr == cfg.AdminAddr {
		return nil, errors.New("LISTEN_ADDR and ADMIN_ADDR must differ")
	}
	return cfg, nil
}

// RoomAllowed reports whether room may be used. An empty allow-list admits
// every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func seconds(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive number of seconds: %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}
