// Package archive stores finished games in Postgres or SQLite.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/park285/Cheese-LiveChess/internal/session"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db     *sql.DB
	driver string
}

// Record is one archived game as read back from the table.
type Record struct {
	GameID     string
	RoomID     string
	WhiteID    string
	BlackID    string
	Result     string
	Method     string
	MovesUCI   []string
	MovesSAN   []string
	PGN        string
	DurationMS int64
}

// Open connects to dsn and creates the table if missing. For sqlite, dsn
// is a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	var db *sql.DB
	var err error
	switch driver {
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	case DriverSQLite:
		if dsn != ":memory:" {
			if parent := filepath.Dir(dsn); parent != "" && parent != "." {
				if err := os.MkdirAll(parent, 0o755); err != nil {
					return nil, err
				}
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// :memory: 는 연결마다 별도 DB라서 단일 연결 유지
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Repository{db: db, driver: driver}
	if err := r.EnsureSchema(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	var q string
	if r.driver == DriverPostgres {
		q = `CREATE TABLE IF NOT EXISTS live_games (
			game_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			white_id TEXT NOT NULL DEFAULT '',
			black_id TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			result_method TEXT NOT NULL DEFAULT '',
			moves_uci JSONB NOT NULL,
			moves_san JSONB NOT NULL,
			pgn TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL
		)`
	} else {
		q = `CREATE TABLE IF NOT EXISTS live_games (
			game_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			white_id TEXT NOT NULL DEFAULT '',
			black_id TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			result_method TEXT NOT NULL DEFAULT '',
			moves_uci TEXT NOT NULL,
			moves_san TEXT NOT NULL,
			pgn TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL
		)`
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure live_games: %w", err)
	}
	return nil
}

// placeholders returns n bind markers for the driver.
func (r *Repository) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if r.driver == DriverPostgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ",")
}

// SaveResult upserts a finished game. Live sessions are ignored.
func (r *Repository) SaveResult(ctx context.Context, s *session.Session) error {
	if r == nil || r.db == nil || s == nil || s.Terminal == nil {
		return nil
	}
	movesUCIRaw, err := json.Marshal(s.MovesUCI)
	if err != nil {
		return err
	}
	movesSANRaw, err := json.Marshal(s.MovesSAN)
	if err != nil {
		return err
	}
	duration := s.UpdatedAt.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO live_games (
		game_id, room_id, white_id, black_id,
		result, result_method, moves_uci, moves_san, pgn,
		started_at, ended_at, duration_ms
	) VALUES (` + r.placeholders(12) + `) ON CONFLICT (game_id) DO UPDATE SET
		room_id=excluded.room_id,
		white_id=excluded.white_id,
		black_id=excluded.black_id,
		result=excluded.result,
		result_method=excluded.result_method,
		moves_uci=excluded.moves_uci,
		moves_san=excluded.moves_san,
		pgn=excluded.pgn,
		started_at=excluded.started_at,
		ended_at=excluded.ended_at,
		duration_ms=excluded.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		s.GameID, s.Room, s.Seats.White, s.Seats.Black,
		ResultToken(s), s.Terminal.Method, string(movesUCIRaw), string(movesSANRaw), BuildPGN(s),
		s.StartedAt.UTC(), s.UpdatedAt.UTC(), duration,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", s.GameID, err)
	}
	return nil
}

// Find loads an archived game. A missing game returns nil, nil.
func (r *Repository) Find(ctx context.Context, gameID string) (*Record, error) {
	q := `SELECT game_id, room_id, white_id, black_id, result, result_method,
		moves_uci, moves_san, pgn, duration_ms
		FROM live_games WHERE game_id = ` + r.placeholders(1)
	var (
		rec    Record
		uciRaw string
		sanRaw string
	)
	err := r.db.QueryRowContext(ctx, q, gameID).Scan(
		&rec.GameID, &rec.RoomID, &rec.WhiteID, &rec.BlackID, &rec.Result, &rec.Method,
		&uciRaw, &sanRaw, &rec.PGN, &rec.DurationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(uciRaw), &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves_uci: %w", err)
	}
	if err := json.Unmarshal([]byte(sanRaw), &rec.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves_san: %w", err)
	}
	return &rec, nil
}
