package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-LiveChess/internal/session"
)

func finishedSession() *session.Session {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := session.New("room1", start)
	s.Seats = session.Seats{White: "alice", Black: "bob"}
	s.MovesUCI = []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	s.MovesSAN = []string{"f3", "e5", "g4", "Qh4#"}
	s.UpdatedAt = start.Add(90 * time.Second)
	s.Terminal = &session.Terminal{Checkmate: true, Winner: session.Black, Method: "checkmate"}
	return s
}

func openMemory(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(finishedSession())
	for _, want := range []string{
		`[Site "room:room1"]`,
		`[Date "2026.03.01"]`,
		`[White "alice"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}

	live := session.New("r", time.Now())
	live.MovesSAN = []string{"e4"}
	if got := BuildPGN(live); !strings.HasSuffix(got, "1. e4 *") || !strings.Contains(got, `[White "?"]`) {
		t.Fatalf("live pgn:\n%s", got)
	}
}

func TestSaveResultUpsert(t *testing.T) {
	r := openMemory(t)
	ctx := context.Background()
	s := finishedSession()

	if err := r.SaveResult(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := r.Find(ctx, s.GameID)
	if err != nil || rec == nil {
		t.Fatalf("find: %v %v", rec, err)
	}
	if rec.Result != "black" || rec.Method != "checkmate" || rec.DurationMS != 90000 || len(rec.MovesSAN) != 4 || rec.MovesUCI[3] != "d8h4" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	s.Terminal = &session.Terminal{Draw: true, Method: "threefold repetition"}
	if err := r.SaveResult(ctx, s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, _ = r.Find(ctx, s.GameID)
	if rec.Result != "draw" || !strings.Contains(rec.PGN, `[Result "1/2-1/2"]`) {
		t.Fatalf("upsert not applied: %+v", rec)
	}
}

func TestSaveResultIgnoresLiveGames(t *testing.T) {
	r := openMemory(t)
	s := session.New("room1", time.Now())
	if err := r.SaveResult(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec, err := r.Find(context.Background(), s.GameID); err != nil || rec != nil {
		t.Fatalf("live game archived: %+v %v", rec, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
