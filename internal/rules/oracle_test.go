package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestApplyOpeningMove(t *testing.T) {
	o := NewChessOracle()
	res, err := o.Apply(nil, Intent{From: "e2", To: "e4", Promotion: "q"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.SAN != "e4" || res.UCI != "e2e4" {
		t.Fatalf("unexpected notation: san=%q uci=%q", res.SAN, res.UCI)
	}
	if !strings.HasPrefix(res.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Fatalf("unexpected fen: %s", res.FEN)
	}
	if res.Terminal() {
		t.Fatalf("opening move must not be terminal")
	}
}

func TestApplyRejectsIllegalAndMalformed(t *testing.T) {
	o := NewChessOracle()
	cases := []Intent{
		{From: "e2", To: "e5"},
		{From: "e7", To: "e5"}, // black piece on white's turn
		{From: "e3", To: "e4"}, // empty square
		{From: "z9", To: "e4"},
		{From: "e2", To: "e4", Promotion: "k"},
		{},
	}
	for _, in := range cases {
		if _, err := o.Apply(nil, in); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%+v: expected ErrIllegalMove, got %v", in, err)
		}
	}
}

func TestApplyDetectsCheckmate(t *testing.T) {
	o := NewChessOracle()
	// fool's mate: 1. f3 e5 2. g4 Qh4#
	history := []string{"f2f3", "e7e5", "g2g4"}
	res, err := o.Apply(history, Intent{From: "d8", To: "h4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Checkmate || res.Stalemate || res.Draw {
		t.Fatalf("expected checkmate, got %+v", res)
	}
	if !res.Check || res.SAN != "Qh4#" {
		t.Fatalf("expected Qh4#, got %q check=%v", res.SAN, res.Check)
	}
}

func TestApplyDetectsStalemate(t *testing.T) {
	o := NewChessOracle()
	// Loyd's ten-move stalemate
	history := []string{
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "h2h4", "a6h6",
		"a5c7", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
		"b8c8", "f7g6",
	}
	res, err := o.Apply(history, Intent{From: "c8", To: "e6"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Stalemate || res.Checkmate || res.Draw {
		t.Fatalf("expected stalemate, got %+v", res)
	}
}

func TestApplyFivefoldRepetitionIsDraw(t *testing.T) {
	o := NewChessOracle()
	// knights out and back four times; the start position recurs a fifth time
	var history []string
	for i := 0; i < 4; i++ {
		history = append(history, "g1f3", "g8f6", "f3g1", "f6g8")
	}
	if res, err := o.Apply(history[:14], Intent{From: "f3", To: "g1"}); err != nil || res.Terminal() {
		t.Fatalf("fourth occurrence must not end the game: %+v %v", res, err)
	}
	res, err := o.Apply(history[:15], Intent{From: "f6", To: "g8"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Draw || res.Stalemate || res.Checkmate {
		t.Fatalf("expected non-stalemate draw, got %+v", res)
	}
	if res.Method != "fivefoldrepetition" {
		t.Fatalf("method %q", res.Method)
	}
}

func TestApplyPromotion(t *testing.T) {
	o := NewChessOracle()
	// 1. a4 b5 2. axb5 a6 3. bxa6 Bb7 4. axb7 Nc6, then bxa8
	history := []string{"a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "b8c6"}

	res, err := o.Apply(history, Intent{From: "b7", To: "a8"})
	if err != nil {
		t.Fatalf("Apply default promotion: %v", err)
	}
	if res.UCI != "b7a8q" || !strings.HasPrefix(res.FEN, "Q2qkbnr/") {
		t.Fatalf("expected queen promotion, got uci=%q fen=%s", res.UCI, res.FEN)
	}

	res, err = o.Apply(history, Intent{From: "b7", To: "a8", Promotion: "n"})
	if err != nil {
		t.Fatalf("Apply knight promotion: %v", err)
	}
	if !strings.HasPrefix(res.FEN, "N2qkbnr/") {
		t.Fatalf("expected knight promotion, got fen=%s", res.FEN)
	}
}

func TestApplyIgnoresPromotionOnQuietMove(t *testing.T) {
	o := NewChessOracle()
	res, err := o.Apply([]string{"e2e4"}, Intent{From: "g8", To: "f6", Promotion: "q"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.UCI != "g8f6" || res.SAN != "Nf6" {
		t.Fatalf("unexpected move: %+v", res)
	}
}

func TestApplyRejectsCorruptHistory(t *testing.T) {
	o := NewChessOracle()
	if _, err := o.Apply([]string{"e2e5"}, Intent{From: "e7", To: "e5"}); err == nil {
		t.Fatalf("expected error on corrupt history")
	}
}
