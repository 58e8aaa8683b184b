package store

import (
	"context"
	"testing"
	"time"

	"github.com/park285/agent-chess-arena/internal/domain"
)

func seedAgents(t *testing.T, m *Memory, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := m.UpsertAgent(context.Background(), domain.AgentRef{ID: id, Name: "agent " + id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func testResult(gameID string, outcome domain.Outcome) *MatchResult {
	now := time.Now()
	return &MatchResult{
		GameID:    gameID,
		WhiteID:   "w1",
		WhiteName: "agent w1",
		BlackID:   "b1",
		BlackName: "agent b1",
		Outcome:   outcome,
		Method:    "checkmate",
		MovesUCI:  []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		MovesSAN:  []string{"f3", "e5", "g4", "Qh4#"},
		StartedAt: now.Add(-time.Minute),
		EndedAt:   now,
	}
}

func TestUpsertAgentAssignsDefaultRating(t *testing.T) {
	m := NewMemory()
	a, err := m.UpsertAgent(context.Background(), domain.AgentRef{ID: "w1", Name: "First"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if a.Rating != domain.DefaultRating {
		t.Fatalf("expected default rating %d, got %d", domain.DefaultRating, a.Rating)
	}

	// Re-registering keeps the record but refreshes the name.
	again, err := m.UpsertAgent(context.Background(), domain.AgentRef{ID: "w1", Name: "Renamed"})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if again.Name != "Renamed" || again.Rating != domain.DefaultRating {
		t.Fatalf("unexpected record after re-upsert: %+v", again)
	}
}

func TestUpsertAgentRejectsEmptyID(t *testing.T) {
	m := NewMemory()
	if _, err := m.UpsertAgent(context.Background(), domain.AgentRef{Name: "nameless"}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestApplyMatchResultUpdatesBothRecords(t *testing.T) {
	m := NewMemory()
	seedAgents(t, m, "w1", "b1")

	applied, err := m.ApplyMatchResult(context.Background(), testResult("g1", domain.OutcomeBlackWins), func(rw, rb int) (int, int) {
		return rw - 16, rb + 16
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected first settlement to apply")
	}

	white, _ := m.GetAgent(context.Background(), "w1")
	black, _ := m.GetAgent(context.Background(), "b1")
	if white.Rating != 1184 || black.Rating != 1216 {
		t.Fatalf("ratings: white=%d black=%d", white.Rating, black.Rating)
	}
	if white.MatchesPlayed != 1 || white.Losses != 1 || white.Wins != 0 {
		t.Fatalf("white counters: %+v", white)
	}
	if black.MatchesPlayed != 1 || black.Wins != 1 || black.Losses != 0 {
		t.Fatalf("black counters: %+v", black)
	}
	if got := white.Wins + white.Losses + white.Draws; got != white.MatchesPlayed {
		t.Fatalf("counter invariant broken: %+v", white)
	}
}

func TestApplyMatchResultIsIdempotent(t *testing.T) {
	m := NewMemory()
	seedAgents(t, m, "w1", "b1")
	res := testResult("g1", domain.OutcomeBlackWins)
	exchange := func(rw, rb int) (int, int) { return rw - 16, rb + 16 }

	if _, err := m.ApplyMatchResult(context.Background(), res, exchange); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	applied, err := m.ApplyMatchResult(context.Background(), res, exchange)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Fatalf("expected duplicate settlement to be a no-op")
	}

	black, _ := m.GetAgent(context.Background(), "b1")
	if black.Rating != 1216 || black.MatchesPlayed != 1 {
		t.Fatalf("duplicate settlement moved state: %+v", black)
	}
	if m.ArchivedResult("g1") == nil {
		t.Fatalf("expected archived result for g1")
	}
}

func TestApplyMatchResultDrawCountsForBoth(t *testing.T) {
	m := NewMemory()
	seedAgents(t, m, "w1", "b1")

	if _, err := m.ApplyMatchResult(context.Background(), testResult("g2", domain.OutcomeDraw), func(rw, rb int) (int, int) {
		return rw, rb
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	white, _ := m.GetAgent(context.Background(), "w1")
	black, _ := m.GetAgent(context.Background(), "b1")
	if white.Draws != 1 || black.Draws != 1 {
		t.Fatalf("draw counters: white=%+v black=%+v", white, black)
	}
}

func TestLeaderboardOrdersByRatingThenID(t *testing.T) {
	m := NewMemory()
	seedAgents(t, m, "a", "b", "c")
	_, err := m.ApplyMatchResult(context.Background(), &MatchResult{
		GameID: "g1", WhiteID: "b", BlackID: "c",
		Outcome: domain.OutcomeWhiteWins, Method: "resignation",
		StartedAt: time.Now(), EndedAt: time.Now(),
	}, func(rw, rb int) (int, int) { return rw + 16, rb - 16 })
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	board, err := m.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(board))
	}
	if board[0].ID != "b" {
		t.Fatalf("expected winner first, got %s", board[0].ID)
	}
	// a and c both hold ties broken by id; a (1200) outranks c (1184).
	if board[1].ID != "a" || board[2].ID != "c" {
		t.Fatalf("unexpected order: %s, %s", board[1].ID, board[2].ID)
	}

	limited, _ := m.Leaderboard(context.Background(), 2)
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d entries", len(limited))
	}
}
