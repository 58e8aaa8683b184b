package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/agent-chess-arena/internal/domain"
	"github.com/park285/agent-chess-arena/internal/rating"
	"github.com/park285/agent-chess-arena/internal/rules"
	"github.com/park285/agent-chess-arena/internal/store"
)

var (
	whiteRef = domain.AgentRef{ID: "w1", Name: "White One"}
	blackRef = domain.AgentRef{ID: "b1", Name: "Black One"}
)

func newTestManager(t *testing.T) (*Manager, *store.Memory, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	agents := store.NewMemory()
	m, err := NewManager(fmt.Sprintf("redis://%s/0", mr.Addr()), agents, rating.NewEngine(agents))
	if err != nil {
		mr.Close()
		t.Fatalf("NewManager: %v", err)
	}
	cleanup := func() {
		_ = m.Close()
		mr.Close()
	}
	return m, agents, cleanup
}

func startedGame(t *testing.T, m *Manager) *domain.Game {
	t.Helper()
	ctx := context.Background()
	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	g, err = m.JoinGame(ctx, g.ID, blackRef)
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	return g
}

func TestCreateGameSeatsWhite(t *testing.T) {
	m, agents, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if g.Status != domain.StatusWaiting || g.WhiteID != "w1" || g.BlackID != "" {
		t.Fatalf("unexpected new game: %+v", g)
	}
	if g.FEN != rules.InitialFEN {
		t.Fatalf("expected initial fen, got %q", g.FEN)
	}
	if len(g.MovesUCI) != 0 || g.TurnColor() != domain.White {
		t.Fatalf("fresh game should be white to move with empty history")
	}

	got, err := m.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got.ID != g.ID {
		t.Fatalf("id mismatch: %q vs %q", got.ID, g.ID)
	}

	// Creating a game registers the rating record.
	a, err := agents.GetAgent(ctx, "w1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if a.Rating != domain.DefaultRating {
		t.Fatalf("expected default rating, got %d", a.Rating)
	}
}

func TestGetGameUnknownID(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	if _, err := m.GetGame(context.Background(), "missing"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestJoinGameStartsAndIsIdempotent(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	// The creator joining their own game changes nothing.
	same, err := m.JoinGame(ctx, g.ID, whiteRef)
	if err != nil {
		t.Fatalf("self join: %v", err)
	}
	if same.Status != domain.StatusWaiting || same.BlackID != "" {
		t.Fatalf("self join should be a no-op: %+v", same)
	}

	joined, err := m.JoinGame(ctx, g.ID, blackRef)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != domain.StatusInProgress || joined.BlackID != "b1" {
		t.Fatalf("unexpected game after join: %+v", joined)
	}

	// The seated black agent re-joining is also a no-op.
	again, err := m.JoinGame(ctx, g.ID, blackRef)
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if again.BlackID != "b1" || again.Status != domain.StatusInProgress {
		t.Fatalf("re-join changed state: %+v", again)
	}

	if _, err := m.JoinGame(ctx, g.ID, domain.AgentRef{ID: "late", Name: "Late"}); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken, got %v", err)
	}
}

func TestJoinCompletedGameReportsCompletion(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)
	playFoolsMate(t, m, g.ID)

	// A finished game is reported as completed, not as a taken seat.
	if _, err := m.JoinGame(ctx, g.ID, domain.AgentRef{ID: "late", Name: "Late"}); !errors.Is(err, ErrGameCompleted) {
		t.Fatalf("expected ErrGameCompleted, got %v", err)
	}

	// Participants re-joining still get the idempotent no-op.
	again, err := m.JoinGame(ctx, g.ID, blackRef)
	if err != nil {
		t.Fatalf("participant re-join: %v", err)
	}
	if again.Status != domain.StatusCompleted || again.BlackID != "b1" {
		t.Fatalf("re-join changed state: %+v", again)
	}
}

func TestJoinGameConcurrentOneSeatWinner(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	const contenders = 4
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := domain.AgentRef{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("Contender %d", i)}
			_, errs[i] = m.JoinGame(ctx, g.ID, ref)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSeatTaken), errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}

	final, err := m.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if final.Status != domain.StatusInProgress || final.BlackID == "" {
		t.Fatalf("game should be running with a single black seat: %+v", final)
	}
}

func TestSubmitMoveOrderOfChecks(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	if _, err := m.SubmitMove(ctx, g.ID, "intruder", rules.MoveRef{Token: "e4"}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := m.SubmitMove(ctx, g.ID, "b1", rules.MoveRef{Token: "e5"}); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if _, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e2e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}

	// None of the rejections may have touched the record.
	unchanged, err := m.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if len(unchanged.MovesUCI) != 0 || unchanged.FEN != rules.InitialFEN || !unchanged.UpdatedAt.Equal(g.UpdatedAt) {
		t.Fatalf("rejection modified the game: %+v", unchanged)
	}

	moved, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e4"})
	if err != nil {
		t.Fatalf("legal move: %v", err)
	}
	if len(moved.MovesUCI) != 1 || moved.MovesUCI[0] != "e2e4" || moved.MovesSAN[0] != "e4" {
		t.Fatalf("unexpected history: %+v", moved)
	}
	if moved.TurnColor() != domain.Black {
		t.Fatalf("turn should pass to black")
	}

	if _, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "d4"}); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("white moving twice: expected ErrWrongTurn, got %v", err)
	}
}

func TestSubmitMoveBeforeOpponentJoins(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	moved, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e4"})
	if err != nil {
		t.Fatalf("white may open before black joins: %v", err)
	}
	if moved.Status != domain.StatusWaiting || len(moved.MovesUCI) != 1 {
		t.Fatalf("unexpected state: %+v", moved)
	}
	// The empty black seat cannot answer.
	if _, err := m.SubmitMove(ctx, g.ID, "b1", rules.MoveRef{Token: "e5"}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestSubmitMoveStructuredForm(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	moved, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("structured move: %v", err)
	}
	if moved.MovesSAN[0] != "e4" {
		t.Fatalf("expected e4, got %q", moved.MovesSAN[0])
	}
}

func playFoolsMate(t *testing.T, m *Manager, gameID string) *domain.Game {
	t.Helper()
	ctx := context.Background()
	script := []struct {
		agent string
		move  string
	}{
		{"w1", "f3"}, {"b1", "e5"}, {"w1", "g4"}, {"b1", "Qh4#"},
	}
	var g *domain.Game
	var err error
	for _, step := range script {
		g, err = m.SubmitMove(ctx, gameID, step.agent, rules.MoveRef{Token: step.move})
		if err != nil {
			t.Fatalf("move %s: %v", step.move, err)
		}
	}
	return g
}

func TestCheckmateCompletesAndSettlesRatings(t *testing.T) {
	m, agents, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	final := playFoolsMate(t, m, g.ID)
	if final.Status != domain.StatusCompleted || final.Outcome != domain.OutcomeBlackWins {
		t.Fatalf("expected black checkmate, got %+v", final)
	}

	white, err := agents.GetAgent(ctx, "w1")
	if err != nil {
		t.Fatalf("GetAgent w1: %v", err)
	}
	black, err := agents.GetAgent(ctx, "b1")
	if err != nil {
		t.Fatalf("GetAgent b1: %v", err)
	}
	if white.Rating != 1184 || black.Rating != 1216 {
		t.Fatalf("ratings after checkmate: white=%d black=%d", white.Rating, black.Rating)
	}
	if black.Wins != 1 || white.Losses != 1 {
		t.Fatalf("counters: white=%+v black=%+v", white, black)
	}

	res := agents.ArchivedResult(g.ID)
	if res == nil {
		t.Fatalf("expected archived result")
	}
	if res.Method != "checkmate" || len(res.MovesSAN) != 4 {
		t.Fatalf("unexpected archive: %+v", res)
	}

	// Completed games reject further moves and drop off the open list.
	if _, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e4"}); !errors.Is(err, ErrGameCompleted) {
		t.Fatalf("expected ErrGameCompleted, got %v", err)
	}
	open, err := m.ListOpenGames(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpenGames: %v", err)
	}
	for _, og := range open {
		if og.ID == g.ID {
			t.Fatalf("completed game still listed as open")
		}
	}
}

func TestResign(t *testing.T) {
	m, agents, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	final, err := m.Resign(ctx, g.ID, "w1")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if final.Status != domain.StatusCompleted || final.Outcome != domain.OutcomeBlackWins {
		t.Fatalf("white resignation should award black: %+v", final)
	}
	black, _ := agents.GetAgent(ctx, "b1")
	if black.Rating != 1216 || black.Wins != 1 {
		t.Fatalf("resignation not settled: %+v", black)
	}
	if res := agents.ArchivedResult(g.ID); res == nil || res.Method != "resignation" {
		t.Fatalf("expected resignation archive, got %+v", res)
	}

	if _, err := m.Resign(ctx, g.ID, "b1"); !errors.Is(err, ErrGameCompleted) {
		t.Fatalf("expected ErrGameCompleted, got %v", err)
	}
}

func TestResignBeforeStartRejected(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	g, err := m.CreateGame(ctx, whiteRef)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := m.Resign(ctx, g.ID, "w1"); !errors.Is(err, ErrGameNotStarted) {
		t.Fatalf("expected ErrGameNotStarted, got %v", err)
	}
	if _, err := m.Resign(ctx, g.ID, "stranger"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestConcurrentMovesAtMostOneCommits(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e4"})
		}(i)
	}
	wg.Wait()

	var committed int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrWrongTurn):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 1 {
		t.Fatalf("expected exactly one committed move, got %d", committed)
	}

	final, err := m.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if len(final.MovesUCI) != 1 {
		t.Fatalf("history should hold one ply, got %d", len(final.MovesUCI))
	}
}

func TestListOpenGamesNewestFirst(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	first, err := m.CreateGame(ctx, domain.AgentRef{ID: "p1", Name: "One"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := m.CreateGame(ctx, domain.AgentRef{ID: "p2", Name: "Two"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	open, err := m.ListOpenGames(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpenGames: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open games, got %d", len(open))
	}
	if open[0].ID != second.ID || open[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", open[0].ID, open[1].ID)
	}

	limited, err := m.ListOpenGames(ctx, 1)
	if err != nil {
		t.Fatalf("ListOpenGames limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Fatalf("limit should keep the newest game")
	}
}

func TestSubscribeGameDeliversSnapshots(t *testing.T) {
	m, _, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()
	g := startedGame(t, m)

	feed := m.SubscribeGame(ctx, g.ID)
	defer feed.Close()

	// The subscription is live once SubscribeGame returns; a commit
	// issued right away must not slip past the feed.
	if _, err := m.SubmitMove(ctx, g.ID, "w1", rules.MoveRef{Token: "e4"}); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}

	select {
	case snap := <-feed.Games():
		if snap == nil || len(snap.MovesUCI) != 1 || snap.MovesUCI[0] != "e2e4" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
}
