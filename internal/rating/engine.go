package rating

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/agent-chess-arena/internal/domain"
	"github.com/park285/agent-chess-arena/internal/obslog"
	"github.com/park285/agent-chess-arena/internal/store"
)

// Engine settles a completed game into both agent records. Settlement is
// keyed by game id and safe to retry: a game already settled is a no-op.
type Engine struct {
	agents store.AgentStore
}

func NewEngine(agents store.AgentStore) *Engine {
	return &Engine{agents: agents}
}

// ApplyResult updates both participants' ratings and counters for the
// given completed game. Must only be called after the game's terminal
// write has been durably committed.
func (e *Engine) ApplyResult(ctx context.Context, g *domain.Game, method string, startedAt time.Time) error {
	if e == nil || e.agents == nil {
		return fmt.Errorf("rating engine not initialized")
	}
	if g == nil || g.Status != domain.StatusCompleted || g.Outcome == domain.OutcomeNone {
		return fmt.Errorf("game %s is not completed", gameID(g))
	}
	if g.WhiteID == "" || g.BlackID == "" {
		return fmt.Errorf("game %s completed without two participants", g.ID)
	}

	res := &store.MatchResult{
		GameID:    g.ID,
		WhiteID:   g.WhiteID,
		WhiteName: g.WhiteName,
		BlackID:   g.BlackID,
		BlackName: g.BlackName,
		Outcome:   g.Outcome,
		Method:    method,
		MovesUCI:  append([]string(nil), g.MovesUCI...),
		MovesSAN:  append([]string(nil), g.MovesSAN...),
		StartedAt: startedAt,
		EndedAt:   g.UpdatedAt,
	}

	outcome := g.Outcome
	applied, err := e.agents.ApplyMatchResult(ctx, res, func(rw, rb int) (int, int) {
		return Exchange(rw, rb, outcome)
	})
	if err != nil {
		return fmt.Errorf("settle game %s: %w", g.ID, err)
	}

	if !applied {
		obslog.L().Info("rating_already_settled", zap.String("game_id", g.ID))
		return nil
	}
	obslog.L().Info("rating_settled",
		zap.String("game_id", g.ID),
		zap.String("outcome", string(g.Outcome)),
		zap.String("method", method),
		zap.String("white_id", g.WhiteID),
		zap.String("black_id", g.BlackID),
	)
	return nil
}

func gameID(g *domain.Game) string {
	if g == nil {
		return ""
	}
	return g.ID
}
