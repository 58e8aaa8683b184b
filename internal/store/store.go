// Package store owns the durable Agent records and the archive of
// completed games. The live Game state lives in the arena's Redis layer;
// this package is where ratings are read and written.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/agent-chess-arena/internal/domain"
)

var ErrAgentNotFound = errors.New("agent not found")

// MatchResult is the settlement payload for one completed game. GameID is
// the idempotency key: a result is applied to the two agent records at
// most once no matter how often settlement is retried.
type MatchResult struct {
	GameID    string
	WhiteID   string
	WhiteName string
	BlackID   string
	BlackName string
	Outcome   domain.Outcome
	Method    string
	MovesUCI  []string
	MovesSAN  []string
	StartedAt time.Time
	EndedAt   time.Time
}

// ExchangeFunc computes the post-game ratings for both seats from their
// current ratings. It is called inside the store's atomic section so the
// ratings it sees cannot go stale before the write.
type ExchangeFunc func(whiteRating, blackRating int) (newWhite, newBlack int)

type AgentStore interface {
	// UpsertAgent inserts the agent with default stats or refreshes the
	// display name of an existing record.
	UpsertAgent(ctx context.Context, ref domain.AgentRef) (*domain.Agent, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	Leaderboard(ctx context.Context, limit int) ([]*domain.Agent, error)

	// ApplyMatchResult archives the result and updates both agent records
	// in one atomic operation. Returns false when the game id was already
	// settled; the records are untouched in that case.
	ApplyMatchResult(ctx context.Context, res *MatchResult, exchange ExchangeFunc) (bool, error)
}

func validateResult(res *MatchResult) error {
	if res == nil {
		return fmt.Errorf("nil match result")
	}
	if strings.TrimSpace(res.GameID) == "" {
		return fmt.Errorf("match result missing game id")
	}
	if res.WhiteID == "" || res.BlackID == "" {
		return fmt.Errorf("match result missing a participant")
	}
	if res.Outcome == domain.OutcomeNone {
		return fmt.Errorf("match result missing outcome")
	}
	return nil
}

// applyCounters bumps the per-seat statistics for a settled game.
// MatchesPlayed stays equal to Wins+Losses+Draws.
func applyCounters(a *domain.Agent, seat domain.Color, outcome domain.Outcome, now time.Time) {
	a.MatchesPlayed++
	switch {
	case outcome == domain.OutcomeDraw:
		a.Draws++
	case (outcome == domain.OutcomeWhiteWins) == (seat == domain.White):
		a.Wins++
	default:
		a.Losses++
	}
	a.UpdatedAt = now
}

func pgnResult(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeWhiteWins:
		return "1-0"
	case domain.OutcomeBlackWins:
		return "0-1"
	case domain.OutcomeDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// buildPGN renders an archival PGN from the SAN history and result tags.
func buildPGN(res *MatchResult) string {
	var b strings.Builder
	date := res.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := pgnResult(res.Outcome)
	b.WriteString("[Event \"Agent Chess Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(res.WhiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(res.BlackName)))
	if strings.TrimSpace(res.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(res.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(res.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(res.MovesSAN[i])))
		if i+1 < len(res.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(res.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
