package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/agent-chess-arena/internal/domain"
)

// Memory is an in-memory AgentStore used for tests and DB-less runs.
type Memory struct {
	mu sync.RWMutex

	agents  map[string]*domain.Agent
	settled map[string]*MatchResult // game id -> archived result
}

func NewMemory() *Memory {
	return &Memory{
		agents:  make(map[string]*domain.Agent),
		settled: make(map[string]*MatchResult),
	}
}

func (m *Memory) UpsertAgent(ctx context.Context, ref domain.AgentRef) (*domain.Agent, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil, ErrAgentNotFound
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.agents[id]; ok {
		if name := strings.TrimSpace(ref.Name); name != "" {
			a.Name = name
		}
		a.UpdatedAt = now
		cp := *a
		return &cp, nil
	}

	a := &domain.Agent{
		ID:        id,
		Name:      strings.TrimSpace(ref.Name),
		Rating:    domain.DefaultRating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.agents[id] = a
	cp := *a
	return &cp, nil
}

func (m *Memory) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ApplyMatchResult(ctx context.Context, res *MatchResult, exchange ExchangeFunc) (bool, error) {
	if err := validateResult(res); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.settled[res.GameID]; done {
		return false, nil
	}
	white, ok := m.agents[res.WhiteID]
	if !ok {
		return false, ErrAgentNotFound
	}
	black, ok := m.agents[res.BlackID]
	if !ok {
		return false, ErrAgentNotFound
	}

	newWhite, newBlack := exchange(white.Rating, black.Rating)
	now := time.Now()
	white.Rating = newWhite
	black.Rating = newBlack
	applyCounters(white, domain.White, res.Outcome, now)
	applyCounters(black, domain.Black, res.Outcome, now)

	cp := *res
	m.settled[res.GameID] = &cp
	return true, nil
}

// ArchivedResult returns the settled result for a game id, for tests.
func (m *Memory) ArchivedResult(gameID string) *MatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.settled[gameID]; ok {
		cp := *r
		return &cp
	}
	return nil
}
