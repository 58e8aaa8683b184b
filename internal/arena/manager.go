// Package arena owns game sessions: creation, seat assignment, move
// authority, and outcome resolution. All session state lives in Redis;
// every mutation goes through a WATCH transaction on the game key so
// concurrent writers lose cleanly instead of clobbering each other.
package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/agent-chess-arena/internal/domain"
	"github.com/park285/agent-chess-arena/internal/obslog"
	"github.com/park285/agent-chess-arena/internal/rating"
	"github.com/park285/agent-chess-arena/internal/rules"
	"github.com/park285/agent-chess-arena/internal/store"
)

const (
	gameTTL     = 24 * time.Hour
	joinRetries = 3
)

type Manager struct {
	rdb     *redis.Client
	agents  store.AgentStore
	ratings *rating.Engine
}

func NewManager(redisURL string, agents store.AgentStore, ratings *rating.Engine) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for arena manager")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Manager{rdb: rdb, agents: agents, ratings: ratings}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// CreateGame opens a new session with the caller seated as white and
// registers the agent's rating record on first sight.
func (m *Manager) CreateGame(ctx context.Context, ref domain.AgentRef) (*domain.Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("arena manager not initialized")
	}
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.ID == "" {
		return nil, ErrInvalidAgent
	}

	agent, err := m.agents.UpsertAgent(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}

	now := time.Now()
	g := &domain.Game{
		ID:        uuid.NewString(),
		WhiteID:   agent.ID,
		WhiteName: agent.Name,
		FEN:       rules.InitialFEN,
		MovesSAN:  []string{},
		MovesUCI:  []string{},
		Status:    domain.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.save(ctx, g); err != nil {
		return nil, err
	}
	if err := m.indexOpen(ctx, g.ID); err != nil {
		return nil, err
	}

	obslog.L().Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("white_id", g.WhiteID),
	)
	m.publish(ctx, g)
	return g, nil
}

// JoinGame seats the caller as black and starts the game. Joining a game
// you already sit in is a no-op that returns the current state; any other
// agent arriving at an occupied black seat gets ErrSeatTaken.
func (m *Manager) JoinGame(ctx context.Context, gameID string, ref domain.AgentRef) (*domain.Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("arena manager not initialized")
	}
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.ID == "" {
		return nil, ErrInvalidAgent
	}

	if _, err := m.agents.UpsertAgent(ctx, ref); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}

	gameK := gameKey(gameID)
	var updated *domain.Game
	var started bool

	join := func(tx *redis.Tx) error {
		cur, err := getTx(ctx, tx, gameK)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrGameNotFound
		}
		if cur.WhiteID == ref.ID || cur.BlackID == ref.ID {
			updated = cur
			started = false
			return nil
		}
		if cur.Status == domain.StatusCompleted {
			return ErrGameCompleted
		}
		if cur.BlackID != "" {
			return ErrSeatTaken
		}

		cur.BlackID = ref.ID
		cur.BlackName = ref.Name
		cur.Status = domain.StatusInProgress
		cur.UpdatedAt = time.Now()

		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, gameK, raw, gameTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		started = true
		return nil
	}

	var err error
	for attempt := 0; attempt < joinRetries; attempt++ {
		err = m.rdb.Watch(ctx, join, gameK)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		// lost the race; re-read to learn whether the winner was us,
		// the same agent on another connection, or someone else
	}
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	if started {
		obslog.L().Info("game_join",
			zap.String("game_id", updated.ID),
			zap.String("black_id", updated.BlackID),
		)
		m.publish(ctx, updated)
	}
	return updated, nil
}

// SubmitMove validates and applies one move for the given agent. The
// read-validate-write cycle runs under WATCH: if the history changed
// between our pre-read and the commit the write is abandoned and the
// caller gets ErrConflict. Rejections never modify the game.
func (m *Manager) SubmitMove(ctx context.Context, gameID, agentID string, ref rules.MoveRef) (*domain.Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("arena manager not initialized")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, ErrInvalidAgent
	}

	pre, err := m.get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		return nil, ErrGameNotFound
	}
	prevPlies := len(pre.MovesUCI)

	gameK := gameKey(gameID)
	var (
		updated   *domain.Game
		method    string
		startedAt = pre.CreatedAt
	)

	err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getTx(ctx, tx, gameK)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrGameNotFound
		}
		if cur.Status == domain.StatusCompleted {
			return ErrGameCompleted
		}
		if len(cur.MovesUCI) != prevPlies {
			return redis.TxFailedErr
		}

		color := cur.ParticipantColor(agentID)
		if color == "" {
			return ErrNotParticipant
		}
		if cur.TurnColor() != color {
			return ErrWrongTurn
		}

		applied, err := rules.Apply(cur.MovesUCI, ref)
		if err != nil {
			if errors.Is(err, rules.ErrIllegalMove) {
				return ErrIllegalMove
			}
			return err
		}

		cur.MovesUCI = append(cur.MovesUCI, applied.UCI)
		cur.MovesSAN = append(cur.MovesSAN, applied.SAN)
		cur.FEN = applied.FEN
		cur.UpdatedAt = time.Now()
		if applied.Verdict.Terminal {
			cur.Status = domain.StatusCompleted
			cur.Outcome = applied.Verdict.Outcome
			method = applied.Verdict.Method
		}

		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, gameK, raw, gameTTL)
		if cur.Status == domain.StatusCompleted {
			pipe.SRem(ctx, openIndexKey, cur.ID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		startedAt = cur.CreatedAt
		return nil
	}, gameK)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	obslog.L().Info("game_move",
		zap.String("game_id", updated.ID),
		zap.String("agent_id", agentID),
		zap.String("uci", updated.MovesUCI[len(updated.MovesUCI)-1]),
		zap.Int("ply", len(updated.MovesUCI)),
		zap.String("status", string(updated.Status)),
		zap.String("outcome", string(updated.Outcome)),
	)
	m.publish(ctx, updated)
	if updated.Status == domain.StatusCompleted {
		m.settle(ctx, updated, method, startedAt)
	}
	return updated, nil
}

// Resign ends an in-progress game with the opponent as winner. A game
// still waiting for black cannot be resigned.
func (m *Manager) Resign(ctx context.Context, gameID, agentID string) (*domain.Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("arena manager not initialized")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, ErrInvalidAgent
	}

	gameK := gameKey(gameID)
	var (
		updated   *domain.Game
		startedAt time.Time
	)

	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getTx(ctx, tx, gameK)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrGameNotFound
		}
		if cur.Status == domain.StatusCompleted {
			return ErrGameCompleted
		}
		color := cur.ParticipantColor(agentID)
		if color == "" {
			return ErrNotParticipant
		}
		if cur.Status != domain.StatusInProgress {
			return ErrGameNotStarted
		}

		if color == domain.White {
			cur.Outcome = domain.OutcomeBlackWins
		} else {
			cur.Outcome = domain.OutcomeWhiteWins
		}
		cur.Status = domain.StatusCompleted
		cur.UpdatedAt = time.Now()

		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, gameK, raw, gameTTL)
		pipe.SRem(ctx, openIndexKey, cur.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		startedAt = cur.CreatedAt
		return nil
	}, gameK)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	obslog.L().Info("game_resign",
		zap.String("game_id", updated.ID),
		zap.String("resigner", agentID),
		zap.String("outcome", string(updated.Outcome)),
	)
	m.publish(ctx, updated)
	m.settle(ctx, updated, "resignation", startedAt)
	return updated, nil
}

// GetGame returns the current state of a session.
func (m *Manager) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	g, err := m.get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// ListOpenGames returns joinable and running games, newest first. Entries
// whose game key expired are dropped from the index on the way through.
func (m *Manager) ListOpenGames(ctx context.Context, limit int) ([]*domain.Game, error) {
	ids, err := m.rdb.SMembers(ctx, openIndexKey).Result()
	if err != nil {
		return nil, err
	}
	games := make([]*domain.Game, 0, len(ids))
	for _, id := range ids {
		g, gerr := m.get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if g == nil || g.Status == domain.StatusCompleted {
			_ = m.rdb.SRem(ctx, openIndexKey, id).Err()
			continue
		}
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.After(games[j].CreatedAt) })
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

// settle forwards a completed game to the rating engine. Settlement
// failures are logged and left for reconciliation; the terminal game
// state is already committed and is never rolled back.
func (m *Manager) settle(ctx context.Context, g *domain.Game, method string, startedAt time.Time) {
	if m.ratings == nil {
		return
	}
	if err := m.ratings.ApplyResult(ctx, g, method, startedAt); err != nil {
		obslog.L().Error("rating_settle_error",
			zap.String("game_id", g.ID),
			zap.String("outcome", string(g.Outcome)),
			zap.Error(err),
		)
	}
}

func (m *Manager) save(ctx context.Context, g *domain.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, gameKey(g.ID), raw, gameTTL).Err()
}

func (m *Manager) get(ctx context.Context, id string) (*domain.Game, error) {
	raw, err := m.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func getTx(ctx context.Context, tx *redis.Tx, key string) (*domain.Game, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (m *Manager) indexOpen(ctx context.Context, id string) error {
	if err := m.rdb.SAdd(ctx, openIndexKey, id).Err(); err != nil {
		return err
	}
	// keep the index from outliving its newest game
	_ = m.rdb.Expire(ctx, openIndexKey, gameTTL).Err()
	return nil
}

func (m *Manager) publish(ctx context.Context, g *domain.Game) {
	raw, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := m.rdb.Publish(ctx, eventChannel(g.ID), raw).Err(); err != nil {
		obslog.L().Warn("game_publish_error", zap.String("game_id", g.ID), zap.Error(err))
	}
}

const openIndexKey = "arena:open"

func gameKey(id string) string { return "arena:game:" + strings.TrimSpace(id) }

func eventChannel(id string) string { return "arena:events:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
