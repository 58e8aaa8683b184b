package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/agent-chess-arena/internal/domain"
)

// Postgres is the production AgentStore. Both agent rows and the archive
// marker are written inside one transaction, which is what makes the
// rating settlement idempotent and all-or-nothing.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// EnsureSchema creates the tables when they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS agents (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL DEFAULT '',
			rating         INTEGER NOT NULL,
			matches_played INTEGER NOT NULL DEFAULT 0,
			wins           INTEGER NOT NULL DEFAULT 0,
			losses         INTEGER NOT NULL DEFAULT 0,
			draws          INTEGER NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS match_results (
			game_id     TEXT PRIMARY KEY,
			white_id    TEXT NOT NULL,
			white_name  TEXT NOT NULL DEFAULT '',
			black_id    TEXT NOT NULL,
			black_name  TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			method      TEXT NOT NULL DEFAULT '',
			moves_uci   JSONB NOT NULL DEFAULT '[]',
			moves_san   JSONB NOT NULL DEFAULT '[]',
			pgn         TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ,
			ended_at    TIMESTAMPTZ,
			duration_ms BIGINT NOT NULL DEFAULT 0
		);`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertAgent(ctx context.Context, ref domain.AgentRef) (*domain.Agent, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil, ErrAgentNotFound
	}
	const q = `
		INSERT INTO agents (id, name, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
		RETURNING id, name, rating, matches_played, wins, losses, draws, created_at, updated_at`

	var a domain.Agent
	err := p.db.QueryRowContext(ctx, q, id, strings.TrimSpace(ref.Name), domain.DefaultRating).Scan(
		&a.ID, &a.Name, &a.Rating, &a.MatchesPlayed, &a.Wins, &a.Losses, &a.Draws, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}
	return &a, nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	const q = `
		SELECT id, name, rating, matches_played, wins, losses, draws, created_at, updated_at
		FROM agents WHERE id = $1`
	a, err := scanAgent(p.db.QueryRowContext(ctx, q, strings.TrimSpace(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	return a, nil
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]*domain.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, name, rating, matches_played, wins, losses, draws, created_at, updated_at
		FROM agents
		ORDER BY rating DESC, id ASC
		LIMIT $1`
	rows, err := p.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	agents := make([]*domain.Agent, 0, limit)
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Rating, &a.MatchesPlayed, &a.Wins, &a.Losses, &a.Draws, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

func (p *Postgres) ApplyMatchResult(ctx context.Context, res *MatchResult, exchange ExchangeFunc) (bool, error) {
	if err := validateResult(res); err != nil {
		return false, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback()

	movesUCI, _ := json.Marshal(res.MovesUCI)
	movesSAN, _ := json.Marshal(res.MovesSAN)
	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	// The archive row doubles as the applied marker: if it already exists
	// the ratings for this game have been settled and nothing is touched.
	const insertResult = `
		INSERT INTO match_results (
			game_id, white_id, white_name, black_id, black_name,
			outcome, method, moves_uci, moves_san, pgn,
			started_at, ended_at, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (game_id) DO NOTHING`
	ins, err := tx.ExecContext(ctx, insertResult,
		res.GameID,
		res.WhiteID, res.WhiteName,
		res.BlackID, res.BlackName,
		string(res.Outcome), strings.TrimSpace(res.Method),
		string(movesUCI), string(movesSAN), buildPGN(res),
		res.StartedAt, res.EndedAt, duration,
	)
	if err != nil {
		return false, fmt.Errorf("archive result: %w", err)
	}
	if n, _ := ins.RowsAffected(); n == 0 {
		return false, nil
	}

	white, err := lockAgent(ctx, tx, res.WhiteID)
	if err != nil {
		return false, err
	}
	black, err := lockAgent(ctx, tx, res.BlackID)
	if err != nil {
		return false, err
	}

	newWhite, newBlack := exchange(white.Rating, black.Rating)
	now := time.Now()
	white.Rating = newWhite
	black.Rating = newBlack
	applyCounters(white, domain.White, res.Outcome, now)
	applyCounters(black, domain.Black, res.Outcome, now)

	for _, a := range []*domain.Agent{white, black} {
		if err := updateAgentTx(ctx, tx, a); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit settlement: %w", err)
	}
	return true, nil
}

func lockAgent(ctx context.Context, tx *sql.Tx, id string) (*domain.Agent, error) {
	const q = `
		SELECT id, name, rating, matches_played, wins, losses, draws, created_at, updated_at
		FROM agents WHERE id = $1 FOR UPDATE`
	a, err := scanAgent(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock agent %s: %w", id, err)
	}
	return a, nil
}

func updateAgentTx(ctx context.Context, tx *sql.Tx, a *domain.Agent) error {
	const q = `
		UPDATE agents SET
			rating = $2,
			matches_played = $3,
			wins = $4,
			losses = $5,
			draws = $6,
			updated_at = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, q, a.ID, a.Rating, a.MatchesPlayed, a.Wins, a.Losses, a.Draws, a.UpdatedAt); err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var a domain.Agent
	if err := row.Scan(&a.ID, &a.Name, &a.Rating, &a.MatchesPlayed, &a.Wins, &a.Losses, &a.Draws, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
