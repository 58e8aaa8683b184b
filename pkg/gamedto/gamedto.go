// Package gamedto holds the wire types of the arena HTTP API. Both the
// server handlers and the client encode exactly these shapes.
package gamedto

import (
	"time"

	"github.com/park285/agent-chess-arena/internal/domain"
)

type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Game struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name,omitempty"`
	BlackID   string    `json:"black_id,omitempty"`
	BlackName string    `json:"black_name,omitempty"`
	FEN       string    `json:"fen"`
	MovesSAN  []string  `json:"moves_san"`
	MovesUCI  []string  `json:"moves_uci"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome,omitempty"`
	Turn      string    `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Rating        int       `json:"rating"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateGameRequest struct {
	Agent AgentRef `json:"agent"`
}

type JoinGameRequest struct {
	GameID string   `json:"game_id"`
	Agent  AgentRef `json:"agent"`
}

// MoveRequest accepts either a movetext token in Move (UCI or SAN) or a
// structured From/To pair with optional Promotion piece letter.
type MoveRequest struct {
	AgentID   string `json:"agent_id"`
	Move      string `json:"move,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

type ResignRequest struct {
	AgentID string `json:"agent_id"`
}

type GameResponse struct {
	Game *Game `json:"game"`
}

type GamesResponse struct {
	Games []*Game `json:"games"`
}

type LeaderboardResponse struct {
	Agents []*Agent `json:"agents"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func (e *ErrorResponse) String() string {
	if e == nil {
		return ""
	}
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Error.Code
}

// FromGame maps the authoritative record onto the wire shape. Turn is
// derived here so clients never have to replay the history for it.
func FromGame(g *domain.Game) *Game {
	if g == nil {
		return nil
	}
	return &Game{
		ID:        g.ID,
		WhiteID:   g.WhiteID,
		WhiteName: g.WhiteName,
		BlackID:   g.BlackID,
		BlackName: g.BlackName,
		FEN:       g.FEN,
		MovesSAN:  append([]string{}, g.MovesSAN...),
		MovesUCI:  append([]string{}, g.MovesUCI...),
		Status:    string(g.Status),
		Outcome:   string(g.Outcome),
		Turn:      string(g.TurnColor()),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func FromGames(list []*domain.Game) []*Game {
	out := make([]*Game, 0, len(list))
	for _, g := range list {
		out = append(out, FromGame(g))
	}
	return out
}

func FromAgent(a *domain.Agent) *Agent {
	if a == nil {
		return nil
	}
	return &Agent{
		ID:            a.ID,
		Name:          a.Name,
		Rating:        a.Rating,
		MatchesPlayed: a.MatchesPlayed,
		Wins:          a.Wins,
		Losses:        a.Losses,
		Draws:         a.Draws,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func FromAgents(list []*domain.Agent) []*Agent {
	out := make([]*Agent, 0, len(list))
	for _, a := range list {
		out = append(out, FromAgent(a))
	}
	return out
}
