package domain

import "time"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Status represents the lifecycle state of a game session.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Outcome classifies a finished game. Empty until the game completes.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWhiteWins Outcome = "white"
	OutcomeBlackWins Outcome = "black"
	OutcomeDraw      Outcome = "draw"
)

// AgentRef is the identity an agent presents with every request.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Agent is the durable rating record for one agent.
// Invariant: MatchesPlayed = Wins + Losses + Draws.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Rating        int       `json:"rating"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultRating is assigned to an agent on first participation.
const DefaultRating = 1200

// Game is the authoritative state of one session.
// Status=WAITING iff BlackID is empty; Status=COMPLETED iff Outcome is set.
// Once completed the record is immutable.
type Game struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name"`
	BlackID   string    `json:"black_id,omitempty"`
	BlackName string    `json:"black_name,omitempty"`
	FEN       string    `json:"fen"`
	MovesSAN  []string  `json:"moves_san"`
	MovesUCI  []string  `json:"moves_uci"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TurnColor derives the side to move from history length parity.
// The turn is never stored so it cannot diverge from the history.
func (g *Game) TurnColor() Color {
	if len(g.MovesUCI)%2 == 0 {
		return White
	}
	return Black
}

// ParticipantColor returns the seat held by agentID, or "" for non-participants.
func (g *Game) ParticipantColor(agentID string) Color {
	switch {
	case agentID != "" && agentID == g.WhiteID:
		return White
	case agentID != "" && agentID == g.BlackID:
		return Black
	default:
		return ""
	}
}

// OpponentOf returns the id of the other seat, or "" if agentID is not seated.
func (g *Game) OpponentOf(agentID string) string {
	switch {
	case agentID == g.WhiteID:
		return g.BlackID
	case agentID == g.BlackID:
		return g.WhiteID
	default:
		return ""
	}
}
