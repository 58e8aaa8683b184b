package arena

import "errors"

// Error taxonomy surfaced to callers. Only ErrConflict is retryable as-is;
// the caller must reload the game before retrying.
var (
	ErrInvalidAgent   = errors.New("agent id required")
	ErrGameNotFound   = errors.New("game not found")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrNotParticipant = errors.New("agent is not a participant")
	ErrWrongTurn      = errors.New("not this agent's turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrGameCompleted  = errors.New("game already completed")
	ErrGameNotStarted = errors.New("game has not started")
	ErrConflict       = errors.New("concurrent update detected, reload and retry")
)
