// Package httpapi exposes the arena over JSON HTTP plus a websocket
// event feed per game.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/agent-chess-arena/internal/arena"
	"github.com/park285/agent-chess-arena/internal/obslog"
	"github.com/park285/agent-chess-arena/internal/store"
	"github.com/park285/agent-chess-arena/pkg/gamedto"
)

type Service struct {
	games            *arena.Manager
	agents           store.AgentStore
	leaderboardLimit int
	openGamesLimit   int
}

func NewService(games *arena.Manager, agents store.AgentStore, leaderboardLimit, openGamesLimit int) *Service {
	return &Service{
		games:            games,
		agents:           agents,
		leaderboardLimit: leaderboardLimit,
		openGamesLimit:   openGamesLimit,
	}
}

func NewRouter(svc *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/games", svc.handleListGames)
	mux.HandleFunc("/api/games/create", svc.handleCreateGame)
	mux.HandleFunc("/api/games/join", svc.handleJoinGame)
	mux.HandleFunc("/api/games/", svc.handleGameSubresource)
	mux.HandleFunc("/api/leaderboard", svc.handleLeaderboard)
	mux.HandleFunc("/healthz", svc.handleHealthz)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the arena error taxonomy onto HTTP statuses. Unknown
// errors are logged and returned opaque.
func writeError(w http.ResponseWriter, err error) {
	var (
		status    int
		code      string
		retryable bool
	)
	switch {
	case errors.Is(err, arena.ErrGameNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, arena.ErrSeatTaken):
		status, code = http.StatusForbidden, "SEAT_TAKEN"
	case errors.Is(err, arena.ErrNotParticipant):
		status, code = http.StatusForbidden, "NOT_A_PARTICIPANT"
	case errors.Is(err, arena.ErrWrongTurn):
		status, code = http.StatusBadRequest, "WRONG_TURN"
	case errors.Is(err, arena.ErrIllegalMove):
		status, code = http.StatusBadRequest, "ILLEGAL_MOVE"
	case errors.Is(err, arena.ErrGameCompleted):
		status, code = http.StatusBadRequest, "GAME_ALREADY_COMPLETED"
	case errors.Is(err, arena.ErrGameNotStarted):
		status, code = http.StatusBadRequest, "GAME_NOT_STARTED"
	case errors.Is(err, arena.ErrInvalidAgent):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, arena.ErrConflict):
		status, code, retryable = http.StatusConflict, "CONFLICT", true
	default:
		obslog.L().Error("api_internal_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, gamedto.ErrorResponse{
			Error: gamedto.ErrorBody{Code: "INTERNAL", Message: "internal error"},
		})
		return
	}
	writeJSON(w, status, gamedto.ErrorResponse{
		Error: gamedto.ErrorBody{Code: code, Message: err.Error(), Retryable: retryable},
	})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, gamedto.ErrorResponse{
		Error: gamedto.ErrorBody{Code: "INVALID_REQUEST", Message: msg},
	})
}
