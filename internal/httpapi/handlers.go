package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/park285/agent-chess-arena/internal/domain"
	"github.com/park285/agent-chess-arena/internal/rules"
	"github.com/park285/agent-chess-arena/pkg/gamedto"
)

func (s *Service) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req gamedto.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	g, err := s.games.CreateGame(r.Context(), domain.AgentRef{ID: req.Agent.ID, Name: req.Agent.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gamedto.GameResponse{Game: gamedto.FromGame(g)})
}

func (s *Service) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req gamedto.JoinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if strings.TrimSpace(req.GameID) == "" {
		writeBadRequest(w, "game_id required")
		return
	}
	g, err := s.games.JoinGame(r.Context(), req.GameID, domain.AgentRef{ID: req.Agent.ID, Name: req.Agent.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.GameResponse{Game: gamedto.FromGame(g)})
}

func (s *Service) handleListGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	games, err := s.games.ListOpenGames(r.Context(), s.openGamesLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.GamesResponse{Games: gamedto.FromGames(games)})
}

// handleGameSubresource dispatches /api/games/{id} and its children.
func (s *Service) handleGameSubresource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/games/"), "/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch sub {
	case "":
		s.handleGetGame(w, r, id)
	case "move":
		s.handleMove(w, r, id)
	case "resign":
		s.handleResign(w, r, id)
	case "board":
		s.handleBoard(w, r, id)
	case "events":
		s.handleEvents(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Service) handleGetGame(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g, err := s.games.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.GameResponse{Game: gamedto.FromGame(g)})
}

func (s *Service) handleMove(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req gamedto.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Move) == "" && (strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "") {
		writeBadRequest(w, "move or from/to required")
		return
	}
	g, err := s.games.SubmitMove(r.Context(), id, req.AgentID, rules.MoveRef{
		Token:     req.Move,
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.GameResponse{Game: gamedto.FromGame(g)})
}

func (s *Service) handleResign(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req gamedto.ResignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	g, err := s.games.Resign(r.Context(), id, req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.GameResponse{Game: gamedto.FromGame(g)})
}

func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	agents, err := s.agents.Leaderboard(r.Context(), s.leaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.LeaderboardResponse{Agents: gamedto.FromAgents(agents)})
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
