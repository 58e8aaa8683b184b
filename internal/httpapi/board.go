package httpapi

import (
	"net/http"

	"github.com/park285/agent-chess-arena/internal/boardimg"
)

// handleBoard renders the current position of a game as a PNG.
func (s *Service) handleBoard(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g, err := s.games.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	img, err := boardimg.Render(g.FEN)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}
