package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/agent-chess-arena/pkg/gamedto"
)

const wsWriteTimeout = 5 * time.Second

// handleEvents streams state snapshots for one game over a websocket.
// The current state is sent first, then one message per committed
// mutation until the client disconnects.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.games.GetGame(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	feed := s.games.SubscribeGame(ctx, id)
	defer feed.Close()

	// Read the snapshot only after the feed is attached, so a mutation
	// committed in between still reaches the client (as a duplicate at
	// worst; snapshots are full states).
	g, err := s.games.GetGame(ctx, id)
	if err != nil {
		return
	}
	if err := writeSnapshot(ctx, conn, gamedto.FromGame(g)); err != nil {
		return
	}
	for snap := range feed.Games() {
		if err := writeSnapshot(ctx, conn, gamedto.FromGame(snap)); err != nil {
			return
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap *gamedto.Game) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, snap)
}
