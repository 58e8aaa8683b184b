package arena

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/park285/agent-chess-arena/internal/domain"
	"github.com/park285/agent-chess-arena/internal/obslog"
)

// GameFeed delivers state snapshots for one game as they are committed.
// The channel closes when the subscription ends; call Close to end it.
type GameFeed struct {
	ch chan *domain.Game
	ps interface{ Close() error }
}

// Games yields a snapshot per committed mutation. Slow consumers drop
// intermediate snapshots rather than stalling the pump.
func (f *GameFeed) Games() <-chan *domain.Game { return f.ch }

func (f *GameFeed) Close() error {
	if f == nil || f.ps == nil {
		return nil
	}
	return f.ps.Close()
}

// SubscribeGame opens a feed of state changes for the given game. The
// subscription is confirmed before the call returns, so anything
// published afterwards is delivered; callers wanting the current state
// should GetGame after subscribing.
func (m *Manager) SubscribeGame(ctx context.Context, gameID string) *GameFeed {
	ps := m.rdb.Subscribe(ctx, eventChannel(gameID))
	if _, err := ps.Receive(ctx); err != nil {
		obslog.L().Warn("game_feed_subscribe_error", zap.String("game_id", gameID), zap.Error(err))
	}
	feed := &GameFeed{ch: make(chan *domain.Game, 8), ps: ps}

	go func() {
		defer close(feed.ch)
		for msg := range ps.Channel() {
			var g domain.Game
			if err := json.Unmarshal([]byte(msg.Payload), &g); err != nil {
				obslog.L().Warn("game_feed_decode_error", zap.String("game_id", gameID), zap.Error(err))
				continue
			}
			select {
			case feed.ch <- &g:
			default:
			}
		}
	}()
	return feed
}
