// arenacheck exercises a running arena server end to end: two agents
// play a fool's mate and the checker verifies the outcome and the
// rating exchange on the leaderboard.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/agent-chess-arena/internal/apiclient"
	"github.com/park285/agent-chess-arena/pkg/gamedto"
)

func main() {
	baseURL := os.Getenv("ARENA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}

	client := apiclient.NewClient(baseURL, apiclient.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	suffix := time.Now().UnixNano()
	white := gamedto.AgentRef{ID: fmt.Sprintf("check-white-%d", suffix), Name: "Check White"}
	black := gamedto.AgentRef{ID: fmt.Sprintf("check-black-%d", suffix), Name: "Check Black"}

	g, err := client.CreateGame(ctx, white)
	if err != nil {
		log.Fatalf("create game: %v", err)
	}
	log.Printf("created game %s (status=%s)", g.ID, g.Status)

	if _, err := client.JoinGame(ctx, g.ID, black); err != nil {
		log.Fatalf("join game: %v", err)
	}

	// Fool's mate: black delivers checkmate on move two.
	script := []struct {
		agent gamedto.AgentRef
		move  string
	}{
		{white, "f3"},
		{black, "e5"},
		{white, "g4"},
		{black, "Qh4#"},
	}
	for _, step := range script {
		g, err = client.SubmitMove(ctx, g.ID, gamedto.MoveRequest{AgentID: step.agent.ID, Move: step.move})
		if err != nil {
			log.Fatalf("move %s by %s: %v", step.move, step.agent.ID, err)
		}
		log.Printf("move %s accepted (status=%s turn=%s)", step.move, g.Status, g.Turn)
	}

	if g.Status != "COMPLETED" || g.Outcome != "black" {
		log.Fatalf("expected black checkmate, got status=%s outcome=%s", g.Status, g.Outcome)
	}

	agents, err := client.Leaderboard(ctx)
	if err != nil {
		log.Fatalf("leaderboard: %v", err)
	}
	ratings := map[string]int{}
	for _, a := range agents {
		ratings[a.ID] = a.Rating
	}
	// 1200 vs 1200 with K=32: winner 1216, loser 1184.
	if ratings[black.ID] != 1216 || ratings[white.ID] != 1184 {
		log.Fatalf("unexpected ratings: white=%d black=%d", ratings[white.ID], ratings[black.ID])
	}

	log.Printf("ok: game=%s outcome=%s white=%d black=%d", g.ID, g.Outcome, ratings[white.ID], ratings[black.ID])
}
