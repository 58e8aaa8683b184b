package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/agent-chess-arena/internal/arena"
	appcfg "github.com/park285/agent-chess-arena/internal/config"
	"github.com/park285/agent-chess-arena/internal/httpapi"
	"github.com/park285/agent-chess-arena/internal/obslog"
	"github.com/park285/agent-chess-arena/internal/rating"
	"github.com/park285/agent-chess-arena/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer obslog.Sync()

	agents, cleanup, err := buildAgentStore(cfg)
	if err != nil {
		log.Fatalf("agent store init error: %v", err)
	}
	defer cleanup()

	ratings := rating.NewEngine(agents)
	games, err := arena.NewManager(cfg.RedisURL, agents, ratings)
	if err != nil {
		log.Fatalf("arena init error: %v", err)
	}
	defer games.Close()

	svc := httpapi.NewService(games, agents, cfg.LeaderboardLimit, cfg.OpenGamesLimit)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("arena_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("shutdown_error", zap.Error(err))
	}
}

// buildAgentStore picks Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise. The in-memory store loses ratings on
// restart and is only meant for local runs.
func buildAgentStore(cfg *appcfg.AppConfig) (store.AgentStore, func(), error) {
	if cfg.DatabaseURL == "" {
		obslog.L().Warn("agent_store_memory", zap.String("reason", "DATABASE_URL not set"))
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}
