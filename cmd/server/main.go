package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/hbarker/grant-radar/internal/ai"
	"github.com/hbarker/grant-radar/internal/api"
	"github.com/hbarker/grant-radar/internal/config"
	"github.com/hbarker/grant-radar/internal/db"
	"github.com/hbarker/grant-radar/internal/ingest"
	"github.com/hbarker/grant-radar/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogJSON, cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed: " + err.Error())
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		zlog.Fatal("migrations failed: " + err.Error())
	}

	store := db.NewStore(pool)

	registry, err := ingest.LoadRegistry()
	if err != nil {
		zlog.Fatal("loading source registry failed: " + err.Error())
	}

	fetcher := ingest.NewHTTPFetcher(cfg.FetchTimeout)
	adapters, err := ingest.BuildAdapters(registry, fetcher, cfg.FetchTimeout, zlog)
	if err != nil {
		zlog.Fatal("building source adapters failed: " + err.Error())
	}

	orchestrator := ingest.NewOrchestrator(adapters, store, cfg.BatchSize, zlog)
	oracle := ai.NewOracleClient(cfg.OracleURL, cfg.OracleModel)

	srv := api.NewServer(&cfg, store, orchestrator, oracle, zlog)
	zlog.Info("server starting on port " + cfg.Port)
	if err := srv.Start(); err != nil {
		zlog.Fatal("server stopped: " + err.Error())
	}
}
