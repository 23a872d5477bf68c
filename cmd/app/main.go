// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goalforge-async/internal/config"
	"goalforge-async/internal/domain/ports/adapter"
	pg "goalforge-async/internal/infra/db/postgres"
	"goalforge-async/internal/infra/logging"
	"goalforge-async/internal/infra/metrics"
	red "goalforge-async/internal/infra/redis"
	"goalforge-async/internal/infra/web"
	wf "goalforge-async/internal/infra/workflow"
	"goalforge-async/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop workflow engine, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().
		Str("database_url", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).
		Str("workflow_api_key", logging.Redact(cfg.Workflow.APIKey, cfg.Runtime.Dev)).
		Msg("configuration loaded")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	txManager := pg.NewTxManager(pool)
	stateRepo := pg.NewProcessingStateRepo(pool, txManager)

	// ---- Redis (per-job locks) ----
	var locker usecase.Locker
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
	} else {
		logger.Warn().Msg("redis not configured, cancel/retry run without per-job locks")
	}

	// ---- Workflow engine ----
	var engine adapter.WorkflowEngine
	if cfg.Runtime.Dev || cfg.Workflow.BaseURL == "" {
		engine = wf.NewNoopGateway()
		logger.Warn().Msg("workflow engine: noop (no executions will run)")
	} else {
		engine, err = wf.NewHTTPGateway(cfg.Workflow.BaseURL, cfg.Workflow.APIKey, cfg.Workflow.Timeout)
		if err != nil {
			log.Fatalf("workflow gateway: %v", err)
		}
		logger.Info().Str("engine", engine.Name()).Str("base_url", cfg.Workflow.BaseURL).Msg("workflow engine configured")
	}

	// ---- Use cases ----
	genUC := usecase.NewGenerationUseCase(stateRepo, engine, locker, cfg.Redis.LockTTL, cfg.Generation, logger)

	// ---- HTTP server ----
	metrics.MustRegister()
	auth := web.NewAuthManager(cfg.Auth.HMACSecret)
	server := web.NewServer(genUC, auth, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
