// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gold-trading-insight/internal/config"
	"gold-trading-insight/internal/domain/ports/adapter"
	"gold-trading-insight/internal/flow"
	aiAdapters "gold-trading-insight/internal/infra/adapters/ai"
	pg "gold-trading-insight/internal/infra/db/postgres"
	"gold-trading-insight/internal/infra/logging"
	"gold-trading-insight/internal/infra/metrics"
	red "gold-trading-insight/internal/infra/redis"
	"gold-trading-insight/internal/infra/web"
	"gold-trading-insight/internal/infra/worker"
	"gold-trading-insight/internal/stream"
	"gold-trading-insight/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (header auth, noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	convRepo := pg.NewConversationRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	progressStore := red.NewProgressStore(redisClient, cfg.Flow.JobTTL)
	historyStore := red.NewHistoryStore(redisClient, cfg.Flow.JobTTL)

	// ---- AI client (OpenAI -> Gemini -> noop in dev) ----
	var ai adapter.ModelClient
	var provider string
	switch {
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai client")
		}
		provider = "openai"
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client")
		}
		provider = "gemini"
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopClient()
		provider = "noop"
	default:
		logger.Fatal().Msgf("no AI provider configured: set ai.openai_key or ai.gemini_key in %s", *cfgPath)
	}
	logger.Info().Str("provider", provider).Str("model", cfg.AI.DefaultModel).Msg("model client ready")
	ai = aiAdapters.NewTimeoutClient(ai, cfg.AI.Timeout)
	ai = aiAdapters.NewLimitedClient(ai, cfg.Server.Workers)
	ai = aiAdapters.NewMeteredClient(ai, provider, cfg.AI.DefaultModel)

	// ---- Flow engine ----
	classifier := flow.NewClassifier(ai, logger)
	orch := flow.NewOrchestrator(
		progressStore, historyStore, ai, classifier,
		flow.AnalysisSteps(ai), flow.MarketingSteps(ai),
		logger,
	)
	presenter := stream.NewPresenter(progressStore, cfg.Flow.PollInterval, cfg.Flow.SegmentDelay, logger)

	wp := worker.NewPool(cfg.Server.Workers, cfg.Server.QueueSize, logger)
	wp.Start(ctx)

	chatUC := usecase.NewChatUseCase(convRepo, historyStore, orch, presenter, wp, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.HMACSecret, 24*time.Hour)
	srv := web.NewServer(chatUC, auth, cfg.Runtime.Dev, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
		// No global write timeout: SSE responses stay open for minutes.
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := server.Shutdown(shutCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	wp.Stop()
	cancel()
}
