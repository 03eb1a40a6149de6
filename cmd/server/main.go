package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/agent"
	"github.com/eldtechnologies/agentrooms/internal/api"
	"github.com/eldtechnologies/agentrooms/internal/api/middleware"
	"github.com/eldtechnologies/agentrooms/internal/broker"
	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/config"
	"github.com/eldtechnologies/agentrooms/internal/handlers"
	"github.com/eldtechnologies/agentrooms/internal/llm"
	"github.com/eldtechnologies/agentrooms/internal/mention"
	"github.com/eldtechnologies/agentrooms/internal/ratelimit"
	"github.com/eldtechnologies/agentrooms/internal/store"
	"github.com/eldtechnologies/agentrooms/internal/transport"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store connection failed")
	}
	gw := store.NewGateway(backend)
	defer gw.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	// Redis also backs the rate limiters so limits hold across instances.
	var readLimiter ratelimit.Limiter
	var httpLimiters ratelimit.Factory
	if rb, ok := backend.(*store.RedisBackend); ok {
		readLimiter = ratelimit.NewRedisLimiter(rb.Client(), "read", cfg.ReadReceiptLimit, cfg.ReadReceiptWindow)
		httpLimiters = ratelimit.RedisFactory(rb.Client(), "http")
	} else {
		readLimiter = ratelimit.NewMemoryLimiter(cfg.ReadReceiptLimit, cfg.ReadReceiptWindow)
		httpLimiters = ratelimit.MemoryFactory()
	}

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("llm", cfg.LLMBackend).Msg("text generation setup failed")
	}
	logger.Info().Str("llm", cfg.LLMBackend).Msg("text generation ready")

	br := broker.New(logger)
	svc := chat.NewService(chat.Options{
		Store:     gw,
		Broker:    br,
		Resolver:  mention.NewResolver(gw, cfg.MentionsCrossRoom),
		Limiter:   readLimiter,
		Generator: gen,
		Agent: agent.Config{
			HistorySize:   cfg.AgentHistorySize,
			Timeout:       cfg.GenerationTimeout,
			ResponseDelay: cfg.AgentResponseDelay,
		},
		Logger: logger,
	})

	seed := chat.DefaultSeed()
	if cfg.SeedFile != "" {
		seed, err = chat.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("invalid seed file")
		}
		if _, err := svc.Seed(ctx, seed); err != nil {
			logger.Fatal().Err(err).Msg("seeding failed")
		}
		logger.Info().Int("rooms", len(seed.Rooms)).Msg("seed data loaded")
	}

	var auth *middleware.AuthMiddleware
	if cfg.AuthEnabled() {
		auth, err = middleware.NewAuthMiddleware(cfg.AuthUser, cfg.AuthPassword, cfg.AuthPasswordHash, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid auth configuration")
		}
	} else {
		logger.Warn().Msg("AUTH_USER not set, API is open")
	}

	// Create router
	router := api.NewRouter(logger, api.Options{
		Handler: handlers.NewHandler(svc, gw, seed, logger),
		WebSocket: transport.NewServer(br, svc, transport.ServerOptions{
			InsecureSkipVerify: cfg.WSInsecureSkipVerify,
			OriginPatterns:     originHosts(cfg.AllowedOrigins),
		}, logger),
		Auth:               auth,
		Limiters:           httpLimiters,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		AllowedOrigins:     cfg.AllowedOrigins,
	})

	// Create server. Writes must outlive a full generation on POST /chat.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting agentrooms server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop agent reply chains before the store goes away.
	svc.Close()

	logger.Info().Msg("server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StoreRedis:
		return store.NewRedisBackend(ctx, cfg.RedisURL)
	case config.StorePostgres:
		return store.NewPostgresBackend(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		return store.NewSQLiteBackend(ctx, cfg.SQLitePath)
	default:
		return store.NewMemoryBackend(), nil
	}
}

// originHosts turns CORS origins into the host patterns the WebSocket origin
// check matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		hosts = append(hosts, strings.TrimSuffix(o, "/"))
	}
	return hosts
}

func newGenerator(ctx context.Context, cfg *config.Config) (agent.Generator, error) {
	switch cfg.LLMBackend {
	case config.LLMVertex:
		return llm.NewGenAIClient(ctx, llm.GenAIConfig{
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
	case config.LLMGemini:
		return llm.NewGenAIClient(ctx, llm.GenAIConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.ModelName,
		})
	default:
		return llm.NewMock(), nil
	}
}
