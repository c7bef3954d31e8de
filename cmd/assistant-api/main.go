// Package main provides the assistant API server entrypoint.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rtvpioli/assistant-engine/internal/ai"
	"github.com/rtvpioli/assistant-engine/internal/cache"
	"github.com/rtvpioli/assistant-engine/internal/chat"
	"github.com/rtvpioli/assistant-engine/internal/config"
	"github.com/rtvpioli/assistant-engine/internal/escalation"
	"github.com/rtvpioli/assistant-engine/internal/humanizer"
	"github.com/rtvpioli/assistant-engine/internal/knowledge"
	"github.com/rtvpioli/assistant-engine/internal/notify"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
	"github.com/rtvpioli/assistant-engine/internal/suggestions"
)

func main() {
	// A missing .env file is fine, environment variables still apply.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("ai", cfg.AI.Provider).
		Msg("Starting assistant API")

	ctx := context.Background()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	cacheBackend := newCacheClient(cfg, logger)
	provider := newProvider(ctx, cfg, db, cacheBackend, logger)

	deps := buildDependencies(cfg, db, cacheBackend, provider, logger)
	router := NewRouter(logger, cfg, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

// buildDependencies wires the repositories and the two answer layers.
func buildDependencies(cfg *config.Config, db *sql.DB, backend cache.Backend,
	provider ai.Provider, logger *observability.Logger) *Dependencies {
	sessionRepo := storage.NewSessionRepository(db)
	messageRepo := storage.NewMessageRepository(db)
	faqRepo := storage.NewFAQRepository(db)
	cachedRepo := storage.NewCachedAnswerRepository(db)
	knowledgeRepo := storage.NewKnowledgeRepository(db)
	suggestionRepo := storage.NewSuggestionRepository(db)
	handoffRepo := storage.NewHandoffRepository(db)
	usageRepo := storage.NewAIUsageRepository(db)
	branchRepo := storage.NewBranchRepository(db)
	tariffRepo := storage.NewTariffRepository(db)
	apptRepo := storage.NewAppointmentRepository(db)

	searcher := knowledge.NewSearcher(knowledgeRepo, logger)

	mailer := notify.NewSMTPMailer(cfg.Escalation.SMTP, logger)
	notifier := notify.NewNotifier(mailer, cfg.Assistant.CompanyName, cfg.Assistant.SiteURL,
		cfg.Assistant.LinkSecret, cfg.Escalation.ReviewRecipients, logger)

	flow := escalation.NewFlow(sessionRepo, messageRepo, handoffRepo, branchRepo, notifier, logger)

	cachedFAQs := resolver.NewCachedFAQStore(faqRepo, backend, cfg.Cache.TTL, logger)

	res := resolver.New(cachedFAQs, cachedRepo, tariffRepo, branchRepo, apptRepo,
		searcher, flow, notifier, logger,
		resolver.WithCacheSimilarity(cfg.Assistant.CacheSimilarity))

	tracker := suggestions.NewTracker(suggestionRepo, provider, cfg.Assistant.SuggestionOverlap, logger)
	dailyUsage := ai.NewDailyUsage(backend, usageRepo, logger)

	hum := humanizer.New(provider, sessionRepo, cachedRepo, faqRepo, dailyUsage, tracker,
		cfg.Assistant.SystemPrompt, cfg.Assistant.ErrorMessage,
		humanizer.Limits{
			MaxCallsPerSession: cfg.AI.MaxCallsPerSession,
			MaxCallsPerDay:     cfg.AI.MaxCallsPerDay,
		}, logger)

	svc := chat.NewService(sessionRepo, messageRepo, res, hum, flow,
		cfg.Assistant.WelcomeMessage, cfg.Assistant.SessionTTL, logger)

	return &Dependencies{
		DB:           db,
		Chat:         svc,
		Suggestions:  suggestionRepo,
		Handoffs:     handoffRepo,
		Usage:        usageRepo,
		FAQs:         &faqReviewStore{FAQRepository: faqRepo, cached: cachedFAQs},
		ProviderName: provider.Name(),
	}
}

// faqReviewStore drops the resolver's cached FAQ list whenever an admin
// approves an entry, so the new answer takes effect without waiting out the
// cache TTL.
type faqReviewStore struct {
	*storage.FAQRepository
	cached *resolver.CachedFAQStore
}

func (s *faqReviewStore) Approve(ctx context.Context, id uuid.UUID) error {
	if err := s.FAQRepository.Approve(ctx, id); err != nil {
		return err
	}
	s.cached.Invalidate(ctx)
	return nil
}

// newCacheClient prefers Redis and degrades to the in-process cache so a
// cache outage never takes the assistant down.
func newCacheClient(cfg *config.Config, logger *observability.Logger) cache.Backend {
	if cfg.Cache.Driver == "redis" {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err == nil {
			return client
		}
		logger.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries)
}

// newProvider builds the generative backend wrapped with usage recording.
func newProvider(ctx context.Context, cfg *config.Config, db *sql.DB,
	counter cache.Counter, logger *observability.Logger) ai.Provider {
	var inner ai.Provider = ai.NoneProvider{}
	if cfg.AI.Provider == "gemini" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Gemini unavailable, running without generation")
		} else {
			inner = gemini
		}
	}

	usageRepo := storage.NewAIUsageRepository(db)
	return ai.NewRecordingProvider(inner, usageRepo, logger, ai.WithDailyCounter(counter))
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
		return db, nil
	default:
		dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=5000",
			cfg.Database.SQLite.Path, cfg.Database.SQLite.JournalMode)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.SQLite.MaxOpenConns)
		return db, nil
	}
}
