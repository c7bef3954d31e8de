package main

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rtvpioli/assistant-engine/cmd/assistant-api/handlers"
	"github.com/rtvpioli/assistant-engine/cmd/assistant-api/middleware"
	"github.com/rtvpioli/assistant-engine/internal/config"
	"github.com/rtvpioli/assistant-engine/internal/observability"
)

// Dependencies holds the wired services the router exposes.
type Dependencies struct {
	DB           *sql.DB
	Chat         handlers.ChatService
	Suggestions  handlers.SuggestionLister
	Handoffs     handlers.HandoffLister
	Usage        handlers.UsageReader
	FAQs         handlers.FAQReviewStore
	ProviderName string
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"assistant-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	chatHandler := handlers.NewChatHandler(logger, deps.Chat)
	statusHandler := handlers.NewStatusHandler(deps.ProviderName, cfg.Database.Driver, cfg.Cache.Driver)
	adminHandler := handlers.NewAdminHandler(logger, deps.Suggestions, deps.Handoffs, deps.Usage, deps.FAQs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/welcome", chatHandler.Welcome)
			r.Post("/message", chatHandler.Message)
		})

		r.Get("/status", statusHandler.Status)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Server.AdminToken))

			r.Get("/suggestions", adminHandler.Suggestions)
			r.Get("/handoffs", adminHandler.Handoffs)
			r.Get("/usage", adminHandler.Usage)
			r.Get("/faqs/pending", adminHandler.PendingFAQs)
			r.Post("/faqs/{id}/approve", adminHandler.ApproveFAQ)
		})
	})

	return r
}
