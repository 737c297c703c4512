// Package api exposes the advisory hooks over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agroshakti/agroshakti-backend/internal/auth"
	"github.com/agroshakti/agroshakti-backend/internal/history"
	"github.com/agroshakti/agroshakti-backend/internal/monitor"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/translate"
)

// HistoryStore is what the router needs from the history store.
type HistoryStore interface {
	history.Recorder
	HistoryReader
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Catalog     *catalog.Catalog
	Resolver    ChatResolver
	Advisor     CureAdvisor
	History     HistoryStore
	Monitor     *monitor.AttemptMonitor
	Translator  translate.Translator
	Verifier    auth.Verifier // nil runs without authentication
	CORSOrigins []string
	Started     time.Time
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	started := d.Started
	if started.IsZero() {
		started = time.Now()
	}
	r.Get("/health", HealthHandler(started))

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier))

		r.Route("/hooks", func(r chi.Router) {
			r.Post("/chatbot", ChatbotHandler(d.Resolver, d.Translator, d.History))
			r.Post("/disease-cure", DiseaseCureHandler(d.Advisor, d.History))
		})

		r.Get("/history/chat", ChatHistoryHandler(d.History))
		r.Get("/providers", ProvidersHandler(d.Catalog))

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Delete("/users/{id}/history", DeleteUserHistoryHandler(d.History))
			if d.Monitor != nil {
				r.Get("/attempts", AttemptsHandler(d.Monitor))
				r.Delete("/attempts", ClearAttemptsHandler(d.Monitor))
				r.Get("/stats", StatsHandler(d.Monitor))
				r.Post("/monitor", ToggleMonitorHandler(d.Monitor))
			}
		})
	})

	return r
}
