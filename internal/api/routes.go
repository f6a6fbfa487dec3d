package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chen893/habit-coach-server/internal/config"
	"github.com/chen893/habit-coach-server/internal/db"
	"github.com/chen893/habit-coach-server/internal/llm"
	"github.com/chen893/habit-coach-server/internal/narrative"
	"github.com/chen893/habit-coach-server/internal/report"
	"github.com/chen893/habit-coach-server/internal/scheduler"
)

func NewRouter(cfg *config.Config, database *db.DB, writer *report.Writer, llmClient *llm.Client, gen *narrative.Resilient, reportGen *scheduler.ReportGenerator) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	handlers := NewHandlers(cfg, database, writer, llmClient, gen, reportGen)

	// Public endpoints
	r.Get("/health", handlers.Health)

	// API v1 routes (authenticated, rate limited)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(RateLimitMiddleware(NewRateLimiter(120, time.Minute)))
		r.Use(JSONContentType)

		r.Post("/habits", handlers.CreateHabit)
		r.Get("/habits", handlers.ListHabits)
		r.Get("/dashboard", handlers.Dashboard)
		r.Get("/reports", handlers.Reports)

		r.Route("/habits/{habitID}", func(r chi.Router) {
			r.Get("/", handlers.GetHabit)
			r.Put("/phases", handlers.ReplacePhases)
			r.Post("/checkin", handlers.Checkin)
			r.Post("/triggers", handlers.AddTrigger)
			r.Get("/stats", handlers.Stats)
			r.Get("/motivation", handlers.Motivation)
			r.Get("/readiness", handlers.Readiness)
			r.Get("/relapse", handlers.Relapse)
			r.Post("/transition", handlers.Transition)
			r.Get("/transitions", handlers.Transitions)
			r.Post("/reports", handlers.GenerateReport)
		})
	})

	return r
}
