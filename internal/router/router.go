package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"assistant-relay/internal/handlers"
	"assistant-relay/internal/middleware"
	"assistant-relay/internal/web"
)

// Limiter is satisfied by both the in-memory and the Redis rate limiter.
type Limiter interface {
	Middleware(next http.Handler) http.Handler
}

func New(
	relayHandler *handlers.RelayHandler,
	relayLimiter Limiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(handlers.NotFound)

		// ──── Relay ────
		r.Group(func(r chi.Router) {
			if relayLimiter != nil {
				r.Use(relayLimiter.Middleware)
			}
			r.Post("/chat", relayHandler.Chat)
		})
	})

	// ──── Browser client ────
	r.Handle("/*", web.Handler())

	return r
}
