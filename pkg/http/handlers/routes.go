package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jgirmay/presencehub/pkg/auth"
	"github.com/jgirmay/presencehub/pkg/http/middleware"
)

// RegisterPresenceRoutes registers the presence, notification and
// websocket routes
func RegisterPresenceRoutes(
	router chi.Router,
	handlers *PresenceHandlers,
	ws *WebSocketHandler,
	authn auth.Authenticator,
) {
	router.Get("/health", handlers.Health)
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/ws", ws)

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireUser(authn))

		r.Route("/presence", func(r chi.Router) {
			r.Post("/heartbeat", handlers.Heartbeat)
			r.Get("/status/{userID}", handlers.GetStatus)
			r.Post("/bulk", handlers.GetBulkStatus)
			r.Get("/online", handlers.GetOnline)
		})

		r.Post("/notifications", handlers.Notify)
	})
}
