// Package httptransport wires the HTTP surface: public verification and
// finalize endpoints, the authenticated item API, and the websocket feed.
package httptransport

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catcher/internal/platform/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Items    *ItemsHandler
	Search   *SearchHandler
	Payments *PaymentHandler
	WS       *WSHandler
}

// NewRouter assembles the service router. Authenticated routes sit behind
// RequireAuth; the verification lookup and finalize stay public because the
// payer's browser arrives at them without a token.
func NewRouter(h Handlers, validator middleware.JWTValidator, logger *slog.Logger, db *sql.DB) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		h.Search.Register(r)
		h.Payments.RegisterPublic(r)
	})

	// Authenticated JSON surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(validator, logger))
		h.Items.Register(r)
		h.Payments.RegisterAuthenticated(r)
	})

	// Websocket: authenticated, but no timeout and no JSON content type on a
	// long-lived upgraded connection.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		h.WS.Register(r)
	})

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unreachable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
