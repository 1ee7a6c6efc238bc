package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credentialhandler "zkconsent/internal/credential/handler"
	healthhandler "zkconsent/internal/platform/health"
	"zkconsent/internal/platform/middleware"
	sessionhandler "zkconsent/internal/session/handler"
	userhandler "zkconsent/internal/user/handler"
)

// NewRouter wires all public endpoints with the middleware stack.
func NewRouter(
	sessions *sessionhandler.Handler,
	credentials *credentialhandler.Handler,
	users *userhandler.Handler,
	health *healthhandler.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	sessions.Register(r)
	credentials.Register(r)
	users.Register(r)
	health.Register(r)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
