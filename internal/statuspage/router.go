package statuspage

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/sbrokerd/internal/broker"
	"github.com/marmos91/sbrokerd/internal/logger"
)

// newRouter builds the chi router serving the status/command surface:
// GET / (full report), /s /a /c /d /dd (individual sections), POST /
// (runtime commands), and /metrics (Prometheus exposition, when
// metricsHandler is non-nil).
func newRouter(b *broker.Broker, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	h := newHandler(b)

	r.Get("/", h.full)
	r.Get("/s", h.servers)
	r.Get("/a", h.clients)
	r.Get("/c", h.connectNotifications)
	r.Get("/d", h.disconnectNotifications)
	r.Get("/dd", h.detachNotifications)
	r.Post("/", h.command)

	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("status page request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
