package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/flighttrack/internal/feed"
	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/pkg/logger"
)

// NewRouter builds the operational HTTP router
func NewRouter(trackerService *tracker.Service, feedClient *feed.Client, store tracker.Store, log *logger.Logger) http.Handler {
	h := NewHandler(trackerService, feedClient, store, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger(log.Named("http")))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Route("/flights", func(r chi.Router) {
			r.Get("/tracked", h.GetTrackedFlights)
			r.Get("/{id}", h.GetFlight)
			r.Get("/{id}/telemetry", h.GetFlightTelemetry)
		})
	})

	return r
}

// requestLogger logs each request at debug level with timing
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("Request handled",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.Status()),
				logger.Duration("duration", time.Since(start)))
		})
	}
}
