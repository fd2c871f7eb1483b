package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/flighttrack/internal/feed"
	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/pkg/logger"
)

// Handler contains the operational API handlers. This surface is for
// monitoring and debugging only; the user-facing API lives in a separate
// system that shares the database.
type Handler struct {
	trackerService *tracker.Service
	feedClient     *feed.Client
	store          tracker.Store
	logger         *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(trackerService *tracker.Service, feedClient *feed.Client, store tracker.Store, log *logger.Logger) *Handler {
	return &Handler{
		trackerService: trackerService,
		feedClient:     feedClient,
		store:          store,
		logger:         log.Named("api-handler"),
	}
}

// GetStatus returns the engine and feed status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"engine": h.trackerService.Status(),
		"feed":   h.feedClient.Status(),
	})
}

// GetTrackedFlights returns the live view of everything currently tracked
func (h *Handler) GetTrackedFlights(w http.ResponseWriter, r *http.Request) {
	flights := h.trackerService.TrackedFlights()
	h.writeJSON(w, map[string]interface{}{
		"count":   len(flights),
		"flights": flights,
	})
}

// GetFlight returns one flight with its live scores. For a flight still
// in the air the landing rate comes from the descent buffer; once
// finalized the stored rate is authoritative.
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid flight id")
		return
	}

	flight, err := h.store.GetFlightByID(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load flight", logger.Int64("flight_id", id), logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load flight")
		return
	}
	if flight == nil {
		h.writeError(w, http.StatusNotFound, "flight not found")
		return
	}

	points, err := h.store.GetFlightTelemetry(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load telemetry", logger.Int64("flight_id", id), logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load telemetry")
		return
	}

	var landingRate float64
	haveRate := false
	if flight.LandingRateFPM != nil {
		landingRate = *flight.LandingRateFPM
		haveRate = true
	} else if samples := h.trackerService.DescentSamplesFor(flight.ReporterID); len(samples) >= 2 {
		landingRate = tracker.FallbackLandingRateFPM(samples)
		haveRate = true
	}

	resp := map[string]interface{}{
		"flight":                flight,
		"telemetry_points":      len(points),
		"live_smoothness_score": tracker.LiveSmoothnessScore(points),
	}
	if haveRate {
		resp["landing_rate_fpm"] = landingRate
		resp["live_landing_score"] = tracker.ContinuousLandingScore(landingRate)
	}
	h.writeJSON(w, resp)
}

// GetFlightTelemetry returns a flight's stored telemetry track
func (h *Handler) GetFlightTelemetry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid flight id")
		return
	}

	points, err := h.store.GetFlightTelemetry(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load telemetry", logger.Int64("flight_id", id), logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load telemetry")
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"count":  len(points),
		"points": points,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
