package engine

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solapur-gov/healthgrid/internal/capacity"
	"github.com/solapur-gov/healthgrid/internal/shared/errors"
	"github.com/solapur-gov/healthgrid/internal/shared/types"
)

// Handler provides HTTP handlers for the dashboard query surfaces
type Handler struct {
	engine *Engine
}

// NewHandler creates a new dashboard handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes registers the dashboard routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/city-totals", h.CityTotals)
	r.Get("/capacity", h.PredictedCapacity)
	r.Get("/ward-risk", h.WardRisk)

	r.Route("/ambulances", func(r chi.Router) {
		r.Get("/status", h.AmbulanceStatus)
		r.Get("/nearest", h.AmbulanceNearest)
	})

	return r
}

func (h *Handler) CityTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CityTotals())
}

// predictionView flattens a prediction for display: infinite runway
// is shown as the 999.0 sentinel.
type predictionView struct {
	capacity.Prediction
	BedsRemainingHours float64 `json:"beds_remaining_hours"`
}

func (h *Handler) PredictedCapacity(w http.ResponseWriter, r *http.Request) {
	preds := h.engine.PredictedCapacity()
	sort.Slice(preds, func(i, j int) bool { return preds[i].FacilityID < preds[j].FacilityID })

	views := make([]predictionView, len(preds))
	for i, p := range preds {
		views[i] = predictionView{Prediction: p, BedsRemainingHours: p.DisplayHours()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": views})
}

func (h *Handler) WardRisk(w http.ResponseWriter, r *http.Request) {
	wards := h.engine.WardRisk()
	sort.Slice(wards, func(i, j int) bool { return wards[i].Ward < wards[j].Ward })
	writeJSON(w, http.StatusOK, map[string]any{"wards": wards})
}

func (h *Handler) AmbulanceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.AmbulanceStatus())
}

func (h *Handler) AmbulanceNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, errors.BadRequest("lat and lng are required"))
		return
	}
	if !(types.GeoPoint{Lat: lat, Lng: lng}).Valid() {
		writeError(w, errors.BadRequest("lat/lng out of range"))
		return
	}

	limit := 3
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			writeError(w, errors.BadRequest("limit must be in [1, 50]"))
			return
		}
		limit = n
	}

	availableOnly := true
	if v := q.Get("available_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, errors.BadRequest("available_only must be a boolean"))
			return
		}
		availableOnly = b
	}

	results, stale := h.engine.AmbulanceNearest(lat, lng, limit, availableOnly)
	resp := map[string]any{"ambulances": results}
	if len(stale) > 0 {
		resp["excluded"] = stale
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
