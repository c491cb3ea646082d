package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solapur-gov/healthgrid/internal/engine"
	"github.com/solapur-gov/healthgrid/internal/fleet"
	"github.com/solapur-gov/healthgrid/internal/shared/errors"
	"github.com/solapur-gov/healthgrid/internal/shared/types"
)

// Sink consumes normalized records. Satisfied by *engine.Engine.
type Sink interface {
	Ingest(ctx context.Context, rec engine.HealthRecord) (engine.IngestResult, error)
}

// Handler provides HTTP handlers for the ingestion boundary
type Handler struct {
	sink Sink
	ring *Ring
}

// NewHandler creates a new ingestion handler
func NewHandler(sink Sink, ring *Ring) *Handler {
	return &Handler{sink: sink, ring: ring}
}

// Routes registers one route per reporting source
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/hospital", h.IngestHospital)
	r.Post("/phc", h.IngestPHC)
	r.Post("/lab", h.IngestLab)
	r.Post("/ambulance", h.IngestAmbulance)
	r.Get("/logs", h.RecentLogs)

	return r
}

// --- Request types ---

type HospitalReport struct {
	FacilityID       string     `json:"facility_id"`
	Ward             string     `json:"ward"`
	Indicator        string     `json:"indicator_name"`
	TotalCases       int        `json:"total_cases"`
	VaccinationCount int        `json:"vaccination_count"`
	TotalBeds        *int       `json:"total_beds,omitempty"`
	OccupiedBeds     *int       `json:"occupied_beds,omitempty"`
	ICUTotal         *int       `json:"icu_total,omitempty"`
	ICUOccupied      *int       `json:"icu_occupied,omitempty"`
	Ventilators      *int       `json:"ventilators,omitempty"`
	OxygenUnits      *int       `json:"oxygen_units,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

type PHCReport struct {
	FacilityID       string     `json:"facility_id"`
	Ward             string     `json:"ward"`
	Indicator        string     `json:"indicator_name"`
	TotalCases       int        `json:"total_cases"`
	VaccinationCount int        `json:"vaccination_count"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

type LabReport struct {
	LabID         string     `json:"lab_id"`
	Ward          string     `json:"ward"`
	TestType      string     `json:"test_type"`
	PositiveCount int        `json:"positive_count"`
	TotalTests    int        `json:"total_tests"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

type AmbulanceReport struct {
	VehicleID string       `json:"vehicle_id"`
	Ward      string       `json:"ward"`
	Lat       float64      `json:"lat"`
	Lng       float64      `json:"lng"`
	Status    fleet.Status `json:"status"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
}

// --- Handlers ---

func (h *Handler) IngestHospital(w http.ResponseWriter, r *http.Request) {
	var req HospitalReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rec := engine.HealthRecord{
		FacilityID:   req.FacilityID,
		FacilityType: engine.FacilityHospital,
		Ward:         req.Ward,
		Indicator:    NormalizeIndicator(req.Indicator),
		Timestamp:    orNow(req.Timestamp),
	}
	var substituted bool
	rec.CaseCount, substituted = nonNegative(req.TotalCases)
	var sub bool
	rec.VaccinationCount, sub = nonNegative(req.VaccinationCount)
	substituted = substituted || sub
	rec.TotalBeds, sub = nonNegativePtr(req.TotalBeds)
	substituted = substituted || sub
	rec.OccupiedBeds, sub = nonNegativePtr(req.OccupiedBeds)
	substituted = substituted || sub
	rec.ICUTotal, sub = nonNegativePtr(req.ICUTotal)
	substituted = substituted || sub
	rec.ICUOccupied, sub = nonNegativePtr(req.ICUOccupied)
	substituted = substituted || sub
	rec.Ventilators, sub = nonNegativePtr(req.Ventilators)
	substituted = substituted || sub
	rec.OxygenUnits, sub = nonNegativePtr(req.OxygenUnits)
	substituted = substituted || sub

	h.submit(w, r, "hospital", rec, substituted)
}

func (h *Handler) IngestPHC(w http.ResponseWriter, r *http.Request) {
	var req PHCReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rec := engine.HealthRecord{
		FacilityID:   req.FacilityID,
		FacilityType: engine.FacilityPHC,
		Ward:         req.Ward,
		Indicator:    NormalizeIndicator(req.Indicator),
		Timestamp:    orNow(req.Timestamp),
	}
	var substituted bool
	rec.CaseCount, substituted = nonNegative(req.TotalCases)
	var sub bool
	rec.VaccinationCount, sub = nonNegative(req.VaccinationCount)
	substituted = substituted || sub

	h.submit(w, r, "phc", rec, substituted)
}

func (h *Handler) IngestLab(w http.ResponseWriter, r *http.Request) {
	var req LabReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rec := engine.HealthRecord{
		FacilityID:   req.LabID,
		FacilityType: engine.FacilityLab,
		Ward:         req.Ward,
		Indicator:    NormalizeIndicator(req.TestType),
		Timestamp:    orNow(req.Timestamp),
	}
	var substituted bool
	rec.CaseCount, substituted = nonNegative(req.PositiveCount)

	h.submit(w, r, "lab", rec, substituted)
}

func (h *Handler) IngestAmbulance(w http.ResponseWriter, r *http.Request) {
	var req AmbulanceReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if !(types.GeoPoint{Lat: req.Lat, Lng: req.Lng}).Valid() {
		writeError(w, errors.Validation("lat/lng out of range", nil))
		return
	}

	rec := engine.HealthRecord{
		FacilityID:    req.VehicleID,
		FacilityType:  engine.FacilityAmbulance,
		Ward:          req.Ward,
		Timestamp:     orNow(req.Timestamp),
		Lat:           &req.Lat,
		Lng:           &req.Lng,
		VehicleStatus: req.Status,
	}

	h.submit(w, r, "ambulance", rec, false)
}

func (h *Handler) RecentLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": h.ring.Recent()})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, source string, rec engine.HealthRecord, substituted bool) {
	entry := LogEntry{
		Source:      source,
		FacilityID:  rec.FacilityID,
		Ward:        rec.Ward,
		Indicator:   rec.Indicator,
		Substituted: substituted,
		ReceivedAt:  time.Now().UTC(),
	}

	result, err := h.sink.Ingest(r.Context(), rec)
	if err != nil {
		entry.Error = err.Error()
		h.ring.Add(entry)
		writeError(w, err)
		return
	}

	entry.Accepted = true
	h.ring.Add(entry)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"result": result,
	})
}

func orNow(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return time.Now().UTC()
	}
	return *ts
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
