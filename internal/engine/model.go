package engine

import (
	"strings"
	"time"

	"github.com/solapur-gov/healthgrid/internal/capacity"
	"github.com/solapur-gov/healthgrid/internal/detect"
	"github.com/solapur-gov/healthgrid/internal/fleet"
	"github.com/solapur-gov/healthgrid/internal/risk"
	"github.com/solapur-gov/healthgrid/internal/shared/errors"
)

// FacilityType identifies the reporting source class.
type FacilityType string

const (
	FacilityHospital  FacilityType = "HOSPITAL"
	FacilityPHC       FacilityType = "PHC"
	FacilityLab       FacilityType = "LAB"
	FacilityAmbulance FacilityType = "AMBULANCE"
)

// ValidFacilityType reports whether t is a known source class.
func ValidFacilityType(t FacilityType) bool {
	switch t {
	case FacilityHospital, FacilityPHC, FacilityLab, FacilityAmbulance:
		return true
	}
	return false
}

// HealthRecord is one normalized fact from the ingestion boundary.
// It is consumed exactly once; only its contribution to aggregates
// survives. Pointer fields mean "not reported", never zero.
type HealthRecord struct {
	FacilityID       string       `json:"facility_id"`
	FacilityType     FacilityType `json:"facility_type"`
	Ward             string       `json:"ward"`
	Indicator        string       `json:"indicator_name"`
	CaseCount        int          `json:"total_cases"`
	VaccinationCount int          `json:"vaccination_count"`
	Timestamp        time.Time    `json:"timestamp"`

	// bed and resource status, only some sources report these
	TotalBeds    *int `json:"total_beds,omitempty"`
	OccupiedBeds *int `json:"occupied_beds,omitempty"`
	ICUTotal     *int `json:"icu_total,omitempty"`
	ICUOccupied  *int `json:"icu_occupied,omitempty"`
	Ventilators  *int `json:"ventilators,omitempty"`
	OxygenUnits  *int `json:"oxygen_units,omitempty"`

	// position report, AMBULANCE sources only
	Lat           *float64     `json:"lat,omitempty"`
	Lng           *float64     `json:"lng,omitempty"`
	VehicleStatus fleet.Status `json:"vehicle_status,omitempty"`
}

// HasStatus reports whether the record carries any bed or resource
// observation.
func (r HealthRecord) HasStatus() bool {
	return r.TotalBeds != nil || r.OccupiedBeds != nil || r.ICUTotal != nil ||
		r.ICUOccupied != nil || r.Ventilators != nil || r.OxygenUnits != nil
}

// Observation extracts the capacity-layer view of the record.
func (r HealthRecord) Observation() capacity.Observation {
	return capacity.Observation{
		TotalBeds:    r.TotalBeds,
		OccupiedBeds: r.OccupiedBeds,
		ICUTotal:     r.ICUTotal,
		ICUOccupied:  r.ICUOccupied,
		Ventilators:  r.Ventilators,
		OxygenUnits:  r.OxygenUnits,
	}
}

// Validate rejects records the engine cannot attribute. Count and
// status fields are not validated here; the ingestion boundary
// substitutes defaults for malformed optional fields.
func (r HealthRecord) Validate() error {
	if strings.TrimSpace(r.FacilityID) == "" {
		return errors.Validation("facility_id is required", nil)
	}
	if !ValidFacilityType(r.FacilityType) {
		return errors.Validation("unknown facility_type", nil)
	}
	if strings.TrimSpace(r.Ward) == "" {
		return errors.Validation("ward is required", nil)
	}
	if r.Timestamp.IsZero() {
		return errors.Validation("timestamp is required", nil)
	}
	if r.CaseCount < 0 || r.VaccinationCount < 0 {
		return errors.Validation("counts must not be negative", nil)
	}
	if r.FacilityType == FacilityAmbulance && (r.Lat == nil || r.Lng == nil) {
		return errors.Validation("ambulance records require lat and lng", nil)
	}
	return nil
}

// IngestResult summarizes what one record changed.
type IngestResult struct {
	Duplicate bool `json:"duplicate,omitempty"`
	Stale     bool `json:"stale,omitempty"`

	OutbreakAlerts []detect.OutbreakAlert `json:"outbreak_alerts,omitempty"`
	SpikeAlerts    []detect.SpikeAlert    `json:"spike_alerts,omitempty"`
	Prediction     *capacity.Prediction   `json:"prediction,omitempty"`
	WardRisk       *risk.WardRiskRecord   `json:"ward_risk,omitempty"`
}
