package fleet

import (
	"time"
)

// Status is the dispatch state of one vehicle.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusOffline   Status = "OFFLINE"
)

// ValidStatus reports whether s is a known dispatch state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Ambulance is the live state of one vehicle. Vehicles are long
// lived; the same record is updated across many status transitions.
type Ambulance struct {
	VehicleID   string    `json:"vehicle_id"`
	Ward        string    `json:"ward"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// NearestResult is one ranked vehicle in a proximity query. The
// distance is rounded to two decimals for display; ranking used the
// full-precision value.
type NearestResult struct {
	VehicleID  string  `json:"vehicle_id"`
	Ward       string  `json:"ward"`
	Status     Status  `json:"status"`
	DistanceKm float64 `json:"distance_km"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// StaleVehicle names a vehicle excluded from dispatch candidates
// because its position report is older than the freshness threshold.
type StaleVehicle struct {
	VehicleID   string    `json:"vehicle_id"`
	Reason      string    `json:"reason"`
	LastUpdated time.Time `json:"last_updated"`
}

// Summary is the fleet-wide status breakdown.
type Summary struct {
	Total            int            `json:"total_ambulances"`
	ByStatus         map[Status]int `json:"status_breakdown"`
	AvailabilityRate float64        `json:"availability_rate"`
}
