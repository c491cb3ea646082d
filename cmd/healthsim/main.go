// healthsim generates synthetic facility, lab and ambulance traffic
// against a running healthgrid instance, for demos and load checks.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/solapur-gov/healthgrid/internal/fleet"
	"github.com/solapur-gov/healthgrid/internal/ingest"
)

var wards = []string{"North", "South", "East", "West", "Central"}

var indicators = []string{"dengue", "malaria", "tuberculosis", "typhoid", "diarrhea", "influenza"}

type facilityState struct {
	id           string
	ward         string
	totalBeds    int
	occupiedBeds int
	icuTotal     int
	icuOccupied  int
}

type vehicleState struct {
	id   string
	ward string
	lat  float64
	lng  float64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "healthgrid base URL")
	interval := flag.Duration("interval", 2*time.Second, "delay between submissions")
	hospitals := flag.Int("hospitals", 5, "number of simulated hospitals")
	ambulances := flag.Int("ambulances", 8, "number of simulated ambulances")
	surgeWard := flag.String("surge", "", "ward to drive into an outbreak")
	seed := flag.Int64("seed", 0, "random seed (0 means time-based)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	facilities := make([]*facilityState, *hospitals)
	for i := range facilities {
		facilities[i] = &facilityState{
			id:           fmt.Sprintf("HOSP-%02d", i+1),
			ward:         wards[i%len(wards)],
			totalBeds:    80 + rng.Intn(120),
			occupiedBeds: 30 + rng.Intn(40),
			icuTotal:     8 + rng.Intn(12),
			icuOccupied:  rng.Intn(6),
		}
	}

	vehicles := make([]*vehicleState, *ambulances)
	for i := range vehicles {
		vehicles[i] = &vehicleState{
			id:   fmt.Sprintf("AMB-%02d", i+1),
			ward: wards[i%len(wards)],
			lat:  17.6599 + rng.Float64()*0.08 - 0.04,
			lng:  75.9064 + rng.Float64()*0.08 - 0.04,
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	log.Printf("healthsim: %d hospitals, %d ambulances against %s (seed %d)", *hospitals, *ambulances, *baseURL, *seed)

	for tick := 0; ; tick++ {
		f := facilities[rng.Intn(len(facilities))]
		cases := rng.Intn(8)
		if *surgeWard != "" && f.ward == *surgeWard && tick > 20 {
			cases += 30 + rng.Intn(20)
		}

		// drift occupancy, admissions slightly outpace discharges
		f.occupiedBeds += rng.Intn(4) - 1
		if f.occupiedBeds < 0 {
			f.occupiedBeds = 0
		}
		if f.occupiedBeds > f.totalBeds {
			f.occupiedBeds = f.totalBeds
		}

		report := ingest.HospitalReport{
			FacilityID:   f.id,
			Ward:         f.ward,
			Indicator:    indicators[rng.Intn(len(indicators))],
			TotalCases:   cases,
			TotalBeds:    &f.totalBeds,
			OccupiedBeds: &f.occupiedBeds,
			ICUTotal:     &f.icuTotal,
			ICUOccupied:  &f.icuOccupied,
		}
		post(client, *baseURL+"/api/v1/ingest/hospital", report)

		if tick%3 == 0 {
			v := vehicles[rng.Intn(len(vehicles))]
			v.lat += rng.Float64()*0.004 - 0.002
			v.lng += rng.Float64()*0.004 - 0.002
			status := fleet.StatusAvailable
			if rng.Intn(4) == 0 {
				status = fleet.StatusBusy
			}
			post(client, *baseURL+"/api/v1/ingest/ambulance", ingest.AmbulanceReport{
				VehicleID: v.id,
				Ward:      v.ward,
				Lat:       v.lat,
				Lng:       v.lng,
				Status:    status,
			})
		}

		time.Sleep(*interval)
	}
}

func post(client *http.Client, url string, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		log.Printf("marshal: %v", err)
		return
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		log.Printf("post %s: %v", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "post %s: status %d\n", url, resp.StatusCode)
	}
}
