// Package archive persists consumed records, status snapshots and
// fired alerts to PostgreSQL behind a bounded queue, so the ingest
// hot path never waits on the database.
package archive

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solapur-gov/healthgrid/internal/capacity"
	"github.com/solapur-gov/healthgrid/internal/engine"
	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
)

// queueCap bounds pending writes. When full, new writes are dropped
// with a log line rather than stalling ingestion.
const queueCap = 1024

type job struct {
	kind string
	exec func(ctx context.Context) error
}

// PostgresArchiver implements engine.Archiver using PostgreSQL.
type PostgresArchiver struct {
	pool  *pgxpool.Pool
	queue chan job
	wg    sync.WaitGroup

	closeOnce sync.Once
}

var _ engine.Archiver = (*PostgresArchiver)(nil)

// NewPostgresArchiver creates an archiver and starts its writer.
func NewPostgresArchiver(pool *pgxpool.Pool) *PostgresArchiver {
	a := &PostgresArchiver{
		pool:  pool,
		queue: make(chan job, queueCap),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

func (a *PostgresArchiver) writer() {
	defer a.wg.Done()
	for j := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		start := time.Now()
		err := j.exec(ctx)
		metrics.RecordDBQuery(j.kind, time.Since(start))
		cancel()
		if err != nil {
			log.Printf("archive: %s write failed: %v", j.kind, err)
		}
	}
}

func (a *PostgresArchiver) enqueue(kind string, exec func(ctx context.Context) error) {
	select {
	case a.queue <- job{kind: kind, exec: exec}:
	default:
		log.Printf("archive: queue full, dropping %s write", kind)
	}
}

// Close drains the queue and stops the writer.
func (a *PostgresArchiver) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
		a.wg.Wait()
	})
}

// ArchiveRecord persists one consumed health record.
func (a *PostgresArchiver) ArchiveRecord(_ context.Context, rec engine.HealthRecord) {
	a.enqueue("insert_health_record", func(ctx context.Context) error {
		query := `
			INSERT INTO archive.health_records (
				id, facility_id, facility_type, ward, indicator,
				case_count, vaccination_count, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		_, err := a.pool.Exec(ctx, query,
			uuid.New(), rec.FacilityID, string(rec.FacilityType), rec.Ward, rec.Indicator,
			rec.CaseCount, rec.VaccinationCount, rec.Timestamp,
		)
		return err
	})
}

// ArchiveStatus persists one facility status snapshot.
func (a *PostgresArchiver) ArchiveStatus(_ context.Context, status capacity.FacilityStatus) {
	a.enqueue("insert_facility_status", func(ctx context.Context) error {
		query := `
			INSERT INTO archive.facility_status (
				id, facility_id, ward, total_beds, occupied_beds,
				icu_total, icu_occupied, ventilators, oxygen_units, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		_, err := a.pool.Exec(ctx, query,
			uuid.New(), status.FacilityID, status.Ward, status.TotalBeds, status.OccupiedBeds,
			status.ICUTotal, status.ICUOccupied, status.Ventilators, status.OxygenUnits, status.LastUpdated,
		)
		return err
	})
}

// ArchiveAlert persists one fired alert or crisis update.
func (a *PostgresArchiver) ArchiveAlert(_ context.Context, kind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("archive: marshal %s alert failed: %v", kind, err)
		return
	}
	a.enqueue("insert_alert", func(ctx context.Context) error {
		query := `
			INSERT INTO archive.alerts (id, kind, payload, triggered_at)
			VALUES ($1, $2, $3, $4)`

		_, err := a.pool.Exec(ctx, query, uuid.New(), kind, body, time.Now().UTC())
		return err
	})
}
