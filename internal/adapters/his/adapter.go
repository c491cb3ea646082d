// Package his polls the legacy state Health Information System (SQL
// Server) and backfills its indicator counts into the rolling
// baseline store, so detectors start with history instead of a cold
// window after every deploy.
package his

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/solapur-gov/healthgrid/internal/baseline"
	"github.com/solapur-gov/healthgrid/internal/shared/config"
)

// Backfiller receives historical observations. Satisfied by
// *engine.Engine.
type Backfiller interface {
	Backfill(key baseline.Key, ts time.Time, value float64) error
}

// Adapter polls the HIS fact table on an interval.
type Adapter struct {
	cfg  config.HISConfig
	sink Backfiller

	db       *sql.DB
	running  bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	lastSeen time.Time
	wg       sync.WaitGroup
}

// New creates an adapter; Start opens the connection.
func New(cfg config.HISConfig, sink Backfiller) *Adapter {
	return &Adapter{cfg: cfg, sink: sink}
}

// Start opens the database connection and begins polling.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("his adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host, a.cfg.Port, a.cfg.Database, a.cfg.User, a.cfg.Password)
	if a.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open HIS database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping HIS database: %w", err)
	}

	a.db = db
	a.running = true

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop halts polling and closes the connection.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.db.Close()
	a.running = false
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	// first sweep immediately, then on the interval
	if err := a.sweep(ctx); err != nil {
		log.Printf("his: initial sweep failed: %v", err)
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				log.Printf("his: sweep failed: %v", err)
			}
		}
	}
}

// sweep reads indicator rows newer than the last seen timestamp and
// feeds them to the baseline store. Rows older than the rolling
// window come back as stale drops, which the sink swallows.
func (a *Adapter) sweep(ctx context.Context) error {
	query := fmt.Sprintf(`
		SELECT FacilityCode, WardName, IndicatorName, CaseCount, RecordedAt
		FROM %s
		WHERE RecordedAt > @p1
		ORDER BY RecordedAt ASC`, a.cfg.RecordTable)

	rows, err := a.db.QueryContext(ctx, query, a.lastSeen)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", a.cfg.RecordTable, err)
	}
	defer rows.Close()

	var imported int
	for rows.Next() {
		var (
			facility  string
			ward      string
			indicator string
			count     int
			recorded  time.Time
		)
		if err := rows.Scan(&facility, &ward, &indicator, &count, &recorded); err != nil {
			return fmt.Errorf("failed to scan HIS row: %w", err)
		}

		if err := a.sink.Backfill(baseline.Key{
			Scope:     baseline.ScopeFacility,
			ScopeID:   facility,
			Indicator: indicator,
		}, recorded, float64(count)); err != nil {
			log.Printf("his: backfill %s/%s failed: %v", facility, indicator, err)
			continue
		}
		if err := a.sink.Backfill(baseline.Key{
			Scope:     baseline.ScopeWard,
			ScopeID:   ward,
			Indicator: indicator,
		}, recorded, float64(count)); err != nil {
			log.Printf("his: backfill ward %s/%s failed: %v", ward, indicator, err)
			continue
		}

		if recorded.After(a.lastSeen) {
			a.lastSeen = recorded
		}
		imported++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate HIS rows: %w", err)
	}

	if imported > 0 {
		log.Printf("his: imported %d indicator rows up to %s", imported, a.lastSeen.Format(time.RFC3339))
	}
	return nil
}
