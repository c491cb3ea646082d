package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	HIS        HISConfig
	Engine     EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// RateLimitRPS bounds ingestion traffic per client IP
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for the EventStoreDB broadcast sink.
type EventStoreConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// HISConfig holds configuration for the legacy state Health Information
// System adapter (SQL Server), used to backfill indicator history.
type HISConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// RecordTable is the monthly indicator fact table
	RecordTable string
	// PollInterval between backfill sweeps
	PollInterval time.Duration
}

// EngineConfig carries every detector threshold and scoring weight.
// Values load from the environment, then an optional YAML thresholds
// file overrides them. Validate rejects the whole set before the
// service accepts traffic.
type EngineConfig struct {
	// Rolling baseline store
	WindowBuckets     int           `yaml:"window_buckets"`
	BucketGranularity time.Duration `yaml:"bucket_granularity"`

	// Outbreak detector
	OutbreakThreshold float64 `yaml:"outbreak_threshold"`
	MinHistoryBuckets int     `yaml:"min_history_buckets"`

	// Spike detector
	SpikeLookback   int     `yaml:"spike_lookback"`
	SpikeMultiplier float64 `yaml:"spike_multiplier"`
	SpikeCaseFloor  float64 `yaml:"spike_case_floor"`

	// Bed capacity predictor
	CrisisHorizonHours float64 `yaml:"crisis_horizon_hours"`
	OccupancyCeiling   float64 `yaml:"occupancy_ceiling"`
	VelocitySamples    int     `yaml:"velocity_samples"`

	// Ward risk scorer
	CaseWeight   float64 `yaml:"case_weight"`
	ICUWeight    float64 `yaml:"icu_weight"`
	CrisisWeight float64 `yaml:"crisis_weight"`
	// CasePressureSaturation is the multiple of the ward baseline at
	// which case pressure reads 100
	CasePressureSaturation float64 `yaml:"case_pressure_saturation"`

	// Ambulance geo-index
	FleetFreshness time.Duration `yaml:"fleet_freshness"`

	// DedupeSubmissions enables engine-side duplicate suppression by
	// record ID. Off by default: resubmitting the same record counts
	// again, and upstream is expected to dedupe.
	DedupeSubmissions bool `yaml:"dedupe_submissions"`
}

// Validate fails fast on thresholds that would make the detectors
// meaningless. Any error here is fatal at startup.
func (e EngineConfig) Validate() error {
	if e.WindowBuckets < 2 {
		return fmt.Errorf("window_buckets must be >= 2, got %d", e.WindowBuckets)
	}
	if e.BucketGranularity <= 0 {
		return fmt.Errorf("bucket_granularity must be positive, got %s", e.BucketGranularity)
	}
	if e.OutbreakThreshold <= 0 {
		return fmt.Errorf("outbreak_threshold must be positive, got %g", e.OutbreakThreshold)
	}
	if e.MinHistoryBuckets < 1 || e.MinHistoryBuckets > e.WindowBuckets {
		return fmt.Errorf("min_history_buckets must be in [1, window_buckets], got %d", e.MinHistoryBuckets)
	}
	if e.SpikeLookback < 1 || e.SpikeLookback >= e.WindowBuckets {
		return fmt.Errorf("spike_lookback must be in [1, window_buckets), got %d", e.SpikeLookback)
	}
	if e.SpikeMultiplier <= 1 {
		return fmt.Errorf("spike_multiplier must be > 1, got %g", e.SpikeMultiplier)
	}
	if e.SpikeCaseFloor < 0 {
		return fmt.Errorf("spike_case_floor must be >= 0, got %g", e.SpikeCaseFloor)
	}
	if e.CrisisHorizonHours <= 0 {
		return fmt.Errorf("crisis_horizon_hours must be positive, got %g", e.CrisisHorizonHours)
	}
	if e.OccupancyCeiling <= 0 || e.OccupancyCeiling > 1 {
		return fmt.Errorf("occupancy_ceiling must be in (0, 1], got %g", e.OccupancyCeiling)
	}
	if e.VelocitySamples < 1 {
		return fmt.Errorf("velocity_samples must be >= 1, got %d", e.VelocitySamples)
	}
	sum := e.CaseWeight + e.ICUWeight + e.CrisisWeight
	if e.CaseWeight < 0 || e.ICUWeight < 0 || e.CrisisWeight < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("risk weights must sum to 1, got %g", sum)
	}
	if e.CasePressureSaturation <= 0 {
		return fmt.Errorf("case_pressure_saturation must be positive, got %g", e.CasePressureSaturation)
	}
	if e.FleetFreshness <= 0 {
		return fmt.Errorf("fleet_freshness must be positive, got %s", e.FleetFreshness)
	}
	return nil
}

// DefaultEngine returns the documented default thresholds.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		WindowBuckets:          24,
		BucketGranularity:      time.Hour,
		OutbreakThreshold:      2.0,
		MinHistoryBuckets:      3,
		SpikeLookback:          3,
		SpikeMultiplier:        2.0,
		SpikeCaseFloor:         10,
		CrisisHorizonHours:     6,
		OccupancyCeiling:       0.95,
		VelocitySamples:        3,
		CaseWeight:             0.4,
		ICUWeight:              0.4,
		CrisisWeight:           0.2,
		CasePressureSaturation: 2.0,
		FleetFreshness:         10 * time.Minute,
		DedupeSubmissions:      false,
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			Env:            getEnv("ENV", "development"),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "healthgrid"),
			Password: getEnv("DB_PASSWORD", "healthgrid"),
			Database: getEnv("DB_NAME", "healthgrid"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		HIS: HISConfig{
			Enabled:      getEnvBool("HIS_ENABLED", false),
			Host:         getEnv("HIS_HOST", "localhost"),
			Port:         getEnvInt("HIS_PORT", 1433),
			User:         getEnv("HIS_USER", "healthgrid"),
			Password:     getEnv("HIS_PASSWORD", ""),
			Database:     getEnv("HIS_DATABASE", "StateHealth"),
			SSLMode:      getEnv("HIS_SSLMODE", "disable"),
			RecordTable:  getEnv("HIS_RECORD_TABLE", "dbo.MonthlyIndicators"),
			PollInterval: getEnvDuration("HIS_POLL_INTERVAL", time.Hour),
		},
		Engine: loadEngine(),
	}

	if path := getEnv("THRESHOLDS_FILE", ""); path != "" {
		if err := applyThresholdsFile(&cfg.Engine, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}

func loadEngine() EngineConfig {
	e := DefaultEngine()
	e.WindowBuckets = getEnvInt("ENGINE_WINDOW_BUCKETS", e.WindowBuckets)
	e.BucketGranularity = getEnvDuration("ENGINE_BUCKET_GRANULARITY", e.BucketGranularity)
	e.OutbreakThreshold = getEnvFloat("ENGINE_OUTBREAK_THRESHOLD", e.OutbreakThreshold)
	e.MinHistoryBuckets = getEnvInt("ENGINE_MIN_HISTORY_BUCKETS", e.MinHistoryBuckets)
	e.SpikeLookback = getEnvInt("ENGINE_SPIKE_LOOKBACK", e.SpikeLookback)
	e.SpikeMultiplier = getEnvFloat("ENGINE_SPIKE_MULTIPLIER", e.SpikeMultiplier)
	e.SpikeCaseFloor = getEnvFloat("ENGINE_SPIKE_CASE_FLOOR", e.SpikeCaseFloor)
	e.CrisisHorizonHours = getEnvFloat("ENGINE_CRISIS_HORIZON_HOURS", e.CrisisHorizonHours)
	e.OccupancyCeiling = getEnvFloat("ENGINE_OCCUPANCY_CEILING", e.OccupancyCeiling)
	e.VelocitySamples = getEnvInt("ENGINE_VELOCITY_SAMPLES", e.VelocitySamples)
	e.CaseWeight = getEnvFloat("ENGINE_CASE_WEIGHT", e.CaseWeight)
	e.ICUWeight = getEnvFloat("ENGINE_ICU_WEIGHT", e.ICUWeight)
	e.CrisisWeight = getEnvFloat("ENGINE_CRISIS_WEIGHT", e.CrisisWeight)
	e.CasePressureSaturation = getEnvFloat("ENGINE_CASE_PRESSURE_SATURATION", e.CasePressureSaturation)
	e.FleetFreshness = getEnvDuration("ENGINE_FLEET_FRESHNESS", e.FleetFreshness)
	e.DedupeSubmissions = getEnvBool("ENGINE_DEDUPE_SUBMISSIONS", e.DedupeSubmissions)
	return e
}

// applyThresholdsFile overlays a YAML thresholds file onto the engine
// config. Only keys present in the file change.
func applyThresholdsFile(e *EngineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read thresholds file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, e); err != nil {
		return fmt.Errorf("failed to parse thresholds file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
