package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bus-tracker/internal/query"
	"bus-tracker/internal/sim"
)

type Config struct {
	Port        string
	CORSOrigins []string
	StaticDir   string
	MetricsAddr string

	Sim   sim.Params
	Seed  uint64 // 0 means time based
	Query query.Params

	NATSURL         string
	NATSPrefix      string
	LogNATSSubjects bool

	FleetFile string // optional YAML fleet/route definition
	RoutesDSN string // optional GTFS database to read routes from
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getenvDefault("PORT", "3000"),
		StaticDir:   os.Getenv("STATIC_DIR"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSPrefix:  getenvDefault("NATS_SUBJECT_PREFIX", "buses"),
		FleetFile:   os.Getenv("FLEET_FILE"),
		RoutesDSN:   os.Getenv("ROUTES_DSN"),
		Sim:         sim.DefaultParams(),
		Query:       query.DefaultParams(),
	}

	for _, o := range strings.Split(getenvDefault("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	// Tick interval
	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %q", v)
		}
		cfg.Sim.TickInterval = time.Duration(ms) * time.Millisecond
	}

	var err error
	if cfg.Sim.StepDegrees, err = floatEnv("STEP_DEGREES", cfg.Sim.StepDegrees, 0, 1); err != nil {
		return nil, err
	}
	if cfg.Sim.JitterDegrees, err = floatEnv("JITTER_DEGREES", cfg.Sim.JitterDegrees, 0, 1); err != nil {
		return nil, err
	}
	if cfg.Sim.HeadingDriftProb, err = floatEnv("HEADING_DRIFT_PROB", cfg.Sim.HeadingDriftProb, 0, 1); err != nil {
		return nil, err
	}
	if cfg.Sim.OccupancyChangeProb, err = floatEnv("OCCUPANCY_CHANGE_PROB", cfg.Sim.OccupancyChangeProb, 0, 1); err != nil {
		return nil, err
	}
	if v := os.Getenv("SIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_SEED: %q", v)
		}
		cfg.Seed = seed
	}

	if cfg.Query.WalkMinutesPerKm, err = floatEnv("WALK_MINUTES_PER_KM", cfg.Query.WalkMinutesPerKm, 0, 600); err != nil {
		return nil, err
	}
	if cfg.Query.MinutesPerStop, err = floatEnv("MINUTES_PER_STOP", cfg.Query.MinutesPerStop, 0, 600); err != nil {
		return nil, err
	}
	if cfg.Query.DefaultRadiusKm, err = floatEnv("DEFAULT_RADIUS_KM", cfg.Query.DefaultRadiusKm, 0.001, 20000); err != nil {
		return nil, err
	}
	if cfg.Query.MaxWalkKm, err = floatEnv("MAX_WALK_KM", cfg.Query.MaxWalkKm, 0, 20000); err != nil {
		return nil, err
	}
	if v := os.Getenv("RECOMMEND_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RECOMMEND_LIMIT: %q", v)
		}
		cfg.Query.Limit = n
	}
	if v := os.Getenv("RECOMMEND_DISTINCT_VEHICLES"); v != "" {
		cfg.Query.DistinctVehicles = parseBool(v)
	}

	// Debug logging for NATS publish subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	return cfg, nil
}

// floatEnv parses key as a float within [lo, hi], returning def when unset.
func floatEnv(key string, def, lo, hi float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
