package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bus-tracker/internal/fleet"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer .env out of the test
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want 3000", cfg.Port)
	}
	if cfg.Sim.TickInterval != 3*time.Second {
		t.Errorf("TickInterval = %s, want 3s", cfg.Sim.TickInterval)
	}
	if cfg.Query.WalkMinutesPerKm != 12 || cfg.Query.Limit != 5 || cfg.Query.DefaultRadiusKm != 5 {
		t.Errorf("unexpected query defaults %+v", cfg.Query)
	}
	if cfg.Query.MaxWalkKm != 0 || cfg.Query.DistinctVehicles {
		t.Errorf("walk cut-off and distinct vehicles should be off by default: %+v", cfg.Query)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATS should be disabled by default, got %q", cfg.NATSURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("TICK_INTERVAL_MS", "500")
	t.Setenv("SIM_SEED", "99")
	t.Setenv("MINUTES_PER_STOP", "2.5")
	t.Setenv("RECOMMEND_LIMIT", "3")
	t.Setenv("RECOMMEND_DISTINCT_VEHICLES", "yes")
	t.Setenv("MAX_WALK_KM", "2")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Sim.TickInterval != 500*time.Millisecond || cfg.Seed != 99 {
		t.Errorf("unexpected cfg %+v", cfg)
	}
	if cfg.Query.MinutesPerStop != 2.5 || cfg.Query.Limit != 3 || !cfg.Query.DistinctVehicles || cfg.Query.MaxWalkKm != 2 {
		t.Errorf("unexpected query params %+v", cfg.Query)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.LogNATSSubjects {
		t.Error("LogNATSSubjects should be true")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct{ key, val string }{
		{"TICK_INTERVAL_MS", "0"},
		{"TICK_INTERVAL_MS", "fast"},
		{"HEADING_DRIFT_PROB", "1.5"},
		{"DEFAULT_RADIUS_KM", "0"},
		{"RECOMMEND_LIMIT", "-2"},
		{"SIM_SEED", "-1"},
		{"WALK_MINUTES_PER_KM", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load error = %v, want mention of %s", err, tt.key)
			}
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RECOMMEND_LIMIT=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override existing variables; make sure it is unset
	t.Setenv("RECOMMEND_LIMIT", "")
	os.Unsetenv("RECOMMEND_LIMIT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Limit != 7 {
		t.Errorf("Limit = %d, want 7 from .env", cfg.Query.Limit)
	}
}

const sampleFleet = `
routes:
  - id: "10"
    label: Harbour Line
    stops:
      - {name: Pier, lat: 19.0, lng: 72.8, arrival: "0 mins"}
      - {id: "10-X", name: Market, lat: 19.01, lng: 72.8}
vehicles:
  - id: BUS-1
    route: "10"
    lat: 19.0
    lng: 72.8
    heading: 90
    speed: 20
    passengers: 5
    capacity: 40
  - id: BUS-2
    route: "10"
    lat: 19.01
    lng: 72.8
    status: maintenance
    capacity: 40
`

func TestParseFleetFile(t *testing.T) {
	ff, err := ParseFleetFile([]byte(sampleFleet))
	if err != nil {
		t.Fatalf("ParseFleetFile: %v", err)
	}
	routes := ff.FleetRoutes()
	if len(routes) != 1 || len(routes[0].Stops) != 2 {
		t.Fatalf("routes = %+v", routes)
	}
	if routes[0].Stops[0].ID != "10-01" || routes[0].Stops[1].ID != "10-X" {
		t.Errorf("stop ids = %q, %q", routes[0].Stops[0].ID, routes[0].Stops[1].ID)
	}
	vehicles := ff.FleetVehicles()
	if len(vehicles) != 2 {
		t.Fatalf("vehicles = %+v", vehicles)
	}
	if vehicles[0].Status != fleet.StatusActive || vehicles[1].Status != fleet.StatusMaintenance {
		t.Errorf("statuses = %s, %s", vehicles[0].Status, vehicles[1].Status)
	}
	if err := fleet.Validate(vehicles); err != nil {
		t.Errorf("converted fleet invalid: %v", err)
	}
	if err := fleet.ValidateRoutes(routes); err != nil {
		t.Errorf("converted routes invalid: %v", err)
	}
}

func TestParseFleetFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "routes: [:"},
		{"route without stops", "routes:\n  - id: a\n"},
		{"stop latitude", "routes:\n  - id: a\n    stops:\n      - {name: x, lat: 95, lng: 0}\n"},
		{"over capacity", "vehicles:\n  - {id: v, route: a, passengers: 50, capacity: 10}\n"},
		{"bad status", "vehicles:\n  - {id: v, route: a, status: parked, capacity: 10}\n"},
		{"heading 360", "vehicles:\n  - {id: v, route: a, heading: 360, capacity: 10}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFleetFile([]byte(tt.doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFleetFile_EmptySectionsFallBack(t *testing.T) {
	ff, err := ParseFleetFile([]byte("vehicles: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if ff.FleetRoutes() != nil || ff.FleetVehicles() != nil {
		t.Error("empty sections should convert to nil so callers use the seed")
	}
}

func TestLoadFleetFile_Missing(t *testing.T) {
	if _, err := LoadFleetFile(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}
