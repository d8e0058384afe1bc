package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/query"
)

type stubFleet struct {
	snap fleet.Snapshot
}

func (s *stubFleet) Snapshot() fleet.Snapshot { return s.snap.Clone() }

func (s *stubFleet) GetByID(id string) (fleet.Vehicle, error) {
	if v, ok := s.snap.Find(id); ok {
		return v, nil
	}
	return fleet.Vehicle{}, fmt.Errorf("vehicle %q: %w", id, fleet.ErrNotFound)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, vehicles []fleet.Vehicle, takenAt time.Time, opts RouterOptions) *httptest.Server {
	t.Helper()
	src := &stubFleet{snap: fleet.Snapshot{Seq: 2, TakenAt: takenAt, Vehicles: vehicles}}
	engine, err := query.NewEngine(src, fleet.SeedRoutes(), query.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	srv := httptest.NewServer(NewRouter(NewHandler(src, engine, 3*time.Second), opts))
	t.Cleanup(srv.Close)
	return srv
}

func seedServer(t *testing.T) *httptest.Server {
	return newTestServer(t, fleet.SeedVehicles(), time.Now().UTC(), RouterOptions{})
}

func do(t *testing.T, method, url, body string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp, env
}

func TestGetBuses(t *testing.T) {
	srv := seedServer(t)
	resp, env := do(t, "GET", srv.URL+"/api/buses", "")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("status %d, env %+v", resp.StatusCode, env)
	}
	var buses []fleet.Vehicle
	if err := json.Unmarshal(env.Data, &buses); err != nil {
		t.Fatal(err)
	}
	if len(buses) != 5 || env.Count == nil || *env.Count != 5 {
		t.Errorf("got %d buses, count %v", len(buses), env.Count)
	}
}

func TestGetBus(t *testing.T) {
	srv := seedServer(t)
	tests := []struct {
		id         string
		wantStatus int
		wantMsg    string
	}{
		{"MH01AB1234", http.StatusOK, ""},
		{"MH01IJ7890", http.StatusOK, ""}, // maintenance vehicles are still readable
		{"NOPE", http.StatusNotFound, "Bus not found"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, env := do(t, "GET", srv.URL+"/api/buses/"+tt.id, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantMsg != "" {
				if env.Success || env.Message != tt.wantMsg {
					t.Errorf("env = %+v", env)
				}
				return
			}
			var v fleet.Vehicle
			json.Unmarshal(env.Data, &v)
			if v.ID != tt.id {
				t.Errorf("got vehicle %q", v.ID)
			}
		})
	}
}

func TestGetBusRoute(t *testing.T) {
	vehicles := append(fleet.SeedVehicles(), fleet.Vehicle{
		ID: "GHOST", RouteID: "999", Status: fleet.StatusActive, Lat: 19, Lng: 72.8, Capacity: 10,
	})
	srv := newTestServer(t, vehicles, time.Now().UTC(), RouterOptions{})

	resp, env := do(t, "GET", srv.URL+"/api/bus/MH01CD5678/route", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	var vr struct {
		BusInfo              fleet.Vehicle `json:"busInfo"`
		RouteStops           []fleet.Stop  `json:"routeStops"`
		TotalStops           int           `json:"totalStops"`
		EstimatedJourneyTime float64       `json:"estimatedJourneyTime"`
	}
	if err := json.Unmarshal(env.Data, &vr); err != nil {
		t.Fatal(err)
	}
	if vr.BusInfo.ID != "MH01CD5678" || vr.TotalStops != 8 || len(vr.RouteStops) != 8 || vr.EstimatedJourneyTime != 21 {
		t.Errorf("route = %+v", vr)
	}

	resp, env = do(t, "GET", srv.URL+"/api/bus/NOPE/route", "")
	if resp.StatusCode != http.StatusNotFound || env.Message != "Bus not found" {
		t.Errorf("unknown bus: %d %+v", resp.StatusCode, env)
	}
	resp, env = do(t, "GET", srv.URL+"/api/bus/GHOST/route", "")
	if resp.StatusCode != http.StatusNotFound || env.Message != "Route not found" {
		t.Errorf("unknown route: %d %+v", resp.StatusCode, env)
	}
}

func TestGetNearbyBuses(t *testing.T) {
	srv := seedServer(t)

	t.Run("validation", func(t *testing.T) {
		for _, q := range []string{
			"",
			"?lat=19.1",
			"?lng=72.8",
			"?lat=abc&lng=72.8",
			"?lat=19.1&lng=NaN",
			"?lat=95&lng=72.8",
			"?lat=19.1&lng=72.8&radius=-1",
			"?lat=19.1&lng=72.8&radius=wide",
		} {
			resp, env := do(t, "GET", srv.URL+"/api/nearby-buses"+q, "")
			if resp.StatusCode != http.StatusBadRequest || env.Success || env.Message == "" {
				t.Errorf("%q: status %d, env %+v", q, resp.StatusCode, env)
			}
		}
	})

	t.Run("results", func(t *testing.T) {
		resp, env := do(t, "GET", srv.URL+"/api/nearby-buses?lat=19.1136&lng=72.8697&radius=1", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var got []NearbyBus
		json.Unmarshal(env.Data, &got)
		if len(got) != 1 || got[0].ID != "MH01AB1234" || got[0].Distance != 0 {
			t.Errorf("nearby = %+v", got)
		}
	})

	t.Run("default radius", func(t *testing.T) {
		_, env := do(t, "GET", srv.URL+"/api/nearby-buses?lat=19.1136&lng=72.8697", "")
		var got []NearbyBus
		json.Unmarshal(env.Data, &got)
		if len(got) < 2 {
			t.Fatalf("expected several buses within 5 km, got %+v", got)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Distance < got[i-1].Distance {
				t.Errorf("not sorted by distance: %+v", got)
			}
		}
		for _, b := range got {
			if b.Status != fleet.StatusActive || b.Distance > 5 {
				t.Errorf("unexpected entry %+v", b)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, env := do(t, "GET", srv.URL+"/api/nearby-buses?lat=0&lng=0&radius=1", "")
		if string(env.Data) != "[]" {
			t.Errorf("data = %s, want []", env.Data)
		}
	})
}

func TestPostRecommendRoutes(t *testing.T) {
	srv := seedServer(t)
	url := srv.URL + "/api/recommend-routes"

	bad := []string{
		`not json`,
		`{}`,
		`{"userLocation":{"lat":19.1,"lng":72.8}}`,
		`{"destination":{"lat":19.1,"lng":72.8}}`,
		`{"userLocation":{"lat":95,"lng":72.8},"destination":{"lat":19.1,"lng":72.8}}`,
	}
	for _, body := range bad {
		resp, env := do(t, "POST", url, body)
		if resp.StatusCode != http.StatusBadRequest || env.Success {
			t.Errorf("%s: status %d, env %+v", body, resp.StatusCode, env)
		}
	}

	resp, env := do(t, "POST", url, `{"userLocation":{"lat":19.1190,"lng":72.8470},"destination":{"lat":19.0550,"lng":72.8400}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, env.Message)
	}
	var recs []struct {
		Bus                fleet.Vehicle `json:"bus"`
		RouteID            string        `json:"routeId"`
		EstimatedTotalTime float64       `json:"estimatedTotalTime"`
		Recommendation     string        `json:"recommendation"`
	}
	if err := json.Unmarshal(env.Data, &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 || recs[0].RouteID != "258" || recs[0].Recommendation == "" {
		t.Errorf("recommendations = %+v", recs)
	}
}

func TestGetRoutes(t *testing.T) {
	srv := seedServer(t)
	_, env := do(t, "GET", srv.URL+"/api/routes", "")
	var routes []fleet.Route
	json.Unmarshal(env.Data, &routes)
	if len(routes) != 5 || routes[0].ID != "132" {
		t.Errorf("routes = %d, first %q", len(routes), routes[0].ID)
	}
}

func TestVehiclePositionsFeed(t *testing.T) {
	srv := seedServer(t)

	resp, err := http.Get(srv.URL + "/gtfs-rt/vehicle-positions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.GetEntity()) != 4 {
		t.Errorf("entities = %d, want 4 active", len(msg.GetEntity()))
	}

	resp2, err := http.Get(srv.URL + "/gtfs-rt/vehicle-positions?format=json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if ct := resp2.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("json content type = %q", ct)
	}
}

func TestHealth(t *testing.T) {
	srv := seedServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h HealthResponse
	json.NewDecoder(resp.Body).Decode(&h)
	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Vehicles != 5 || h.ActiveVehicles != 4 || h.Seq != 2 {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}

	stale := newTestServer(t, fleet.SeedVehicles(), time.Now().Add(-time.Minute), RouterOptions{})
	resp2, err := http.Get(stale.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("stale status = %d", resp2.StatusCode)
	}

	resp3, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp3.Body.Close()
	body, _ := io.ReadAll(resp3.Body)
	if string(body) != "ok" {
		t.Errorf("healthz = %q", body)
	}
}

func TestRouterOptions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>buses</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	push := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	srv := newTestServer(t, fleet.SeedVehicles(), time.Now().UTC(), RouterOptions{
		StaticDir:   dir,
		Push:        push,
		CORSOrigins: []string{"http://app.test"},
	})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "buses") {
		t.Errorf("static index = %q", body)
	}

	resp, err = http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("/ws status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/buses", nil)
	req.Header.Set("Origin", "http://app.test")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://app.test" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestWriteErr(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		status  int
		want    string
	}{
		{"invalid", fmt.Errorf("radius: %w", fleet.ErrInvalidArgument), "", http.StatusBadRequest, "radius: invalid argument"},
		{"not found with message", fmt.Errorf("x: %w", fleet.ErrNotFound), "Bus not found", http.StatusNotFound, "Bus not found"},
		{"internal", fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"), "", http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErr(rec, tt.err, tt.message)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["message"] != tt.want {
				t.Errorf("message = %v, want %q", body["message"], tt.want)
			}
			if _, ok := body["error"]; ok {
				t.Errorf("error field leaked: %v", body["error"])
			}
			if strings.Contains(rec.Body.String(), "10.0.0.5") {
				t.Errorf("internal detail in body: %s", rec.Body.String())
			}
		})
	}
}
