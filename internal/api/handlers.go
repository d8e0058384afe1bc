package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"bus-tracker/internal/feed"
	"bus-tracker/internal/fleet"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/query"
)

// FleetReader is the read side of the simulator.
type FleetReader interface {
	Snapshot() fleet.Snapshot
	GetByID(id string) (fleet.Vehicle, error)
}

// QueryEngine answers the spatial questions.
type QueryEngine interface {
	Params() query.Params
	Routes() []fleet.Route
	NearbyVehicles(point geo.Point, radiusKm float64) ([]query.Nearby, error)
	RecommendRoutes(origin, destination geo.Point) ([]query.Recommendation, error)
	VehicleRoute(vehicleID string) (query.VehicleRoute, error)
}

type Handler struct {
	fleet        FleetReader
	engine       QueryEngine
	validate     *validator.Validate
	tickInterval time.Duration
	startedAt    time.Time
}

func NewHandler(f FleetReader, e QueryEngine, tickInterval time.Duration) *Handler {
	return &Handler{
		fleet:        f,
		engine:       e,
		validate:     validator.New(),
		tickInterval: tickInterval,
		startedAt:    time.Now(),
	}
}

// GetBuses handles GET /api/buses
func (h *Handler) GetBuses(w http.ResponseWriter, r *http.Request) {
	snap := h.fleet.Snapshot()
	writeList(w, snap.Vehicles)
}

// GetBus handles GET /api/buses/{id}
func (h *Handler) GetBus(w http.ResponseWriter, r *http.Request) {
	v, err := h.fleet.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err, "Bus not found")
		return
	}
	writeData(w, v)
}

// GetBusRoute handles GET /api/bus/{id}/route
func (h *Handler) GetBusRoute(w http.ResponseWriter, r *http.Request) {
	vr, err := h.engine.VehicleRoute(chi.URLParam(r, "id"))
	if err != nil {
		msg := "Route not found"
		if _, lookupErr := h.fleet.GetByID(chi.URLParam(r, "id")); lookupErr != nil {
			msg = "Bus not found"
		}
		writeErr(w, err, msg)
		return
	}
	writeData(w, vr)
}

// NearbyBus is a vehicle with its distance in km from the query point.
type NearbyBus struct {
	fleet.Vehicle
	Distance float64 `json:"distance"`
}

// GetNearbyBuses handles GET /api/nearby-buses?lat=&lng=&radius=
func (h *Handler) GetNearbyBuses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lng") == "" {
		writeError(w, http.StatusBadRequest, "Latitude and longitude are required")
		return
	}
	lat, errLat := parseFinite(q.Get("lat"))
	lng, errLng := parseFinite(q.Get("lng"))
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "Invalid latitude or longitude")
		return
	}
	radius := h.engine.Params().DefaultRadiusKm
	if s := q.Get("radius"); s != "" {
		v, err := parseFinite(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid radius")
			return
		}
		radius = v
	}

	nearby, err := h.engine.NearbyVehicles(geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeErr(w, err, "")
		return
	}
	out := make([]NearbyBus, len(nearby))
	for i, n := range nearby {
		out[i] = NearbyBus{Vehicle: n.Vehicle, Distance: round2(n.DistanceKm)}
	}
	writeList(w, out)
}

// RecommendRequest is the body of POST /api/recommend-routes.
type RecommendRequest struct {
	UserLocation *geo.Point `json:"userLocation" validate:"required"`
	Destination  *geo.Point `json:"destination" validate:"required"`
}

// PostRecommendRoutes handles POST /api/recommend-routes
func (h *Handler) PostRecommendRoutes(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "User location and destination are required")
		return
	}
	recs, err := h.engine.RecommendRoutes(*req.UserLocation, *req.Destination)
	if err != nil {
		writeErr(w, err, "")
		return
	}
	writeList(w, recs)
}

// GetRoutes handles GET /api/routes
func (h *Handler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	writeList(w, h.engine.Routes())
}

// GetVehiclePositionsFeed handles GET /gtfs-rt/vehicle-positions
func (h *Handler) GetVehiclePositionsFeed(w http.ResponseWriter, r *http.Request) {
	snap := h.fleet.Snapshot()
	asJSON := strings.EqualFold(r.URL.Query().Get("format"), "json")
	body, contentType, err := feed.Encode(&snap, asJSON)
	if err != nil {
		writeErr(w, fmt.Errorf("encode feed: %w", err), "")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status             string    `json:"status"`
	Vehicles           int       `json:"vehicles"`
	ActiveVehicles     int       `json:"activeVehicles"`
	Seq                uint64    `json:"seq"`
	LastTick           time.Time `json:"lastTick"`
	LastTickAgeSeconds float64   `json:"lastTickAgeSeconds"`
	UptimeSeconds      float64   `json:"uptimeSeconds"`
	Timestamp          time.Time `json:"timestamp"`
}

// staleAfter is how many tick intervals may pass without a new snapshot
// before /health reports the simulator as stale.
const staleAfter = 3

// GetHealth handles GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.fleet.Snapshot()
	now := time.Now().UTC()
	age := now.Sub(snap.TakenAt)
	resp := HealthResponse{
		Status:             "ok",
		Vehicles:           len(snap.Vehicles),
		ActiveVehicles:     snap.CountByStatus()[fleet.StatusActive],
		Seq:                snap.Seq,
		LastTick:           snap.TakenAt,
		LastTickAgeSeconds: age.Seconds(),
		UptimeSeconds:      now.Sub(h.startedAt).Seconds(),
		Timestamp:          now,
	}
	status := http.StatusOK
	if h.tickInterval > 0 && age > staleAfter*h.tickInterval {
		resp.Status = "stale"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetHealthz handles GET /healthz
func (h *Handler) GetHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

var errNotFinite = errors.New("not a finite number")

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
