package query

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/geo"
)

// SnapshotSource is the read side of the simulator.
type SnapshotSource interface {
	Snapshot() fleet.Snapshot
}

// Params are the tunable constants of the ranking. WalkMinutesPerKm of 12
// corresponds to a 5 km/h walking pace.
type Params struct {
	WalkMinutesPerKm float64
	MinutesPerStop   float64
	DefaultRadiusKm  float64
	Limit            int
	MaxWalkKm        float64 // per leg; 0 disables the cut-off
	DistinctVehicles bool    // keep only each vehicle's best candidate
}

func DefaultParams() Params {
	return Params{
		WalkMinutesPerKm: 12,
		MinutesPerStop:   3,
		DefaultRadiusKm:  5,
		Limit:            5,
		MaxWalkKm:        0,
		DistinctVehicles: false,
	}
}

// Nearby is a vehicle with its distance from the query point.
type Nearby struct {
	Vehicle    fleet.Vehicle
	DistanceKm float64
}

// StopRef is a stop together with its index in the route's sequence.
type StopRef struct {
	fleet.Stop
	Index int `json:"index"`
}

type Recommendation struct {
	Vehicle               fleet.Vehicle `json:"bus"`
	RouteID               string        `json:"routeId"`
	RouteLabel            string        `json:"routeLabel"`
	Pickup                StopRef       `json:"pickupStop"`
	Drop                  StopRef       `json:"dropStop"`
	WalkToPickupKm        float64       `json:"walkToPickup"`
	WalkFromDropKm        float64       `json:"walkFromDrop"`
	WalkToPickupMinutes   int           `json:"walkToPickupTime"`
	WalkFromDropMinutes   int           `json:"walkFromDropTime"`
	BusJourneyMinutes     float64       `json:"busJourneyTime"`
	StopsCount            int           `json:"stopsCount"`
	EstimatedTotalMinutes float64       `json:"estimatedTotalTime"`
	Summary               string        `json:"recommendation"`
}

// VehicleRoute is a vehicle's full stop sequence with a journey estimate.
type VehicleRoute struct {
	Vehicle                 fleet.Vehicle `json:"busInfo"`
	RouteID                 string        `json:"routeId"`
	RouteLabel              string        `json:"routeLabel"`
	Stops                   []fleet.Stop  `json:"routeStops"`
	TotalStops              int           `json:"totalStops"`
	EstimatedJourneyMinutes float64       `json:"estimatedJourneyTime"`
}

// Engine answers spatial queries against the current snapshot and static
// route data. It holds no fleet state of its own.
type Engine struct {
	src     SnapshotSource
	params  Params
	routes  []fleet.Route // sorted by ID
	byID    map[string]int
	metrics Metrics
}

// Metrics is implemented by callers that want per-query telemetry.
type Metrics interface {
	QueryObserve(kind string, d time.Duration, results int, err error)
}

func NewEngine(src SnapshotSource, routes []fleet.Route, p Params, m Metrics) (*Engine, error) {
	if err := fleet.ValidateRoutes(routes); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	if p.WalkMinutesPerKm < 0 || p.MinutesPerStop < 0 || p.DefaultRadiusKm <= 0 || p.Limit <= 0 || p.MaxWalkKm < 0 {
		return nil, fmt.Errorf("%w: query params %+v", fleet.ErrInvalidArgument, p)
	}
	sorted := make([]fleet.Route, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	byID := make(map[string]int, len(sorted))
	for i, r := range sorted {
		byID[r.ID] = i
	}
	return &Engine{src: src, params: p, routes: sorted, byID: byID, metrics: m}, nil
}

func (e *Engine) Params() Params { return e.params }

// Routes returns the static routes ordered by ID.
func (e *Engine) Routes() []fleet.Route {
	out := make([]fleet.Route, len(e.routes))
	copy(out, e.routes)
	return out
}

func (e *Engine) observe(kind string, start time.Time, n int, err error) {
	if e.metrics != nil {
		e.metrics.QueryObserve(kind, time.Since(start), n, err)
	}
}

// NearbyVehicles returns active vehicles within radiusKm of point, nearest
// first (ties by vehicle ID). No match is an empty result, not an error.
func (e *Engine) NearbyVehicles(point geo.Point, radiusKm float64) ([]Nearby, error) {
	start := time.Now()
	if err := point.Validate(); err != nil {
		e.observe("nearby", start, 0, err)
		return nil, fmt.Errorf("%w: %v", fleet.ErrInvalidArgument, err)
	}
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		err := fmt.Errorf("%w: radius must be positive, got %v", fleet.ErrInvalidArgument, radiusKm)
		e.observe("nearby", start, 0, err)
		return nil, err
	}

	snap := e.src.Snapshot()
	out := make([]Nearby, 0)
	for _, v := range snap.Vehicles {
		if !v.Active() {
			continue
		}
		d := geo.HaversineKm(point, v.Position())
		if d <= radiusKm {
			out = append(out, Nearby{Vehicle: v, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Vehicle.ID < out[j].Vehicle.ID
	})
	e.observe("nearby", start, len(out), nil)
	return out, nil
}

// RecommendRoutes ranks boarding options from origin to destination. Every
// active vehicle on a route contributes each (pickup, drop) pair where the
// drop comes strictly after the pickup in the stop sequence.
func (e *Engine) RecommendRoutes(origin, destination geo.Point) ([]Recommendation, error) {
	start := time.Now()
	if err := origin.Validate(); err != nil {
		err = fmt.Errorf("%w: origin: %v", fleet.ErrInvalidArgument, err)
		e.observe("recommend", start, 0, err)
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		err = fmt.Errorf("%w: destination: %v", fleet.ErrInvalidArgument, err)
		e.observe("recommend", start, 0, err)
		return nil, err
	}

	snap := e.src.Snapshot()
	byRoute := make(map[string][]fleet.Vehicle)
	for _, v := range snap.Vehicles {
		if v.Active() {
			byRoute[v.RouteID] = append(byRoute[v.RouteID], v)
		}
	}

	var candidates []Recommendation
	for _, r := range e.routes {
		vehicles := byRoute[r.ID]
		if len(vehicles) == 0 || len(r.Stops) < 2 {
			continue
		}
		// walk legs only depend on the stop, not the vehicle
		toStop := make([]float64, len(r.Stops))
		fromStop := make([]float64, len(r.Stops))
		for i, s := range r.Stops {
			toStop[i] = geo.HaversineKm(origin, s.Position())
			fromStop[i] = geo.HaversineKm(s.Position(), destination)
		}
		for i := 0; i < len(r.Stops)-1; i++ {
			if e.params.MaxWalkKm > 0 && toStop[i] > e.params.MaxWalkKm {
				continue
			}
			for j := i + 1; j < len(r.Stops); j++ {
				if e.params.MaxWalkKm > 0 && fromStop[j] > e.params.MaxWalkKm {
					continue
				}
				for _, v := range vehicles {
					candidates = append(candidates, e.candidate(v, r, i, j, toStop[i], fromStop[j]))
				}
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool { return less(candidates[a], candidates[b]) })
	if e.params.DistinctVehicles {
		candidates = bestPerVehicle(candidates)
	}
	if len(candidates) > e.params.Limit {
		candidates = candidates[:e.params.Limit]
	}
	if candidates == nil {
		candidates = []Recommendation{}
	}
	e.observe("recommend", start, len(candidates), nil)
	return candidates, nil
}

func (e *Engine) candidate(v fleet.Vehicle, r fleet.Route, i, j int, walkTo, walkFrom float64) Recommendation {
	walkToMin := walkMinutes(walkTo, e.params.WalkMinutesPerKm)
	walkFromMin := walkMinutes(walkFrom, e.params.WalkMinutesPerKm)
	stops := j - i
	bus := float64(stops) * e.params.MinutesPerStop
	rec := Recommendation{
		Vehicle:               v,
		RouteID:               r.ID,
		RouteLabel:            r.Label,
		Pickup:                StopRef{Stop: r.Stops[i], Index: i},
		Drop:                  StopRef{Stop: r.Stops[j], Index: j},
		WalkToPickupKm:        walkTo,
		WalkFromDropKm:        walkFrom,
		WalkToPickupMinutes:   walkToMin,
		WalkFromDropMinutes:   walkFromMin,
		BusJourneyMinutes:     bus,
		StopsCount:            stops,
		EstimatedTotalMinutes: float64(walkToMin+walkFromMin) + bus,
	}
	rec.Summary = summarize(rec)
	return rec
}

func walkMinutes(km, perKm float64) int {
	return int(math.Ceil(km * perKm))
}

func less(a, b Recommendation) bool {
	if a.EstimatedTotalMinutes != b.EstimatedTotalMinutes {
		return a.EstimatedTotalMinutes < b.EstimatedTotalMinutes
	}
	if a.StopsCount != b.StopsCount {
		return a.StopsCount < b.StopsCount
	}
	if a.RouteID != b.RouteID {
		return a.RouteID < b.RouteID
	}
	if a.Vehicle.ID != b.Vehicle.ID {
		return a.Vehicle.ID < b.Vehicle.ID
	}
	if a.Pickup.Index != b.Pickup.Index {
		return a.Pickup.Index < b.Pickup.Index
	}
	return a.Drop.Index < b.Drop.Index
}

// bestPerVehicle keeps the first (best ranked) candidate for each vehicle.
// Input must already be sorted.
func bestPerVehicle(sorted []Recommendation) []Recommendation {
	seen := make(map[string]struct{})
	out := sorted[:0]
	for _, c := range sorted {
		if _, dup := seen[c.Vehicle.ID]; dup {
			continue
		}
		seen[c.Vehicle.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func summarize(r Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Walk %.2f km to %s, take bus %s for %d stop", r.WalkToPickupKm, r.Pickup.Name, r.RouteID, r.StopsCount)
	if r.StopsCount != 1 {
		b.WriteByte('s')
	}
	fmt.Fprintf(&b, " to %s, then walk %.2f km", r.Drop.Name, r.WalkFromDropKm)
	return b.String()
}

// VehicleRoute returns the route assigned to a vehicle with its stops.
func (e *Engine) VehicleRoute(vehicleID string) (VehicleRoute, error) {
	start := time.Now()
	snap := e.src.Snapshot()
	v, ok := snap.Find(vehicleID)
	if !ok {
		err := fmt.Errorf("vehicle %q: %w", vehicleID, fleet.ErrNotFound)
		e.observe("vehicle_route", start, 0, err)
		return VehicleRoute{}, err
	}
	idx, ok := e.byID[v.RouteID]
	if !ok {
		err := fmt.Errorf("route %q for vehicle %q: %w", v.RouteID, vehicleID, fleet.ErrNotFound)
		e.observe("vehicle_route", start, 0, err)
		return VehicleRoute{}, err
	}
	r := e.routes[idx]
	stops := make([]fleet.Stop, len(r.Stops))
	copy(stops, r.Stops)
	e.observe("vehicle_route", start, len(stops), nil)
	return VehicleRoute{
		Vehicle:                 v,
		RouteID:                 r.ID,
		RouteLabel:              r.Label,
		Stops:                   stops,
		TotalStops:              len(stops),
		EstimatedJourneyMinutes: float64(len(stops)-1) * e.params.MinutesPerStop,
	}, nil
}
