package fleet

import (
	"time"

	"github.com/google/uuid"

	"bus-tracker/internal/geo"
)

// MaxSpeed caps simulated vehicle speed (km/h).
const MaxSpeed = 50.0

type Status string

const (
	StatusActive       Status = "active"
	StatusMaintenance  Status = "maintenance"
	StatusOutOfService Status = "out-of-service"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusMaintenance, StatusOutOfService:
		return true
	}
	return false
}

// Vehicle is one simulated bus. JSON field names follow the browser client's
// expectations (route label under "route", route id under "routeNumber").
type Vehicle struct {
	ID               string  `json:"id"`
	RouteID          string  `json:"routeNumber"`
	RouteLabel       string  `json:"route"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Heading          float64 `json:"heading"`
	Speed            float64 `json:"speed"`
	Status           Status  `json:"status"`
	Passengers       int     `json:"passengers"`
	Capacity         int     `json:"capacity"`
	NextStop         string  `json:"nextStop"`
	EstimatedArrival string  `json:"estimatedArrival"`
	Driver           string  `json:"driver"`
}

func (v Vehicle) Position() geo.Point { return geo.Point{Lat: v.Lat, Lng: v.Lng} }

func (v Vehicle) Active() bool { return v.Status == StatusActive }

type Stop struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	ArrivalLabel string  `json:"arrivalTime"`
}

func (s Stop) Position() geo.Point { return geo.Point{Lat: s.Lat, Lng: s.Lng} }

// Route is an ordered stop sequence; order is traversal order.
type Route struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Stops []Stop `json:"stops"`
}

// Snapshot is the fleet state at one instant. Seq 0 is the seed state.
type Snapshot struct {
	ID       uuid.UUID `json:"id"`
	Seq      uint64    `json:"seq"`
	TakenAt  time.Time `json:"timestamp"`
	Vehicles []Vehicle `json:"vehicles"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Vehicles = make([]Vehicle, len(s.Vehicles))
	copy(out.Vehicles, s.Vehicles)
	return out
}

// Find returns the vehicle with the given id.
func (s *Snapshot) Find(id string) (Vehicle, bool) {
	for _, v := range s.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

// CountByStatus tallies vehicles per status.
func (s *Snapshot) CountByStatus() map[Status]int {
	out := map[Status]int{
		StatusActive:       0,
		StatusMaintenance:  0,
		StatusOutOfService: 0,
	}
	for _, v := range s.Vehicles {
		out[v.Status]++
	}
	return out
}
