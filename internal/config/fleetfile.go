package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"bus-tracker/internal/fleet"
)

// FleetFile is the YAML layout of FLEET_FILE. Either section may be omitted,
// in which case the built-in seed is used for it.
type FleetFile struct {
	Routes   []RouteSpec   `yaml:"routes" validate:"dive"`
	Vehicles []VehicleSpec `yaml:"vehicles" validate:"dive"`
}

type RouteSpec struct {
	ID    string     `yaml:"id" validate:"required"`
	Label string     `yaml:"label"`
	Stops []StopSpec `yaml:"stops" validate:"required,min=1,dive"`
}

type StopSpec struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name" validate:"required"`
	Lat     float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `yaml:"lng" validate:"gte=-180,lte=180"`
	Arrival string  `yaml:"arrival"`
}

type VehicleSpec struct {
	ID               string  `yaml:"id" validate:"required"`
	RouteID          string  `yaml:"route" validate:"required"`
	RouteLabel       string  `yaml:"routeLabel"`
	Lat              float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng              float64 `yaml:"lng" validate:"gte=-180,lte=180"`
	Heading          float64 `yaml:"heading" validate:"gte=0,lt=360"`
	Speed            float64 `yaml:"speed" validate:"gte=0,lte=50"`
	Status           string  `yaml:"status" validate:"omitempty,oneof=active maintenance out-of-service"`
	Passengers       int     `yaml:"passengers" validate:"gte=0,ltefield=Capacity"`
	Capacity         int     `yaml:"capacity" validate:"gte=0"`
	NextStop         string  `yaml:"nextStop"`
	EstimatedArrival string  `yaml:"estimatedArrival"`
	Driver           string  `yaml:"driver"`
}

// LoadFleetFile reads and validates a fleet definition.
func LoadFleetFile(path string) (*FleetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFleetFile(data)
}

func ParseFleetFile(data []byte) (*FleetFile, error) {
	var ff FleetFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	v := validator.New()
	if err := v.Struct(ff); err != nil {
		return nil, fmt.Errorf("validate fleet file: %w", err)
	}
	return &ff, nil
}

// FleetRoutes converts the route section, or returns nil when it is empty.
func (ff *FleetFile) FleetRoutes() []fleet.Route {
	if len(ff.Routes) == 0 {
		return nil
	}
	out := make([]fleet.Route, 0, len(ff.Routes))
	for _, rs := range ff.Routes {
		r := fleet.Route{ID: rs.ID, Label: rs.Label, Stops: make([]fleet.Stop, len(rs.Stops))}
		for i, ss := range rs.Stops {
			id := ss.ID
			if id == "" {
				id = fmt.Sprintf("%s-%02d", rs.ID, i+1)
			}
			r.Stops[i] = fleet.Stop{ID: id, Name: ss.Name, Lat: ss.Lat, Lng: ss.Lng, ArrivalLabel: ss.Arrival}
		}
		out = append(out, r)
	}
	return out
}

// FleetVehicles converts the vehicle section, or returns nil when it is empty.
// A missing status defaults to active.
func (ff *FleetFile) FleetVehicles() []fleet.Vehicle {
	if len(ff.Vehicles) == 0 {
		return nil
	}
	out := make([]fleet.Vehicle, 0, len(ff.Vehicles))
	for _, vs := range ff.Vehicles {
		status := fleet.Status(vs.Status)
		if status == "" {
			status = fleet.StatusActive
		}
		out = append(out, fleet.Vehicle{
			ID:               vs.ID,
			RouteID:          vs.RouteID,
			RouteLabel:       vs.RouteLabel,
			Lat:              vs.Lat,
			Lng:              vs.Lng,
			Heading:          vs.Heading,
			Speed:            vs.Speed,
			Status:           status,
			Passengers:       vs.Passengers,
			Capacity:         vs.Capacity,
			NextStop:         vs.NextStop,
			EstimatedArrival: vs.EstimatedArrival,
			Driver:           vs.Driver,
		})
	}
	return out
}
