package fleet

import (
	"fmt"
	"math"
)

// Validate checks a seed fleet against the vehicle invariants.
func Validate(vehicles []Vehicle) error {
	seen := make(map[string]struct{}, len(vehicles))
	for i, v := range vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle %d: id is required", i)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("vehicle %s: duplicate id", v.ID)
		}
		seen[v.ID] = struct{}{}
		if !v.Status.Valid() {
			return fmt.Errorf("vehicle %s: unknown status %q", v.ID, v.Status)
		}
		if err := v.Position().Validate(); err != nil {
			return fmt.Errorf("vehicle %s: %w", v.ID, err)
		}
		if v.Capacity < 0 || v.Passengers < 0 || v.Passengers > v.Capacity {
			return fmt.Errorf("vehicle %s: passengers %d outside [0, %d]", v.ID, v.Passengers, v.Capacity)
		}
		if math.IsNaN(v.Speed) || v.Speed < 0 || v.Speed > MaxSpeed {
			return fmt.Errorf("vehicle %s: speed %v outside [0, %v]", v.ID, v.Speed, MaxSpeed)
		}
		if math.IsNaN(v.Heading) || v.Heading < 0 || v.Heading >= 360 {
			return fmt.Errorf("vehicle %s: heading %v outside [0, 360)", v.ID, v.Heading)
		}
	}
	return nil
}

// ValidateRoutes checks that route ids are unique and every route has stops.
func ValidateRoutes(routes []Route) error {
	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		if r.ID == "" {
			return fmt.Errorf("route %d: id is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("route %s: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.Stops) == 0 {
			return fmt.Errorf("route %s: has no stops", r.ID)
		}
		for _, s := range r.Stops {
			if err := s.Position().Validate(); err != nil {
				return fmt.Errorf("route %s stop %s: %w", r.ID, s.ID, err)
			}
		}
	}
	return nil
}
