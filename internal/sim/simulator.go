package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/geo"
)

// Params controls the per-tick kinematics.
type Params struct {
	TickInterval        time.Duration
	StepDegrees         float64 // base displacement along the heading
	JitterDegrees       float64 // full width of the per-axis random offset
	HeadingDriftProb    float64
	MaxHeadingDrift     float64 // degrees either side
	SpeedWalk           float64 // full width of the per-tick speed change
	OccupancyChangeProb float64
}

func DefaultParams() Params {
	return Params{
		TickInterval:        3 * time.Second,
		StepDegrees:         0.001,
		JitterDegrees:       0.00005,
		HeadingDriftProb:    0.2,
		MaxHeadingDrift:     15,
		SpeedWalk:           10,
		OccupancyChangeProb: 0.3,
	}
}

// Listener receives every snapshot produced by a completed tick.
type Listener func(snap fleet.Snapshot) error

// Metrics is implemented by callers that want tick telemetry.
type Metrics interface {
	TickObserve(d time.Duration, snap *fleet.Snapshot)
	ListenerErrInc()
}

// Simulator owns the fleet. Only Tick mutates it; readers get copies of an
// immutable snapshot that is swapped whole at the end of each tick.
type Simulator struct {
	params  Params
	rng     *rand.Rand
	metrics Metrics
	now     func() time.Time

	mu      sync.RWMutex
	current *fleet.Snapshot

	tickMu sync.Mutex // serializes ticks; also guards rng

	subMu   sync.Mutex
	subs    map[uint64]Listener
	nextSub uint64

	runMu  sync.Mutex // guards cancel
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a simulator over a copy of vehicles. A nil rng falls back to a
// time-seeded PCG source.
func New(vehicles []fleet.Vehicle, p Params, rng *rand.Rand, m Metrics) (*Simulator, error) {
	if err := fleet.Validate(vehicles); err != nil {
		return nil, fmt.Errorf("seed fleet: %w", err)
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	seed := &fleet.Snapshot{
		ID:       uuid.New(),
		TakenAt:  time.Now().UTC(),
		Vehicles: make([]fleet.Vehicle, len(vehicles)),
	}
	copy(seed.Vehicles, vehicles)
	return &Simulator{
		params:  p,
		rng:     rng,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		current: seed,
		subs:    make(map[uint64]Listener),
	}, nil
}

// Snapshot returns a copy of the current fleet state.
func (s *Simulator) Snapshot() fleet.Snapshot {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	return cur.Clone()
}

// GetByID returns one vehicle from the current snapshot.
func (s *Simulator) GetByID(id string) (fleet.Vehicle, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	v, ok := cur.Find(id)
	if !ok {
		return fleet.Vehicle{}, fmt.Errorf("vehicle %q: %w", id, fleet.ErrNotFound)
	}
	return v, nil
}

// Subscribe registers fn for per-tick notifications. The returned func
// removes it; calling it more than once is harmless.
func (s *Simulator) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Tick advances every active vehicle one step, publishes the new snapshot and
// notifies listeners before returning.
func (s *Simulator) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	tickStart := time.Now()

	s.mu.RLock()
	prev := s.current
	s.mu.RUnlock()

	next := &fleet.Snapshot{
		ID:       uuid.New(),
		Seq:      prev.Seq + 1,
		TakenAt:  s.now(),
		Vehicles: make([]fleet.Vehicle, len(prev.Vehicles)),
	}
	for i, v := range prev.Vehicles {
		if v.Active() {
			v = s.advance(v)
		}
		next.Vehicles[i] = v
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.notify(next)
	if s.metrics != nil {
		s.metrics.TickObserve(time.Since(tickStart), next)
	}
}

func (s *Simulator) notify(snap *fleet.Snapshot) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		if err := fn(snap.Clone()); err != nil {
			log.Printf("tick %d listener error: %v", snap.Seq, err)
			if s.metrics != nil {
				s.metrics.ListenerErrInc()
			}
		}
	}
}

// advance moves v along its heading with jitter and random-walks heading,
// speed and occupancy, keeping each within its bounds.
func (s *Simulator) advance(v fleet.Vehicle) fleet.Vehicle {
	p := s.params
	rad := v.Heading * math.Pi / 180
	v.Lat += math.Cos(rad)*p.StepDegrees + (s.rng.Float64()-0.5)*p.JitterDegrees
	v.Lng += math.Sin(rad)*p.StepDegrees + (s.rng.Float64()-0.5)*p.JitterDegrees
	v.Lat = clamp(v.Lat, -90, 90)
	v.Lng = wrapLongitude(v.Lng)

	if s.rng.Float64() < p.HeadingDriftProb {
		v.Heading += (s.rng.Float64() - 0.5) * 2 * p.MaxHeadingDrift
	}
	v.Heading = geo.NormalizeHeading(v.Heading)

	v.Speed = clamp(v.Speed+(s.rng.Float64()-0.5)*p.SpeedWalk, 0, fleet.MaxSpeed)

	if s.rng.Float64() < p.OccupancyChangeProb {
		change := int(math.Floor((s.rng.Float64() - 0.3) * 8))
		v.Passengers = clampInt(v.Passengers+change, 0, v.Capacity)
	}
	return v
}

// Start launches the tick loop. Ticks never overlap: one goroutine owns the
// ticker and a slow tick makes the ticker drop, not queue, the next one.
// Start on a running simulator is a no-op.
func (s *Simulator) Start(parent context.Context) {
	if s.params.TickInterval <= 0 {
		return
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.params.TickInterval)
		defer ticker.Stop()
		log.Printf("simulator started: %d vehicles, tick every %s", len(s.Snapshot().Vehicles), s.params.TickInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (s *Simulator) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapLongitude(lng float64) float64 {
	if lng > 180 {
		return lng - 360
	}
	if lng < -180 {
		return lng + 360
	}
	return lng
}
