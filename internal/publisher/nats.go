package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"bus-tracker/internal/fleet"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bus-tracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, prefix, logSubjects, m), nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "buses"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// PositionMessage is published once per active vehicle per tick.
type PositionMessage struct {
	VehicleID  string       `json:"vehicleId"`
	RouteID    string       `json:"routeId"`
	Seq        uint64       `json:"seq"`
	Timestamp  time.Time    `json:"timestamp"`
	Lat        float64      `json:"lat"`
	Lon        float64      `json:"lon"`
	Bearing    float64      `json:"bearing"`
	SpeedKmh   float64      `json:"speedKmh"`
	Status     fleet.Status `json:"status"`
	Passengers int          `json:"passengers"`
	Capacity   int          `json:"capacity"`
}

func positionMessage(snap *fleet.Snapshot, v fleet.Vehicle) PositionMessage {
	return PositionMessage{
		VehicleID:  v.ID,
		RouteID:    v.RouteID,
		Seq:        snap.Seq,
		Timestamp:  snap.TakenAt,
		Lat:        v.Lat,
		Lon:        v.Lng,
		Bearing:    v.Heading,
		SpeedKmh:   v.Speed,
		Status:     v.Status,
		Passengers: v.Passengers,
		Capacity:   v.Capacity,
	}
}

// SnapshotSubject carries the whole fleet state on every tick.
func (p *NATSPublisher) SnapshotSubject() string { return p.prefix + ".snapshot" }

// VehicleSubject is <prefix>.<route>.<vehicle>, so consumers can subscribe to
// a single route with <prefix>.<route>.*.
func (p *NATSPublisher) VehicleSubject(routeID, vehicleID string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(routeID), subjectToken(vehicleID))
}

// PublishSnapshot fans a snapshot out to NATS. It has the simulator listener
// signature so it can be subscribed directly. Failures on individual subjects
// do not stop the rest from being published.
func (p *NATSPublisher) PublishSnapshot(snap fleet.Snapshot) error {
	var errs []error
	if err := p.publishJSON(p.SnapshotSubject(), snap); err != nil {
		errs = append(errs, err)
	}
	for _, v := range snap.Vehicles {
		if !v.Active() {
			continue
		}
		if err := p.publishJSON(p.VehicleSubject(v.RouteID, v.ID), positionMessage(&snap, v)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *NATSPublisher) publishJSON(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
