package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bus-tracker/internal/fleet"
)

type Collector struct {
	reg *prometheus.Registry

	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	LastTick       prometheus.Gauge // unix seconds
	SnapshotSeq    prometheus.Gauge
	ListenerErrors prometheus.Counter

	Vehicles   *prometheus.GaugeVec // status label
	Passengers prometheus.Gauge
	Capacity   prometheus.Gauge

	Queries       *prometheus.CounterVec   // kind, result labels
	QueryDuration *prometheus.HistogramVec // kind label

	WSClients prometheus.Gauge
	WSDropped prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TickInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_ticks_total",
			Help: "Total simulation ticks completed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		LastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_last_tick_timestamp_seconds",
			Help: "Unix time of the latest snapshot.",
		}),
		SnapshotSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_snapshot_seq",
			Help: "Sequence number of the latest snapshot.",
		}),
		ListenerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_listener_errors_total",
			Help: "Snapshot listener invocations that returned an error.",
		}),
		Vehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_vehicles",
			Help: "Vehicles in the latest snapshot by status.",
		}, []string{"status"}),
		Passengers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_passengers",
			Help: "Passengers aboard active vehicles.",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_capacity",
			Help: "Seat capacity of active vehicles.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_queries_total",
			Help: "Spatial queries served.",
		}, []string{"kind", "result"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_query_duration_seconds",
			Help:    "Duration of spatial queries.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}, []string{"kind"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_ws_dropped_total",
			Help: "WebSocket clients dropped for falling behind.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_tick_interval_seconds",
			Help: "Configured tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Ticks, c.TickDuration, c.LastTick, c.SnapshotSeq, c.ListenerErrors,
		c.Vehicles, c.Passengers, c.Capacity,
		c.Queries, c.QueryDuration,
		c.WSClients, c.WSDropped,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TickInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())
	// expose every status even before the first tick
	for _, s := range []fleet.Status{fleet.StatusActive, fleet.StatusMaintenance, fleet.StatusOutOfService} {
		c.Vehicles.WithLabelValues(string(s)).Set(0)
	}

	return c
}

// ObserveSnapshot refreshes the fleet gauges from a snapshot.
func (c *Collector) ObserveSnapshot(snap *fleet.Snapshot) {
	for s, n := range snap.CountByStatus() {
		c.Vehicles.WithLabelValues(string(s)).Set(float64(n))
	}
	var pax, capacity int
	for _, v := range snap.Vehicles {
		if v.Active() {
			pax += v.Passengers
			capacity += v.Capacity
		}
	}
	c.Passengers.Set(float64(pax))
	c.Capacity.Set(float64(capacity))
	c.SnapshotSeq.Set(float64(snap.Seq))
	if !snap.TakenAt.IsZero() {
		c.LastTick.Set(float64(snap.TakenAt.UnixNano()) / 1e9)
	}
}

// ObserveQuery counts a query under kind with result "ok" or "error".
func (c *Collector) ObserveQuery(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Queries.WithLabelValues(kind, result).Inc()
	c.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
