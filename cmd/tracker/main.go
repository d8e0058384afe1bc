package main

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bus-tracker/internal/api"
	"bus-tracker/internal/config"
	"bus-tracker/internal/db"
	"bus-tracker/internal/fleet"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/push"
	"bus-tracker/internal/query"
	"bus-tracker/internal/sim"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	vehicles, routes := loadFleet(ctx, cfg)
	checkRouteCoverage(vehicles, routes)

	mcol := metrics.NewCollector(cfg.Sim.TickInterval)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
		log.Printf("simulation seed %d", cfg.Seed)
	}
	simulator, err := sim.New(vehicles, cfg.Sim, rng, &simMetrics{c: mcol})
	if err != nil {
		log.Fatalf("simulator error: %v", err)
	}
	initial := simulator.Snapshot()
	mcol.ObserveSnapshot(&initial)

	engine, err := query.NewEngine(simulator, routes, cfg.Query, &queryMetrics{c: mcol})
	if err != nil {
		log.Fatalf("query engine error: %v", err)
	}

	hub := push.NewHub(simulator, push.DefaultSendQueue, cfg.CORSOrigins, &hubMetrics{c: mcol})
	unsubHub := simulator.Subscribe(hub.Broadcast)
	defer unsubHub()

	// NATS is optional
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		unsubPub := simulator.Subscribe(pub.PublishSnapshot)
		defer unsubPub()
		log.Printf("publishing to nats %s on %s", cfg.NATSURL, pub.SnapshotSubject())
	}

	router := api.NewRouter(api.NewHandler(simulator, engine, cfg.Sim.TickInterval), api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Push:        hub,
		Metrics:     mcol.Handler(),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()
	log.Printf("bus tracker listening on :%s (%d vehicles, %d routes)", cfg.Port, len(vehicles), len(routes))

	simulator.Start(ctx)

	// Block until context cancelled
	<-ctx.Done()
	log.Println("shutting down")

	simulator.Stop()
	hub.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

// loadFleet resolves vehicles and routes: the built-in seed, overridden by
// FLEET_FILE sections, with routes finally overridden by ROUTES_DSN.
func loadFleet(ctx context.Context, cfg *config.Config) ([]fleet.Vehicle, []fleet.Route) {
	vehicles := fleet.SeedVehicles()
	routes := fleet.SeedRoutes()

	if cfg.FleetFile != "" {
		ff, err := config.LoadFleetFile(cfg.FleetFile)
		if err != nil {
			log.Fatalf("fleet file %s: %v", cfg.FleetFile, err)
		}
		if v := ff.FleetVehicles(); v != nil {
			vehicles = v
		}
		if r := ff.FleetRoutes(); r != nil {
			routes = r
		}
		log.Printf("loaded fleet file %s", cfg.FleetFile)
	}

	if cfg.RoutesDSN != "" {
		sqlDB, err := db.Open(cfg.RoutesDSN)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		dbRoutes, err := db.FetchRoutes(ctx, sqlDB)
		if err != nil {
			log.Fatalf("fetch routes error: %v", err)
		}
		if len(dbRoutes) == 0 {
			log.Printf("no routes with trips in database, keeping %d configured routes", len(routes))
		} else {
			routes = dbRoutes
			log.Printf("loaded %d routes from database", len(routes))
		}
	}
	return vehicles, routes
}

// checkRouteCoverage warns about vehicles whose route has no stop data; they
// still move and show up in nearby queries but are never recommended.
func checkRouteCoverage(vehicles []fleet.Vehicle, routes []fleet.Route) {
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r.ID] = true
	}
	for _, v := range vehicles {
		if !known[v.RouteID] {
			log.Printf("vehicle %s: route %q has no stops configured", v.ID, v.RouteID)
		}
	}
}

type simMetrics struct{ c *metrics.Collector }

func (m *simMetrics) TickObserve(d time.Duration, snap *fleet.Snapshot) {
	m.c.Ticks.Inc()
	m.c.TickDuration.Observe(d.Seconds())
	m.c.ObserveSnapshot(snap)
}
func (m *simMetrics) ListenerErrInc() { m.c.ListenerErrors.Inc() }

type queryMetrics struct{ c *metrics.Collector }

func (m *queryMetrics) QueryObserve(kind string, d time.Duration, _ int, err error) {
	m.c.ObserveQuery(kind, d, err)
}

type hubMetrics struct{ c *metrics.Collector }

func (m *hubMetrics) ClientsSet(n int)  { m.c.WSClients.Set(float64(n)) }
func (m *hubMetrics) ClientDroppedInc() { m.c.WSDropped.Inc() }

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
