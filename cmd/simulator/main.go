package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"metro-simulator/internal/alerts"
	"metro-simulator/internal/config"
	"metro-simulator/internal/db"
	"metro-simulator/internal/lines"
	"metro-simulator/internal/metrics"
	"metro-simulator/internal/motion"
	"metro-simulator/internal/publisher"
	"metro-simulator/internal/route"
	"metro-simulator/internal/sim"
	"metro-simulator/internal/speed"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	line, err := store.Line(ctx, cfg.LineID)
	if err != nil {
		log.Fatalf("load line: %v", err)
	}
	path, err := line.BuildPath(cfg.StartStation, cfg.EndStation)
	if err != nil {
		log.Fatalf("build path: %v", err)
	}
	intermediate := line.IntermediateStations(cfg.StartStation, cfg.EndStation)
	log.Printf("line %d %q: %d -> %d, %d points, %.0f m", line.ID, line.Name, cfg.StartStation, cfg.EndStation, path.Len(), path.Total())

	// Metrics setup
	var mcol *metrics.Collector
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SpeedMultiplier, cfg.FrameInterval, cfg.AlertDebounce)
		srv = mcol.Serve(cfg.MetricsAddr, metrics.Mount{Pattern: "/route.geojson", Handler: geojsonHandler(path)})
	}

	format, err := publisher.ParseFormat(cfg.PublishFormat)
	if err != nil {
		log.Fatalf("publish format: %v", err)
	}
	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, format, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	id := firstNonEmpty(cfg.SessionID, cfg.DeviceID)
	if id == "" {
		id = uuid.NewString()
	}

	var src motion.Source
	mode := sim.Mode(cfg.Mode)
	switch mode {
	case sim.ModeCalibrate:
		feed, err := pub.SubscribeFixes(cfg.DeviceID, 64)
		if err != nil {
			log.Fatalf("subscribe fixes: %v", err)
		}
		src = feed
	default:
		src = motion.NewFrameClock(cfg.FrameInterval)
	}

	sess, err := sim.NewSession(id, sim.Config{
		Mode: mode,
		Alerts: alerts.Config{
			Debounce:        cfg.AlertDebounce,
			Lookahead:       alerts.DefaultConfig().Lookahead,
			CurveAngle:      cfg.CurveAngle,
			CurveDistance:   cfg.CurveDistance,
			StationDistance: cfg.StationDistance,
			DangerMargin:    cfg.DangerMargin,
		},
		Calibration: motion.CalibrationConfig{
			StationProximity: cfg.StationProximity,
			MaxOffRoute:      cfg.MaxOffRoute,
		},
		Speed:      speed.DefaultProfile(),
		Multiplier: cfg.SpeedMultiplier,
	}, path, intermediate, src, sim.Multi{pub, sim.LogObserver{}}, mcol)
	if err != nil {
		src.Stop()
		log.Fatalf("session error: %v", err)
	}

	mgr := sim.NewManager(mcol)
	mgr.Launch(ctx, sess)

	ctrl, err := pub.SubscribeControl(ctx, func(ctx context.Context, id string, msg publisher.ControlMessage) error {
		return mgr.Apply(ctx, id, msg.Command, msg.Value())
	})
	if err != nil {
		log.Fatalf("subscribe control: %v", err)
	}
	defer ctrl.Unsubscribe()

	if err := sess.Start(ctx); err != nil {
		log.Fatalf("start session: %v", err)
	}
	log.Printf("session %s (%s) publishing under %s", id, mode, cfg.SubjectPrefix)

	// Block until context cancelled
	<-ctx.Done()
	mgr.StopAll()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

// openStore returns the line store configured by LINES_FILE or the database.
func openStore(ctx context.Context, cfg *config.Config) (lines.Store, func()) {
	if cfg.LinesFile != "" {
		c, err := lines.Load(cfg.LinesFile)
		if err != nil {
			log.Fatalf("lines file: %v", err)
		}
		log.Printf("using lines from %s", cfg.LinesFile)
		return c, func() {}
	}
	dsn, err := db.WithDBName(cfg.DatabaseURL, cfg.DatabaseName)
	if err != nil {
		log.Fatalf("invalid DSN: %v", err)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	return db.NewStore(sqlDB), func() { sqlDB.Close() }
}

func geojsonHandler(p *route.Path) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(p.GeoJSON()); err != nil {
			log.Printf("geojson encode: %v", err)
		}
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

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
