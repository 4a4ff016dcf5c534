package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge

	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter

	Ticks     prometheus.Counter
	Crossings prometheus.Counter
	Fixes     prometheus.Counter
	FixErrors prometheus.Counter
	Commands  *prometheus.CounterVec // command, result labels

	Alerts *prometheus.CounterVec // category, kind labels

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	SpeedMultiplier prometheus.Gauge
	FrameInterval   prometheus.Gauge // seconds
	AlertDebounce   prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, frameInterval, debounce time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metro_active_sessions",
			Help: "Number of currently running sessions.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_sessions_started_total",
			Help: "Total sessions launched.",
		}),
		SessionsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_sessions_finished_total",
			Help: "Total sessions that reached the end of their path.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_ticks_total",
			Help: "Total ticks that produced a position update.",
		}),
		Crossings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_station_crossings_total",
			Help: "Total stations recorded as crossed.",
		}),
		Fixes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_location_fixes_total",
			Help: "Total location fixes received in calibrate mode.",
		}),
		FixErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_location_errors_total",
			Help: "Total location sensor errors received.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metro_commands_total",
			Help: "Control commands applied to sessions.",
		}, []string{"command", "result"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metro_alerts_total",
			Help: "Alerts emitted.",
		}, []string{"category", "kind"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metro_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metro_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metro_tick_duration_seconds",
			Help:    "Duration of per-tick motion and alert computation.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metro_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metro_speed_multiplier",
			Help: "Most recently applied speed multiplier.",
		}),
		FrameInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metro_frame_interval_seconds",
			Help: "Simulation frame interval in seconds.",
		}),
		AlertDebounce: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metro_alert_debounce_seconds",
			Help: "Per-category alert debounce window in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions,
		c.SessionsStarted, c.SessionsFinished,
		c.Ticks, c.Crossings, c.Fixes, c.FixErrors, c.Commands, c.Alerts,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration,
		c.SpeedMultiplier, c.FrameInterval, c.AlertDebounce,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.FrameInterval.Set(frameInterval.Seconds())
	c.AlertDebounce.Set(debounce.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Mount is an extra handler served next to /metrics.
type Mount struct {
	Pattern string
	Handler http.Handler
}

// Serve starts an HTTP server exposing /metrics and any mounts on the given address.
func (c *Collector) Serve(addr string, mounts ...Mount) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	for _, m := range mounts {
		mux.Handle(m.Pattern, m.Handler)
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
