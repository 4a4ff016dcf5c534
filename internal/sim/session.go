package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"metro-simulator/internal/alerts"
	mmetrics "metro-simulator/internal/metrics"
	"metro-simulator/internal/motion"
	"metro-simulator/internal/route"
	"metro-simulator/internal/speed"
	"metro-simulator/internal/stations"
)

type Mode string

const (
	ModeSimulate  Mode = "simulate"
	ModeCalibrate Mode = "calibrate"
)

var (
	ErrStopped     = errors.New("session stopped")
	ErrUnknownMode = errors.New("unknown session mode")
	ErrCommand     = errors.New("unknown command")
)

type Config struct {
	Mode        Mode
	Alerts      alerts.Config
	Calibration motion.CalibrationConfig
	Speed       speed.Profile
	Multiplier  float64
	// Clock stamps commands such as start and resume. Defaults to time.Now.
	Clock func() time.Time
}

// Frame is everything produced by one tick, delivered to observers in a
// single call so they never see a partial update.
type Frame struct {
	Session    string
	Mode       Mode
	Update     motion.Update
	Alerts     []alerts.Alert
	SpeedKmh   float64 // effective speed
	SpeedLimit float64
	Band       alerts.Band
	Neighbours route.Neighbours
}

type Observer interface {
	OnFrame(f Frame)
	OnError(session string, err error)
}

// Snapshot is a copy of a session's state taken inside its loop.
type Snapshot struct {
	Status   motion.Status
	Distance float64
	Index    int
	SpeedKmh float64
	Crossed  []int
	Alerts   []alerts.Alert
}

type request struct {
	fn    func() error
	reply chan error
}

// Session runs one rider along one path. All state is owned by the goroutine
// executing Run; other goroutines interact through commands.
type Session struct {
	id           string
	cfg          Config
	path         *route.Path
	intermediate []int
	src          motion.Source
	obs          Observer
	metrics      *mmetrics.Collector

	driver  motion.Driver
	tracker *stations.Tracker
	engine  *alerts.Engine
	history alerts.History
	speed   *speed.Controller

	reqs     chan request
	done     chan struct{}
	stopOnce sync.Once
	finished bool
}

func NewSession(id string, cfg Config, p *route.Path, intermediate []int, src motion.Source, obs Observer, metrics *mmetrics.Collector) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Session{
		id:           id,
		cfg:          cfg,
		path:         p,
		intermediate: intermediate,
		src:          src,
		obs:          obs,
		metrics:      metrics,
		tracker:      stations.NewTracker(),
		engine:       alerts.NewEngine(cfg.Alerts),
		reqs:         make(chan request),
		done:         make(chan struct{}),
	}
	switch cfg.Mode {
	case ModeSimulate:
		s.speed = speed.NewController(cfg.Speed, nil)
		if cfg.Multiplier > 0 {
			if err := s.speed.SetMultiplier(cfg.Multiplier); err != nil {
				return nil, err
			}
		}
		s.driver = motion.NewSimulatedDriver(p, s.speed, s.tracker)
	case ModeCalibrate:
		s.driver = motion.NewCalibrationDriver(p, cfg.Calibration, s.tracker)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// SpeedController exposes the simulated-speed controller, nil in calibrate
// mode. It must only be touched before Run or through Do.
func (s *Session) SpeedController() *speed.Controller { return s.speed }

// Run processes ticks and commands until ctx is cancelled or Stop is called.
// The tick source is stopped on every return path.
func (s *Session) Run(ctx context.Context) error {
	defer s.src.Stop()
	log.Printf("session %s running (%s, %d points, %.0f m)", s.id, s.cfg.Mode, s.path.Len(), s.path.Total())
	ticks := s.src.Ticks()
	for {
		select {
		case <-ctx.Done():
			log.Printf("session %s stopped: %v", s.id, ctx.Err())
			return ctx.Err()
		case <-s.done:
			log.Printf("session %s stopped", s.id)
			return nil
		case r := <-s.reqs:
			r.reply <- r.fn()
		case t := <-ticks:
			s.tick(t)
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Do runs fn inside the session loop and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	r := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Start(ctx context.Context) error {
	return s.Do(ctx, func() error {
		if err := s.driver.Start(); err != nil {
			return err
		}
		if s.speed != nil {
			s.speed.Start(s.cfg.Clock())
		}
		log.Printf("session %s started", s.id)
		return nil
	})
}

func (s *Session) Pause(ctx context.Context) error {
	return s.Do(ctx, func() error {
		if err := s.driver.Pause(); err != nil {
			return err
		}
		if s.speed != nil {
			s.speed.Stop()
		}
		return nil
	})
}

func (s *Session) Resume(ctx context.Context) error {
	return s.Do(ctx, func() error {
		if err := s.driver.Resume(); err != nil {
			return err
		}
		if s.speed != nil {
			s.speed.Start(s.cfg.Clock())
		}
		return nil
	})
}

// Reset returns the session to Idle at the path start, clearing crossings,
// alert history and debounce state.
func (s *Session) Reset(ctx context.Context) error {
	return s.Do(ctx, func() error {
		u, ok := s.driver.Reset()
		s.engine.Reset()
		s.history.Reset()
		s.finished = false
		if s.speed != nil {
			s.speed.Reset()
		}
		if ok && s.obs != nil {
			s.obs.OnFrame(s.frame(u, nil))
		}
		return nil
	})
}

// SetSpeed pins the simulated base speed in km/h.
func (s *Session) SetSpeed(ctx context.Context, kmh float64) error {
	return s.Do(ctx, func() error {
		if s.speed == nil {
			return fmt.Errorf("%w: speed is observed in %s mode", ErrCommand, s.cfg.Mode)
		}
		s.speed.Set(kmh)
		return nil
	})
}

func (s *Session) SetMultiplier(ctx context.Context, m float64) error {
	return s.Do(ctx, func() error {
		if s.speed == nil {
			return fmt.Errorf("%w: multiplier is fixed in %s mode", ErrCommand, s.cfg.Mode)
		}
		if err := s.speed.SetMultiplier(m); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.SpeedMultiplier.Set(m)
		}
		return nil
	})
}

// Apply dispatches a named command from an external controller.
func (s *Session) Apply(ctx context.Context, command string, value float64) error {
	switch command {
	case "start":
		return s.Start(ctx)
	case "pause":
		return s.Pause(ctx)
	case "resume":
		return s.Resume(ctx)
	case "reset":
		return s.Reset(ctx)
	case "speed":
		return s.SetSpeed(ctx, value)
	case "multiplier":
		return s.SetMultiplier(ctx, value)
	default:
		return fmt.Errorf("%w: %q", ErrCommand, command)
	}
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.Do(ctx, func() error {
		st := s.driver.State()
		snap = Snapshot{
			Status:   st.Status,
			Distance: st.Distance,
			Index:    st.Segment,
			SpeedKmh: st.SpeedKmh,
			Crossed:  s.tracker.Crossed(),
			Alerts:   s.history.All(),
		}
		return nil
	})
	return snap, err
}

func (s *Session) tick(t motion.Tick) {
	start := time.Now()
	if s.speed != nil {
		s.speed.Update(t.At)
	}
	if s.metrics != nil && s.cfg.Mode == ModeCalibrate {
		if t.Err != nil {
			s.metrics.FixErrors.Inc()
		} else {
			s.metrics.Fixes.Inc()
		}
	}
	u, ok, err := s.driver.Handle(t)
	if err != nil {
		log.Printf("session %s: %v", s.id, err)
		if s.obs != nil {
			s.obs.OnError(s.id, err)
		}
		return
	}
	if !ok {
		return
	}

	in := alerts.Input{Position: u.Position, Index: u.Index, Speed: u.SpeedKmh, Multiplier: 1}
	if s.speed != nil {
		in.Speed = s.speed.Speed()
		in.Multiplier = s.speed.Multiplier()
	}
	batch := s.engine.Evaluate(u.At, in, s.path)
	s.history.Prepend(batch)

	for _, id := range u.Crossed {
		log.Printf("session %s reached station %d", s.id, id)
	}
	if u.Finished && !s.finished {
		s.finished = true
		log.Printf("session %s finished at %s (%.0f m)", s.id, u.At.Format(time.RFC3339), u.Distance)
		if s.metrics != nil {
			s.metrics.SessionsFinished.Inc()
		}
	}

	f := s.frame(u, batch)
	f.SpeedKmh = in.Effective()
	f.Band = alerts.SpeedBand(f.SpeedKmh, f.SpeedLimit)
	if s.obs != nil {
		s.obs.OnFrame(f)
	}
	if s.metrics != nil {
		s.metrics.Ticks.Inc()
		s.metrics.Crossings.Add(float64(len(u.Crossed)))
		for _, a := range batch {
			s.metrics.Alerts.WithLabelValues(string(a.Category), string(a.Kind)).Inc()
		}
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Session) frame(u motion.Update, batch []alerts.Alert) Frame {
	f := Frame{
		Session:    s.id,
		Mode:       s.cfg.Mode,
		Update:     u,
		Alerts:     batch,
		Neighbours: s.path.Surrounding(u.Index, s.intermediate),
	}
	if u.Index >= 0 && u.Index < s.path.Len() {
		f.SpeedLimit = s.path.Point(u.Index).Speed.Max
	}
	f.Band = alerts.BandNormal
	return f
}
