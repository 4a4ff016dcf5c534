package motion

import (
	"fmt"
	"time"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/route"
	"metro-simulator/internal/stations"
)

// Fix is one reading from a live-position sensor.
type Fix struct {
	Position geo.Point
	Time     time.Time // device timestamp
	Accuracy float64   // meters, 0 if unknown
}

// Tick is a single event from a Source: a frame (At only), a sensor fix or a
// sensor error.
type Tick struct {
	At  time.Time
	Fix *Fix
	Err error
}

// SpeedSource supplies the effective simulated speed in km/h.
type SpeedSource interface {
	SpeedKmh() float64
}

// Driver advances a rider along a path from ticks.
type Driver interface {
	Start() error
	Pause() error
	Resume() error
	// Reset returns to Idle. The update places the rider at the path start;
	// ok is false for a degenerate path.
	Reset() (u Update, ok bool)
	// Handle applies one tick. ok is false when there is nothing to publish.
	Handle(t Tick) (u Update, ok bool, err error)
	State() State
	Path() *route.Path
}

func resetUpdate(p *route.Path) (Update, bool) {
	if p.Degenerate() {
		return Update{}, false
	}
	return Update{
		Position: p.First().Position,
		Heading:  p.SegmentHeading(0),
	}, true
}

// SimulatedDriver moves along the path at the speed reported by a
// SpeedSource, one frame at a time.
type SimulatedDriver struct {
	path    *route.Path
	speed   SpeedSource
	tracker *stations.Tracker
	state   State
	// next is the first path index not yet checked for a station marker.
	next int
}

var _ Driver = (*SimulatedDriver)(nil)

func NewSimulatedDriver(p *route.Path, speed SpeedSource, tracker *stations.Tracker) *SimulatedDriver {
	if tracker == nil {
		tracker = stations.NewTracker()
	}
	return &SimulatedDriver{path: p, speed: speed, tracker: tracker}
}

func (d *SimulatedDriver) Start() error  { return d.state.Start() }
func (d *SimulatedDriver) Pause() error  { return d.state.Pause() }
func (d *SimulatedDriver) Resume() error { return d.state.Resume() }
func (d *SimulatedDriver) State() State  { return d.state }

func (d *SimulatedDriver) Path() *route.Path { return d.path }

func (d *SimulatedDriver) Reset() (Update, bool) {
	d.state.Reset()
	d.tracker.Reset()
	d.next = 0
	return resetUpdate(d.path)
}

func (d *SimulatedDriver) Handle(t Tick) (Update, bool, error) {
	if t.Err != nil {
		return Update{}, false, t.Err
	}
	u, ok := d.Step(t.At)
	return u, ok, nil
}

// Step advances one frame at time at. Every station marker passed since the
// previous frame is recorded in path order, however long the frame was.
func (d *SimulatedDriver) Step(at time.Time) (Update, bool) {
	kmh := 0.0
	if d.speed != nil {
		kmh = d.speed.SpeedKmh()
	}
	u, ok := Advance(&d.state, d.path, at, kmh)
	if !ok {
		return u, false
	}
	last := u.Index
	if u.Finished {
		last = d.path.Len() - 1
	}
	for ; d.next <= last; d.next++ {
		d.cross(&u, d.path.Point(d.next))
	}
	return u, true
}

func (d *SimulatedDriver) cross(u *Update, pt route.PathPoint) {
	if sid, ok := pt.Station(); ok && d.tracker.RecordCrossing(sid) {
		u.Crossed = append(u.Crossed, sid)
	}
}

// CalibrationConfig tunes the live-sensor driver.
type CalibrationConfig struct {
	// StationProximity is the distance in meters under which the rider is
	// considered to have reached a station.
	StationProximity float64
	// MaxOffRoute rejects fixes farther than this from the path until one
	// lands inside the corridor. Zero disables the check.
	MaxOffRoute float64
}

func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{StationProximity: 50, MaxOffRoute: 30000}
}

// CalibrationDriver follows a live-position feed and snaps it to the nearest
// path point.
type CalibrationDriver struct {
	path    *route.Path
	cfg     CalibrationConfig
	tracker *stations.Tracker
	state   State

	last    *Fix
	onRoute bool
}

var _ Driver = (*CalibrationDriver)(nil)

func NewCalibrationDriver(p *route.Path, cfg CalibrationConfig, tracker *stations.Tracker) *CalibrationDriver {
	if tracker == nil {
		tracker = stations.NewTracker()
	}
	return &CalibrationDriver{path: p, cfg: cfg, tracker: tracker}
}

func (d *CalibrationDriver) Start() error  { return d.state.Start() }
func (d *CalibrationDriver) Pause() error  { return d.state.Pause() }
func (d *CalibrationDriver) Resume() error { return d.state.Resume() }
func (d *CalibrationDriver) State() State  { return d.state }

func (d *CalibrationDriver) Path() *route.Path { return d.path }

func (d *CalibrationDriver) Reset() (Update, bool) {
	d.state.Reset()
	d.tracker.Reset()
	d.last = nil
	d.onRoute = false
	return resetUpdate(d.path)
}

func (d *CalibrationDriver) Handle(t Tick) (Update, bool, error) {
	if t.Err != nil {
		return Update{}, false, fmt.Errorf("live position: %w", t.Err)
	}
	if t.Fix == nil {
		return Update{}, false, nil
	}
	return d.Fix(*t.Fix)
}

// Fix applies one sensor reading.
func (d *CalibrationDriver) Fix(f Fix) (Update, bool, error) {
	p := d.path
	if p.Degenerate() || d.state.Status != Running {
		return Update{}, false, nil
	}
	if !d.onRoute && d.cfg.MaxOffRoute > 0 {
		if off := p.DistanceToPath(f.Position); off > d.cfg.MaxOffRoute {
			return Update{}, false, fmt.Errorf("%w: %.0f m (max %.0f m)", ErrOffRoute, off, d.cfg.MaxOffRoute)
		}
	}
	d.onRoute = true

	heading := -1.0
	if d.last != nil {
		moved := geo.Distance(d.last.Position, f.Position)
		if dt := f.Time.Sub(d.last.Time).Seconds(); dt > 0 {
			d.state.SpeedKmh = moved / dt * 3.6
		}
		if moved > 0 {
			heading = geo.Heading(d.last.Position, f.Position)
		}
	}
	last := f
	d.last = &last

	idx := p.NearestIndex(f.Position)
	seg := min(idx, p.Len()-2)
	if heading < 0 {
		heading = p.SegmentHeading(seg)
	}
	d.state.Segment = seg
	d.state.Distance = p.DistanceAt(idx)
	d.state.LastTick = f.Time

	u := Update{
		At:       f.Time,
		Position: f.Position,
		Index:    idx,
		Heading:  heading,
		SpeedKmh: d.state.SpeedKmh,
		Distance: d.state.Distance,
	}
	if p.Total() > 0 {
		u.Progress = d.state.Distance / p.Total()
	}

	pt := p.Point(idx)
	if sid, ok := pt.Station(); ok && !d.tracker.Has(sid) {
		if geo.Distance(f.Position, pt.Position) < d.cfg.StationProximity {
			d.tracker.RecordCrossing(sid)
			u.Crossed = append(u.Crossed, sid)
		}
	}
	return u, true, nil
}
