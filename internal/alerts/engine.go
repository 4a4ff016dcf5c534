package alerts

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/route"
)

type Config struct {
	Debounce        time.Duration
	Lookahead       int     // points inspected for curves
	CurveAngle      float64 // degrees
	CurveDistance   float64 // meters
	StationDistance float64 // meters
	DangerMargin    float64 // km/h above the limit
}

func DefaultConfig() Config {
	return Config{
		Debounce:        6 * time.Second,
		Lookahead:       5,
		CurveAngle:      30,
		CurveDistance:   500,
		StationDistance: 500,
		DangerMargin:    20,
	}
}

// FireState records when each category last fired and which fixed alerts
// have already been shown.
type FireState struct {
	last  map[Category]time.Time
	fixed map[int]struct{}
}

func NewFireState() *FireState {
	return &FireState{last: make(map[Category]time.Time), fixed: make(map[int]struct{})}
}

// Ready reports whether category c may fire at now given the window.
func (s *FireState) Ready(c Category, now time.Time, window time.Duration) bool {
	last, ok := s.last[c]
	return !ok || now.Sub(last) > window
}

// LastFired returns the last emission time of c.
func (s *FireState) LastFired(c Category) (time.Time, bool) {
	t, ok := s.last[c]
	return t, ok
}

func (s *FireState) mark(c Category, now time.Time) {
	if c == None {
		return
	}
	// monotonic
	if last, ok := s.last[c]; ok && !now.After(last) {
		return
	}
	s.last[c] = now
}

func (s *FireState) FixedFired(idx int) bool {
	_, ok := s.fixed[idx]
	return ok
}

func (s *FireState) Reset() {
	clear(s.last)
	clear(s.fixed)
}

// Input is what the engine needs from one motion update.
type Input struct {
	Position   geo.Point
	Index      int
	Speed      float64 // km/h
	Multiplier float64 // 0 means 1
}

// Effective is the speed used for speed governance.
func (in Input) Effective() float64 {
	m := in.Multiplier
	if m == 0 {
		m = 1
	}
	return in.Speed * m
}

// Engine evaluates alert rules for motion updates. It is owned by a single
// session and is not safe for concurrent use.
type Engine struct {
	cfg   Config
	state *FireState
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, state: NewFireState()}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) State() *FireState { return e.state }

func (e *Engine) Reset() { e.state.Reset() }

// Evaluate runs the rules in order: fixed alert, upcoming curve, approaching
// station, speed. It returns the alerts emitted at now, possibly none.
func (e *Engine) Evaluate(now time.Time, in Input, p *route.Path) []Alert {
	if p == nil || p.Len() == 0 || in.Index < 0 || in.Index >= p.Len() {
		return nil
	}
	var out []Alert
	emit := func(a Alert) {
		a.At = now
		a.Index = in.Index
		out = append(out, a)
		e.state.mark(a.Category, now)
	}

	if a, ok := e.fixed(in, p); ok {
		e.state.fixed[in.Index] = struct{}{}
		emit(a)
	}
	if a, ok := e.curve(now, in, p); ok {
		emit(a)
	}
	if a, ok := e.station(now, in, p); ok {
		emit(a)
	}
	if a, ok := e.speed(now, in, p); ok {
		emit(a)
	}
	return out
}

func (e *Engine) fixed(in Input, p *route.Path) (Alert, bool) {
	pt := p.Point(in.Index)
	if pt.Alert == nil || e.state.FixedFired(in.Index) {
		return Alert{}, false
	}
	return Alert{Category: CategoryOf(pt.Alert.Severity), Kind: KindFixed, Message: pt.Alert.Message}, true
}

// curve reports the nearest sharp heading change within the lookahead. Only
// the first qualifying point is considered, even when it is too far away.
func (e *Engine) curve(now time.Time, in Input, p *route.Path) (Alert, bool) {
	maxIdx := p.Len() - 1
	if in.Index+1 > maxIdx {
		return Alert{}, false
	}
	look := min(e.cfg.Lookahead, maxIdx-in.Index-1)
	h0 := p.SegmentHeading(in.Index)
	for j := 1; j <= look; j++ {
		delta := geo.AngleDelta(h0, p.SegmentHeading(in.Index+j))
		if math.Abs(delta) < e.cfg.CurveAngle {
			continue
		}
		turn := p.Point(in.Index + j).Position
		dist := geo.Distance(in.Position, turn)
		if dist < e.cfg.CurveDistance && e.state.Ready(Info, now, e.cfg.Debounce) {
			return Alert{
				Category: Info,
				Kind:     KindCurve,
				Message:  fmt.Sprintf("Curve ahead: %.0f° turn in ~%d m.", math.Abs(delta), int(math.Floor(dist))),
			}, true
		}
		break
	}
	return Alert{}, false
}

func (e *Engine) station(now time.Time, in Input, p *route.Path) (Alert, bool) {
	i, ok := p.NextStationIndex(in.Index)
	if !ok {
		return Alert{}, false
	}
	dist := geo.Distance(in.Position, p.Point(i).Position)
	if dist < e.cfg.StationDistance && e.state.Ready(Info, now, e.cfg.Debounce) {
		return Alert{Category: Info, Kind: KindStation, Message: "Approaching next station."}, true
	}
	return Alert{}, false
}

// speed raises at most one of danger or warning. Danger takes precedence; a
// debounced danger lets the warning check run. Points with no positive max
// speed have no limit and are skipped.
func (e *Engine) speed(now time.Time, in Input, p *route.Path) (Alert, bool) {
	limit := p.Point(in.Index).Speed.Max
	if limit <= 0 {
		return Alert{}, false
	}
	eff := in.Effective()
	switch {
	case eff > limit+e.cfg.DangerMargin && e.state.Ready(Danger, now, e.cfg.Debounce):
		return Alert{
			Category: Danger,
			Kind:     KindSpeed,
			Message:  fmt.Sprintf("Danger! Exceeding safe speed by %d km/h.", int(math.Floor(eff-limit))),
		}, true
	case eff > limit && e.state.Ready(Warning, now, e.cfg.Debounce):
		return Alert{
			Category: Warning,
			Kind:     KindSpeed,
			Message: fmt.Sprintf("Reduce speed: currently %d km/h, max allowed %s km/h.",
				int(math.Floor(eff)), strconv.FormatFloat(limit, 'f', -1, 64)),
		}, true
	}
	return Alert{}, false
}
