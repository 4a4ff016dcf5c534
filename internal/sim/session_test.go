package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/alerts"
	"metro-simulator/internal/motion"
	"metro-simulator/internal/route"
	"metro-simulator/internal/route/routetest"
	"metro-simulator/internal/speed"
)

var t0 = time.Unix(1_700_000_000, 0)

type manualSource struct {
	ch    chan motion.Tick
	mu    sync.Mutex
	stops int
}

func newManualSource() *manualSource { return &manualSource{ch: make(chan motion.Tick, 256)} }

func (m *manualSource) Ticks() <-chan motion.Tick { return m.ch }

func (m *manualSource) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

func (m *manualSource) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type recorder struct {
	mu     sync.Mutex
	frames []Frame
	errs   []error
}

func (r *recorder) OnFrame(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) OnError(_ string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func stationPath() *route.Path {
	pts := routetest.Straight(3, 500, 0, 80)
	routetest.MarkStation(pts, 0, 1)
	routetest.MarkStation(pts, 2, 2)
	return route.NewPath(pts)
}

func testConfig(mode Mode) Config {
	return Config{
		Mode:        mode,
		Alerts:      alerts.DefaultConfig(),
		Calibration: motion.DefaultCalibrationConfig(),
		Speed:       speed.DefaultProfile(),
		Clock:       func() time.Time { return t0 },
	}
}

func run(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestSimulateRunsToEnd(t *testing.T) {
	src := newManualSource()
	rec := &recorder{}
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, rec, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.SetSpeed(ctx, 36))
	require.NoError(t, s.Start(ctx))
	for i := 0; i <= 110; i++ {
		src.ch <- motion.Tick{At: t0.Add(time.Duration(i) * time.Second)}
	}

	require.Eventually(t, func() bool {
		f, ok := rec.last()
		return ok && f.Update.Finished
	}, 2*time.Second, 5*time.Millisecond)

	f, _ := rec.last()
	assert.Equal(t, "s1", f.Session)
	assert.InDelta(t, 36, f.SpeedKmh, 1e-9)
	assert.Equal(t, alerts.BandNormal, f.Band)
	assert.Equal(t, 80.0, f.SpeedLimit)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, motion.Running, snap.Status)
	assert.Equal(t, []int{1, 2}, snap.Crossed)
	assert.InDelta(t, 1000, snap.Distance, 1e-6)
	require.NotEmpty(t, snap.Alerts)
	assert.Equal(t, alerts.KindStation, snap.Alerts[len(snap.Alerts)-1].Kind)
}

func TestSpeedGovernanceUsesMultiplier(t *testing.T) {
	src := newManualSource()
	rec := &recorder{}
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, rec, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.SetSpeed(ctx, 50))
	require.NoError(t, s.SetMultiplier(ctx, 2))
	require.NoError(t, s.Start(ctx))
	src.ch <- motion.Tick{At: t0}

	require.Eventually(t, func() bool { _, ok := rec.last(); return ok }, time.Second, 5*time.Millisecond)
	f, _ := rec.last()
	assert.InDelta(t, 100, f.SpeedKmh, 1e-9)
	assert.Equal(t, alerts.BandCritical, f.Band)
	var kinds []alerts.Kind
	for _, a := range f.Alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, alerts.KindSpeed)
}

func TestInvalidMultiplierRejected(t *testing.T) {
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, newManualSource(), nil, nil)
	require.NoError(t, err)
	run(t, s)
	err = s.SetMultiplier(context.Background(), 0)
	assert.ErrorIs(t, err, speed.ErrInvalidMultiplier)
}

func TestPauseStopsTravel(t *testing.T) {
	src := newManualSource()
	rec := &recorder{}
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, rec, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.SetSpeed(ctx, 36))
	require.NoError(t, s.Start(ctx))
	src.ch <- motion.Tick{At: t0}
	src.ch <- motion.Tick{At: t0.Add(10 * time.Second)}
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(ctx)
		return err == nil && snap.Distance > 99
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Pause(ctx))
	src.ch <- motion.Tick{At: t0.Add(60 * time.Second)}
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, motion.Paused, snap.Status)
	assert.InDelta(t, 100, snap.Distance, 1e-6)

	assert.ErrorIs(t, s.Pause(ctx), motion.ErrInvalidTransition)
	require.NoError(t, s.Resume(ctx))
}

func TestResetReturnsToStart(t *testing.T) {
	src := newManualSource()
	rec := &recorder{}
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, rec, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.SetSpeed(ctx, 36))
	require.NoError(t, s.Start(ctx))
	src.ch <- motion.Tick{At: t0}
	src.ch <- motion.Tick{At: t0.Add(20 * time.Second)}
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(ctx)
		return err == nil && snap.Distance > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Reset(ctx))
	f, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, 0.0, f.Update.Distance)
	assert.Empty(t, f.Alerts)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, motion.Idle, snap.Status)
	assert.Empty(t, snap.Crossed)
	assert.Empty(t, snap.Alerts)

	// reset twice is the same as once
	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Start(ctx))
}

func TestStopIsIdempotentAndStopsSource(t *testing.T) {
	src := newManualSource()
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 1, src.stopCount())
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestRunStopsSourceOnCancel(t *testing.T) {
	src := newManualSource()
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, src, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, src.stopCount())
}

func TestCalibrateFollowsFixes(t *testing.T) {
	p := stationPath()
	feed := motion.NewFeedSource(8, nil)
	rec := &recorder{}
	s, err := NewSession("dev", testConfig(ModeCalibrate), p, nil, feed, rec, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.True(t, feed.Fail(errors.New("gps lost")))
	require.Eventually(t, func() bool { return rec.errCount() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, feed.Push(motion.Fix{Position: p.Point(0).Position, Time: t0}))
	require.True(t, feed.Push(motion.Fix{Position: p.Point(1).Position, Time: t0.Add(50 * time.Second)}))
	require.Eventually(t, func() bool {
		f, ok := rec.last()
		return ok && f.Update.Index == 1
	}, time.Second, 5*time.Millisecond)

	f, _ := rec.last()
	assert.Equal(t, ModeCalibrate, f.Mode)
	assert.InDelta(t, 36, f.SpeedKmh, 0.5)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.Crossed)

	assert.ErrorIs(t, s.SetSpeed(ctx, 10), ErrCommand)
	assert.ErrorIs(t, s.SetMultiplier(ctx, 2), ErrCommand)
}

func TestApplyDispatch(t *testing.T) {
	s, err := NewSession("s1", testConfig(ModeSimulate), stationPath(), nil, newManualSource(), nil, nil)
	require.NoError(t, err)
	run(t, s)

	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, "speed", 40))
	require.NoError(t, s.Apply(ctx, "start", 0))
	require.NoError(t, s.Apply(ctx, "pause", 0))
	require.NoError(t, s.Apply(ctx, "resume", 0))
	require.NoError(t, s.Apply(ctx, "multiplier", 1.5))
	require.NoError(t, s.Apply(ctx, "reset", 0))
	assert.ErrorIs(t, s.Apply(ctx, "warp", 0), ErrCommand)
}

func TestUnknownMode(t *testing.T) {
	_, err := NewSession("s1", Config{Mode: "teleport"}, stationPath(), nil, newManualSource(), nil, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}
	m.OnFrame(Frame{Session: "x"})
	m.OnError("x", errors.New("boom"))
	for _, r := range []*recorder{a, b} {
		f, ok := r.last()
		require.True(t, ok)
		assert.Equal(t, "x", f.Session)
		assert.Equal(t, 1, r.errCount())
	}
}
