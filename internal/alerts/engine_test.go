package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/geo"
	"metro-simulator/internal/route"
	"metro-simulator/internal/route/routetest"
)

var t0 = time.Unix(1_700_000_000, 0)

func flatPath(maxSpeed float64) *route.Path {
	return route.NewPath(routetest.Straight(4, 2000, 90, maxSpeed))
}

func at(p *route.Path, idx int, speed float64) Input {
	return Input{Position: p.Point(idx).Position, Index: idx, Speed: speed, Multiplier: 1}
}

func TestSpeedThresholds(t *testing.T) {
	p := flatPath(40)

	cases := []struct {
		speed   float64
		want    Category
		message string
	}{
		{65, Danger, "Danger! Exceeding safe speed by 25 km/h."},
		{45, Warning, "Reduce speed: currently 45 km/h, max allowed 40 km/h."},
		{35, "", ""},
	}
	for _, c := range cases {
		e := NewEngine(DefaultConfig())
		got := e.Evaluate(t0, at(p, 0, c.speed), p)
		if c.want == "" {
			assert.Empty(t, got, "speed %v", c.speed)
			continue
		}
		require.Len(t, got, 1, "speed %v", c.speed)
		assert.Equal(t, c.want, got[0].Category)
		assert.Equal(t, KindSpeed, got[0].Kind)
		assert.Equal(t, c.message, got[0].Message)
		assert.Equal(t, t0, got[0].At)
	}
}

func TestSpeedBoundaryPrecedence(t *testing.T) {
	p := flatPath(40)
	e := NewEngine(DefaultConfig())

	// exactly max+20 is not danger
	got := e.Evaluate(t0, at(p, 0, 60), p)
	require.Len(t, got, 1)
	assert.Equal(t, Warning, got[0].Category)

	// danger and warning never fire together
	e = NewEngine(DefaultConfig())
	got = e.Evaluate(t0, at(p, 0, 90), p)
	require.Len(t, got, 1)
	assert.Equal(t, Danger, got[0].Category)

	// while danger is debounced the warning check runs
	got = e.Evaluate(t0.Add(time.Second), at(p, 0, 90), p)
	require.Len(t, got, 1)
	assert.Equal(t, Warning, got[0].Category)
}

func TestSpeedRuleSkipsUnlimitedPoints(t *testing.T) {
	p := flatPath(0)
	e := NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(p, 0, 120), p))
}

func TestEffectiveSpeedUsesMultiplier(t *testing.T) {
	p := flatPath(40)
	e := NewEngine(DefaultConfig())
	in := at(p, 0, 30)
	in.Multiplier = 1.5
	got := e.Evaluate(t0, in, p)
	require.Len(t, got, 1)
	assert.Equal(t, "Reduce speed: currently 45 km/h, max allowed 40 km/h.", got[0].Message)

	assert.Equal(t, 30.0, Input{Speed: 30}.Effective())
}

func TestDebounce(t *testing.T) {
	p := flatPath(40)

	t.Run("within window", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		require.Len(t, e.Evaluate(t0, at(p, 0, 45), p), 1)
		assert.Empty(t, e.Evaluate(t0.Add(5*time.Second), at(p, 0, 45), p))
		assert.Empty(t, e.Evaluate(t0.Add(6*time.Second), at(p, 0, 45), p))
	})

	t.Run("after window", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		require.Len(t, e.Evaluate(t0, at(p, 0, 45), p), 1)
		require.Len(t, e.Evaluate(t0.Add(7*time.Second), at(p, 0, 45), p), 1)
		last, ok := e.State().LastFired(Warning)
		require.True(t, ok)
		assert.Equal(t, t0.Add(7*time.Second), last)
	})

	t.Run("categories are independent", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		require.Len(t, e.Evaluate(t0, at(p, 0, 45), p), 1)
		got := e.Evaluate(t0.Add(time.Second), at(p, 0, 70), p)
		require.Len(t, got, 1)
		assert.Equal(t, Danger, got[0].Category)
	})

	t.Run("last fired is monotonic", func(t *testing.T) {
		s := NewFireState()
		s.mark(Info, t0.Add(time.Minute))
		s.mark(Info, t0)
		last, _ := s.LastFired(Info)
		assert.Equal(t, t0.Add(time.Minute), last)
	})
}

func TestFixedAlertOncePerIndex(t *testing.T) {
	pts := routetest.Straight(4, 2000, 90, 80)
	routetest.MarkAlert(pts, 1, "Track maintenance ahead", route.SeverityWarning)
	p := route.NewPath(pts)
	e := NewEngine(DefaultConfig())

	got := e.Evaluate(t0, at(p, 1, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, KindFixed, got[0].Kind)
	assert.Equal(t, Warning, got[0].Category)
	assert.Equal(t, "Track maintenance ahead", got[0].Message)
	assert.Equal(t, 1, got[0].Index)

	// revisits far outside the debounce window never re-emit
	for i := 1; i <= 5; i++ {
		assert.Empty(t, e.Evaluate(t0.Add(time.Duration(i)*time.Minute), at(p, 1, 10), p))
		assert.Empty(t, e.Evaluate(t0.Add(time.Duration(i)*time.Minute+time.Second), at(p, 2, 10), p))
	}
	assert.True(t, e.State().FixedFired(1))

	e.Reset()
	assert.Len(t, e.Evaluate(t0.Add(time.Hour), at(p, 1, 10), p), 1)
}

func TestFixedAlertBypassesDebounce(t *testing.T) {
	pts := routetest.Straight(4, 2000, 90, 40)
	routetest.MarkAlert(pts, 1, "Platform works", route.SeverityWarning)
	p := route.NewPath(pts)
	e := NewEngine(DefaultConfig())

	require.Len(t, e.Evaluate(t0, at(p, 0, 45), p), 1)
	got := e.Evaluate(t0.Add(time.Second), at(p, 1, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, KindFixed, got[0].Kind)
}

// curvePath runs north for three legs of spacing metres then turns by angle.
func curvePath(spacing, angle float64) *route.Path {
	return route.NewPath(routetest.Polyline(routetest.Origin, 80,
		routetest.Leg{Heading: 0, Distance: spacing},
		routetest.Leg{Heading: 0, Distance: spacing},
		routetest.Leg{Heading: 0, Distance: spacing},
		routetest.Leg{Heading: angle, Distance: spacing},
		routetest.Leg{Heading: angle, Distance: spacing},
		routetest.Leg{Heading: angle, Distance: spacing},
	))
}

func TestCurveAheadMessage(t *testing.T) {
	p := curvePath(100, 35)
	e := NewEngine(DefaultConfig())

	got := e.Evaluate(t0, at(p, 0, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, Info, got[0].Category)
	assert.Equal(t, KindCurve, got[0].Kind)
	assert.Regexp(t, `^Curve ahead: 35° turn in ~(299|300) m\.$`, got[0].Message)

	far := curvePath(200, 35)
	e = NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(far, 0, 10), far))
}

func TestCurveBelowThreshold(t *testing.T) {
	p := curvePath(100, 20)
	e := NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(p, 0, 10), p))

	cfg := DefaultConfig()
	cfg.CurveAngle = 19.5
	e = NewEngine(cfg)
	got := e.Evaluate(t0, at(p, 0, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, KindCurve, got[0].Kind)
}

func TestCurveStopsAtFirstQualifyingPoint(t *testing.T) {
	// first turn is 600 m away, a second sharper turn further along is never
	// considered
	p := route.NewPath(routetest.Polyline(routetest.Origin, 80,
		routetest.Leg{Heading: 0, Distance: 300},
		routetest.Leg{Heading: 0, Distance: 300},
		routetest.Leg{Heading: 40, Distance: 50},
		routetest.Leg{Heading: 120, Distance: 50},
		routetest.Leg{Heading: 120, Distance: 50},
	))
	e := NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(p, 0, 10), p))
}

func TestCurveHeadingWraps(t *testing.T) {
	p := route.NewPath(routetest.Polyline(routetest.Origin, 80,
		routetest.Leg{Heading: 350, Distance: 100},
		routetest.Leg{Heading: 350, Distance: 100},
		routetest.Leg{Heading: 15, Distance: 100},
	))
	e := NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(p, 0, 10), p), "25° across north is below threshold")
}

func TestApproachingStation(t *testing.T) {
	pts := routetest.Straight(4, 300, 90, 80)
	routetest.MarkStation(pts, 0, 1)
	routetest.MarkStation(pts, 3, 2)
	p := route.NewPath(pts)
	e := NewEngine(DefaultConfig())

	// next station is 900 m ahead
	assert.Empty(t, e.Evaluate(t0, at(p, 0, 10), p))

	pos := geo.Interpolate(pts[2].Position, pts[3].Position, 0.5)
	got := e.Evaluate(t0.Add(time.Second), Input{Position: pos, Index: 2, Speed: 10}, p)
	require.Len(t, got, 1)
	assert.Equal(t, KindStation, got[0].Kind)
	assert.Equal(t, "Approaching next station.", got[0].Message)

	// the station at the current index is not "next"
	e = NewEngine(DefaultConfig())
	assert.Empty(t, e.Evaluate(t0, at(p, 3, 10), p))
}

func TestCurveSuppressesStationInSameTick(t *testing.T) {
	pts := routetest.Polyline(routetest.Origin, 80,
		routetest.Leg{Heading: 0, Distance: 100},
		routetest.Leg{Heading: 90, Distance: 100},
		routetest.Leg{Heading: 90, Distance: 100},
	)
	routetest.MarkStation(pts, 2, 5)
	p := route.NewPath(pts)
	e := NewEngine(DefaultConfig())

	got := e.Evaluate(t0, at(p, 0, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, KindCurve, got[0].Kind)

	got = e.Evaluate(t0.Add(7*time.Second), at(p, 0, 10), p)
	require.Len(t, got, 1)
	assert.Equal(t, KindCurve, got[0].Kind)
}

func TestEvaluateOrderAndOutOfRange(t *testing.T) {
	pts := routetest.Polyline(routetest.Origin, 40,
		routetest.Leg{Heading: 0, Distance: 100},
		routetest.Leg{Heading: 90, Distance: 100},
	)
	routetest.MarkAlert(pts, 0, "Mind the gap", route.SeverityInfo)
	p := route.NewPath(pts)
	e := NewEngine(DefaultConfig())

	got := e.Evaluate(t0, at(p, 0, 70), p)
	require.Len(t, got, 2)
	assert.Equal(t, KindFixed, got[0].Kind)
	assert.Equal(t, KindSpeed, got[1].Kind)

	assert.Nil(t, e.Evaluate(t0, Input{Index: 9}, p))
	assert.Nil(t, e.Evaluate(t0, Input{Index: 0}, route.NewPath(nil)))
}

func TestHistoryPrepend(t *testing.T) {
	var h History
	h.Prepend([]Alert{{Message: "a"}, {Message: "b"}})
	h.Prepend(nil)
	h.Prepend([]Alert{{Message: "c"}})

	var msgs []string
	for _, a := range h.All() {
		msgs = append(msgs, a.Message)
	}
	assert.Equal(t, []string{"c", "a", "b"}, msgs)
	h.Reset()
	assert.Equal(t, 0, h.Len())
}

func TestSpeedBand(t *testing.T) {
	assert.Equal(t, BandNormal, SpeedBand(44, 40))
	assert.Equal(t, BandElevated, SpeedBand(45, 40))
	assert.Equal(t, BandCritical, SpeedBand(49, 40))
	assert.Equal(t, BandNormal, SpeedBand(100, 0))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, Info, CategoryOf(route.SeverityInfo))
	assert.Equal(t, Danger, CategoryOf(route.SeverityDanger))
	assert.Equal(t, None, CategoryOf("bogus"))
}
