package motion

import (
	"time"

	"metro-simulator/internal/route"
)

// Advance moves st along p for the tick at the given time at speedKmh. The
// first tick after start or resume has a zero delta. It reports false when
// nothing moved: the path is degenerate, the state is not running, or the end
// was already reached on an earlier tick.
func Advance(st *State, p *route.Path, at time.Time, speedKmh float64) (Update, bool) {
	if p.Degenerate() || st.Status != Running || st.Finished {
		return Update{}, false
	}
	dt := 0.0
	if !st.LastTick.IsZero() {
		dt = at.Sub(st.LastTick).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	st.LastTick = at
	if speedKmh < 0 {
		speedKmh = 0
	}
	st.SpeedKmh = speedKmh
	st.Distance += speedKmh / 3.6 * dt

	total := p.Total()
	if st.Distance >= total {
		st.Distance = total
		st.Finished = true
	}
	loc := p.Locate(st.Distance)
	if st.Finished {
		loc = route.Location{Segment: p.Len() - 2, Fraction: 1}
	}
	st.Segment = loc.Segment

	u := Update{
		At:       at,
		Position: p.PositionAt(loc),
		Index:    loc.Segment,
		Fraction: loc.Fraction,
		Heading:  p.SegmentHeading(loc.Segment),
		SpeedKmh: speedKmh,
		Distance: st.Distance,
		Finished: st.Finished,
	}
	if total > 0 {
		u.Progress = st.Distance / total
	} else {
		u.Progress = 1
	}
	return u, true
}
