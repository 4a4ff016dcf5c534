package route

import (
	"math"

	"metro-simulator/internal/geo"
)

// Path is an immutable traversal of a line between two stations. Segment and
// cumulative distances are computed once at construction.
type Path struct {
	points []PathPoint
	seg    []float64 // seg[i] = distance(points[i], points[i+1])
	cum    []float64 // cum[i] = distance from points[0] to points[i]
	total  float64
}

// Location is a position along a path expressed as a segment and the fraction
// travelled within it.
type Location struct {
	Segment  int
	Fraction float64
}

// NewPath copies pts and precomputes its distance index.
func NewPath(pts []PathPoint) *Path {
	p := &Path{points: append([]PathPoint(nil), pts...)}
	n := len(p.points)
	if n == 0 {
		return p
	}
	p.cum = make([]float64, n)
	if n > 1 {
		p.seg = make([]float64, n-1)
	}
	for i := 1; i < n; i++ {
		d := geo.Distance(p.points[i-1].Position, p.points[i].Position)
		p.seg[i-1] = d
		p.total += d
		p.cum[i] = p.total
	}
	return p
}

// BuildPath slices the master polyline between the markers of two stations so
// that the result always runs from start to end. It returns an empty path when
// either station has no marker.
func BuildPath(master []PathPoint, startID, endID int) *Path {
	si := stationIndex(master, startID)
	ei := stationIndex(master, endID)
	if si < 0 || ei < 0 {
		return NewPath(nil)
	}
	if si >= ei {
		pts := append([]PathPoint(nil), master[ei:si+1]...)
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
		return NewPath(pts)
	}
	return NewPath(master[si : ei+1])
}

func stationIndex(pts []PathPoint, id int) int {
	for i, p := range pts {
		if sid, ok := p.Station(); ok && sid == id {
			return i
		}
	}
	return -1
}

func (p *Path) Len() int { return len(p.points) }

// Degenerate reports whether the path is too short to move along.
func (p *Path) Degenerate() bool { return len(p.points) < 2 }

func (p *Path) Point(i int) PathPoint { return p.points[i] }

func (p *Path) Points() []PathPoint { return append([]PathPoint(nil), p.points...) }

func (p *Path) First() PathPoint { return p.points[0] }

func (p *Path) Last() PathPoint { return p.points[len(p.points)-1] }

func (p *Path) SegmentDistances() []float64 { return append([]float64(nil), p.seg...) }

func (p *Path) Total() float64 { return p.total }

// DistanceAt returns the distance along the path at the start of point i.
func (p *Path) DistanceAt(i int) float64 { return p.cum[i] }

// Locate finds the segment containing distance. Distances past the end are
// clamped to the final point.
func (p *Path) Locate(distance float64) Location {
	n := len(p.points)
	if n < 2 || distance <= 0 {
		return Location{}
	}
	if distance >= p.total {
		return Location{Segment: n - 2, Fraction: 1}
	}
	so := 0.0
	i := 0
	for i < len(p.seg) && so+p.seg[i] < distance {
		so += p.seg[i]
		i++
	}
	if i > n-2 {
		return Location{Segment: n - 2, Fraction: 1}
	}
	if p.seg[i] == 0 {
		return Location{Segment: i}
	}
	return Location{Segment: i, Fraction: (distance - so) / p.seg[i]}
}

// PositionAt interpolates the coordinate of a location.
func (p *Path) PositionAt(loc Location) geo.Point {
	if len(p.points) == 0 {
		return geo.Point{}
	}
	if len(p.points) == 1 {
		return p.points[0].Position
	}
	return geo.Interpolate(p.points[loc.Segment].Position, p.points[loc.Segment+1].Position, loc.Fraction)
}

// SegmentHeading is the heading of segment i, or 0 when out of range.
func (p *Path) SegmentHeading(i int) float64 {
	if i < 0 || i+1 >= len(p.points) {
		return 0
	}
	return geo.Heading(p.points[i].Position, p.points[i+1].Position)
}

// NearestIndex returns the index of the point closest to pos, or -1 for an
// empty path.
func (p *Path) NearestIndex(pos geo.Point) int {
	best := -1
	bestDist := math.Inf(1)
	for i, pt := range p.points {
		d := geo.Distance(pos, pt.Position)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// DistanceToPath returns the shortest distance from pos to any segment.
func (p *Path) DistanceToPath(pos geo.Point) float64 {
	switch len(p.points) {
	case 0:
		return math.Inf(1)
	case 1:
		return geo.Distance(pos, p.points[0].Position)
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(p.points); i++ {
		if d := geo.DistanceToSegment(pos, p.points[i].Position, p.points[i+1].Position); d < best {
			best = d
		}
	}
	return best
}

// NextStationIndex returns the index of the first station strictly after from.
func (p *Path) NextStationIndex(from int) (int, bool) {
	if from < -1 {
		from = -1
	}
	for i := from + 1; i < len(p.points); i++ {
		if p.points[i].IsStation {
			return i, true
		}
	}
	return -1, false
}

// PreviousStationIndex returns the index of the last station at or before from.
func (p *Path) PreviousStationIndex(from int) (int, bool) {
	if from >= len(p.points) {
		from = len(p.points) - 1
	}
	for i := from; i >= 0; i-- {
		if p.points[i].IsStation {
			return i, true
		}
	}
	return -1, false
}

// Neighbours holds the previous and next station ids around a path index.
type Neighbours struct {
	Previous int
	Next     int
}

// Surrounding resolves the stations on either side of idx, considering only
// the given intermediate stations. The route endpoints are used when no
// intermediate station qualifies.
func (p *Path) Surrounding(idx int, intermediate []int) Neighbours {
	var nb Neighbours
	if len(p.points) == 0 {
		return nb
	}
	if sid, ok := p.First().Station(); ok {
		nb.Previous = sid
	}
	if sid, ok := p.Last().Station(); ok {
		nb.Next = sid
	}
	allowed := make(map[int]struct{}, len(intermediate))
	for _, id := range intermediate {
		allowed[id] = struct{}{}
	}
	if idx < 0 {
		idx = 0
	}
	for i := min(idx, len(p.points)-1); i >= 0; i-- {
		if sid, ok := p.points[i].Station(); ok {
			if _, ok := allowed[sid]; ok {
				nb.Previous = sid
				break
			}
		}
	}
	for i := idx + 1; i < len(p.points); i++ {
		if sid, ok := p.points[i].Station(); ok {
			if _, ok := allowed[sid]; ok {
				nb.Next = sid
				break
			}
		}
	}
	return nb
}
