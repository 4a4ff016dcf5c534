package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// earthRadius matches the radius orb uses for haversine distances so that
// Distance, Interpolate and Offset agree with each other.
const earthRadius = orb.EarthRadius

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"latitude"`
	Lon float64 `json:"lon" yaml:"longitude"`
}

func (p Point) Orb() orb.Point { return orb.Point{p.Lon, p.Lat} }

func FromOrb(p orb.Point) Point { return Point{Lat: p.Lat(), Lon: p.Lon()} }

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb())
}

// Heading returns the initial bearing from a to b in [0,360).
// Coincident points have heading 0.
func Heading(a, b Point) float64 {
	if a == b {
		return 0
	}
	h := orbgeo.Bearing(a.Orb(), b.Orb())
	if math.IsNaN(h) {
		return 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// AngleDelta returns to-from normalized into (-180,180].
func AngleDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Interpolate returns the point that lies fraction f of the way from a to b
// along the great circle. f is clamped to [0,1].
func Interpolate(a, b Point, f float64) Point {
	if f <= 0 || a == b {
		return a
	}
	if f >= 1 {
		return b
	}
	lat1, lon1 := toRad(a.Lat), toRad(a.Lon)
	lat2, lon2 := toRad(b.Lat), toRad(b.Lon)

	// angular distance
	d := Distance(a, b) / earthRadius
	if d == 0 {
		return a
	}
	sinD := math.Sin(d)
	if sinD == 0 {
		// antipodal or numerically flat: fall back to linear
		return Point{Lat: a.Lat + (b.Lat-a.Lat)*f, Lon: a.Lon + (b.Lon-a.Lon)*f}
	}
	ka := math.Sin((1-f)*d) / sinD
	kb := math.Sin(f*d) / sinD

	x := ka*math.Cos(lat1)*math.Cos(lon1) + kb*math.Cos(lat2)*math.Cos(lon2)
	y := ka*math.Cos(lat1)*math.Sin(lon1) + kb*math.Cos(lat2)*math.Sin(lon2)
	z := ka*math.Sin(lat1) + kb*math.Sin(lat2)

	lat := math.Atan2(z, math.Sqrt(x*x+y*y))
	lon := math.Atan2(y, x)
	return Point{Lat: toDeg(lat), Lon: toDeg(lon)}
}

// DistanceToSegment returns the shortest distance in meters from p to the
// segment [v,w]. The projection is done in an equirectangular plane scaled by
// the cosine of the segment's mean latitude, which is accurate enough for
// city-scale segments.
func DistanceToSegment(p, v, w Point) float64 {
	factor := math.Cos(toRad((v.Lat + w.Lat) / 2))
	if factor == 0 {
		return math.Min(Distance(p, v), Distance(p, w))
	}
	x1, y1 := v.Lon*factor, v.Lat
	x2, y2 := w.Lon*factor, w.Lat
	x0, y0 := p.Lon*factor, p.Lat

	dx := x2 - x1
	dy := y2 - y1
	len2 := dx*dx + dy*dy
	t := 0.0
	if len2 > 0 {
		t = ((x0-x1)*dx + (y0-y1)*dy) / len2
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	proj := Point{Lat: y1 + dy*t, Lon: (x1 + dx*t) / factor}
	return Distance(p, proj)
}

// Offset returns the point reached by travelling distance meters from p on
// the given initial bearing.
func Offset(p Point, bearing, distance float64) Point {
	lat1, lon1 := toRad(p.Lat), toRad(p.Lon)
	brng := toRad(bearing)
	d := distance / earthRadius
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
