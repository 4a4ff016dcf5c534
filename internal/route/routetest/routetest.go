// Package routetest builds synthetic polylines for tests.
package routetest

import (
	"metro-simulator/internal/geo"
	"metro-simulator/internal/route"
)

// Origin is near Rajiv Chowk, Delhi.
var Origin = geo.Point{Lat: 28.6328, Lon: 77.2197}

// Leg describes one step of a synthetic polyline.
type Leg struct {
	Heading  float64
	Distance float64
}

// Polyline starts at origin and appends one point per leg. Every point gets
// the given max speed.
func Polyline(origin geo.Point, maxSpeed float64, legs ...Leg) []route.PathPoint {
	pts := []route.PathPoint{{Position: origin, Speed: route.SpeedLimit{Max: maxSpeed}}}
	cur := origin
	for _, l := range legs {
		cur = geo.Offset(cur, l.Heading, l.Distance)
		pts = append(pts, route.PathPoint{Position: cur, Speed: route.SpeedLimit{Max: maxSpeed}})
	}
	return pts
}

// Straight returns n points spaced evenly on a constant heading.
func Straight(n int, spacing, heading, maxSpeed float64) []route.PathPoint {
	legs := make([]Leg, 0, n-1)
	for i := 1; i < n; i++ {
		legs = append(legs, Leg{Heading: heading, Distance: spacing})
	}
	return Polyline(Origin, maxSpeed, legs...)
}

// MarkStation turns pts[i] into a station marker.
func MarkStation(pts []route.PathPoint, i, id int) {
	sid := id
	pts[i].IsStation = true
	pts[i].StationID = &sid
}

// MarkAlert attaches an operator alert to pts[i].
func MarkAlert(pts []route.PathPoint, i int, msg string, sev route.Severity) {
	pts[i].IsFixed = true
	pts[i].Alert = &route.PointAlert{Message: msg, Severity: sev}
}
