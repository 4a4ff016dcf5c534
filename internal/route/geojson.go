package route

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON renders the path as a feature collection: one LineString for the
// track plus a Point feature per station marker and per custom alert.
func (p *Path) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(p.points) == 0 {
		return fc
	}
	ls := make(orb.LineString, 0, len(p.points))
	for _, pt := range p.points {
		ls = append(ls, pt.Position.Orb())
	}
	track := geojson.NewFeature(ls)
	track.Properties["kind"] = "track"
	track.Properties["length_m"] = p.total
	fc.Append(track)

	for i, pt := range p.points {
		if sid, ok := pt.Station(); ok {
			f := geojson.NewFeature(pt.Position.Orb())
			f.Properties["kind"] = "station"
			f.Properties["index"] = i
			f.Properties["station_id"] = sid
			fc.Append(f)
		}
		if pt.Alert != nil {
			f := geojson.NewFeature(pt.Position.Orb())
			f.Properties["kind"] = "alert"
			f.Properties["index"] = i
			f.Properties["message"] = pt.Alert.Message
			f.Properties["severity"] = string(pt.Alert.Severity)
			fc.Append(f)
		}
	}
	return fc
}
