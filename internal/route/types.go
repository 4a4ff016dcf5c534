package route

import (
	"errors"
	"fmt"

	"metro-simulator/internal/geo"
)

// Severity of an operator-authored alert. It uses the same vocabulary as the
// alert engine's categories.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeverityNone    Severity = "none"
)

// SpeedLimit is the legal speed envelope in km/h.
type SpeedLimit struct {
	Min float64 `json:"min" yaml:"min" validate:"gte=0"`
	Max float64 `json:"max" yaml:"max" validate:"gte=0,gtefield=Min"`
}

type PointAlert struct {
	Message  string   `json:"message" yaml:"message" validate:"required"`
	Severity Severity `json:"type" yaml:"type" validate:"oneof=info warning danger"`
}

// PathPoint is one vertex of a line polyline.
type PathPoint struct {
	Position  geo.Point   `json:"position" yaml:",inline"`
	Speed     SpeedLimit  `json:"speed" yaml:"speed"`
	IsStation bool        `json:"isStation" yaml:"isStation"`
	StationID *int        `json:"stationId,omitempty" yaml:"stationId,omitempty"`
	IsFixed   bool        `json:"isFixed" yaml:"isFixed"`
	Alert     *PointAlert `json:"alert,omitempty" yaml:"alert,omitempty" validate:"omitempty"`
}

var (
	ErrInvalidPoint    = errors.New("invalid path point")
	ErrStationNotFound = errors.New("station not found")
)

// Validate checks the point's metadata invariants.
func (p PathPoint) Validate() error {
	if p.Position.Lat < -90 || p.Position.Lat > 90 || p.Position.Lon < -180 || p.Position.Lon > 180 {
		return fmt.Errorf("%w: coordinate out of range (%v, %v)", ErrInvalidPoint, p.Position.Lat, p.Position.Lon)
	}
	if p.IsStation != (p.StationID != nil) {
		return fmt.Errorf("%w: stationId must be set iff isStation", ErrInvalidPoint)
	}
	if p.Alert != nil && (p.Alert.Message == "" || p.Alert.Severity == SeverityNone) {
		return fmt.Errorf("%w: alert needs a message and a severity other than none", ErrInvalidPoint)
	}
	if p.Speed.Max < p.Speed.Min {
		return fmt.Errorf("%w: speed max %v below min %v", ErrInvalidPoint, p.Speed.Max, p.Speed.Min)
	}
	return nil
}

// Station returns the station id and whether the point is a station marker.
func (p PathPoint) Station() (int, bool) {
	if !p.IsStation || p.StationID == nil {
		return 0, false
	}
	return *p.StationID, true
}

type Station struct {
	ID       int         `json:"id" yaml:"id" validate:"gt=0"`
	Name     string      `json:"name" yaml:"name" validate:"required"`
	Position geo.Point   `json:"position" yaml:",inline"`
	Speed    *SpeedLimit `json:"speeds,omitempty" yaml:"speeds,omitempty"`
}

// Line is a metro line with its ordered stations and master polyline.
type Line struct {
	ID       int         `json:"id" yaml:"id" validate:"gt=0"`
	Name     string      `json:"name" yaml:"name" validate:"required"`
	Color    string      `json:"color" yaml:"color"`
	Stations []Station   `json:"stations" yaml:"stations" validate:"dive"`
	Polyline []PathPoint `json:"polyline" yaml:"polyline" validate:"dive"`
}

func (l *Line) Station(id int) (Station, bool) {
	for _, s := range l.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}

// BuildPath returns the path between two stations of the line. Unlike the
// package-level BuildPath it reports unknown stations as errors.
func (l *Line) BuildPath(startID, endID int) (*Path, error) {
	if _, ok := l.Station(startID); !ok {
		return nil, fmt.Errorf("line %d start %d: %w", l.ID, startID, ErrStationNotFound)
	}
	if _, ok := l.Station(endID); !ok {
		return nil, fmt.Errorf("line %d end %d: %w", l.ID, endID, ErrStationNotFound)
	}
	p := BuildPath(l.Polyline, startID, endID)
	if p.Len() == 0 {
		return nil, fmt.Errorf("line %d polyline has no markers for %d..%d: %w", l.ID, startID, endID, ErrStationNotFound)
	}
	return p, nil
}

// IntermediateStations returns the ids of the stations strictly between start
// and end, in travel order.
func (l *Line) IntermediateStations(startID, endID int) []int {
	si, ei := -1, -1
	for i, s := range l.Stations {
		if s.ID == startID {
			si = i
		}
		if s.ID == endID {
			ei = i
		}
	}
	if si < 0 || ei < 0 {
		return nil
	}
	var ids []int
	if si <= ei {
		for i := si + 1; i < ei; i++ {
			ids = append(ids, l.Stations[i].ID)
		}
	} else {
		for i := si - 1; i > ei; i-- {
			ids = append(ids, l.Stations[i].ID)
		}
	}
	return ids
}
