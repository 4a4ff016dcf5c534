package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"metro-simulator/internal/motion"
	"metro-simulator/internal/sim"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatGTFSRT Format = "gtfsrt"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatGTFSRT:
		return f, nil
	default:
		return "", fmt.Errorf("unknown publish format %q", s)
	}
}

var (
	ErrMalformedFix = errors.New("malformed location fix")
	ErrSensor       = errors.New("location sensor error")
)

type PositionMessage struct {
	SessionID   string    `json:"sessionId"`
	Mode        string    `json:"mode"`
	Timestamp   time.Time `json:"timestamp"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Bearing     float64   `json:"bearing"`
	Progress    float64   `json:"progress"`
	SpeedKmh    float64   `json:"speedKmh"`
	SpeedLimit  float64   `json:"speedLimit"`
	Band        string    `json:"band"`
	Index       int       `json:"index"`
	DistanceM   float64   `json:"distanceM"`
	Finished    bool      `json:"finished"`
	PrevStation int       `json:"prevStation,omitempty"`
	NextStation int       `json:"nextStation,omitempty"`
}

func NewPositionMessage(f sim.Frame) PositionMessage {
	u := f.Update
	return PositionMessage{
		SessionID:   f.Session,
		Mode:        string(f.Mode),
		Timestamp:   u.At,
		Lat:         u.Position.Lat,
		Lon:         u.Position.Lon,
		Bearing:     u.Heading,
		Progress:    u.Progress,
		SpeedKmh:    f.SpeedKmh,
		SpeedLimit:  f.SpeedLimit,
		Band:        string(f.Band),
		Index:       u.Index,
		DistanceM:   u.Distance,
		Finished:    u.Finished,
		PrevStation: f.Neighbours.Previous,
		NextStation: f.Neighbours.Next,
	}
}

type AlertMessage struct {
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"`
}

func alertMessages(f sim.Frame) []AlertMessage {
	out := make([]AlertMessage, 0, len(f.Alerts))
	for _, a := range f.Alerts {
		out = append(out, AlertMessage{
			SessionID: f.Session,
			Type:      string(a.Category),
			Kind:      string(a.Kind),
			Message:   a.Message,
			Timestamp: a.At,
			Index:     a.Index,
		})
	}
	return out
}

type CrossingMessage struct {
	SessionID string    `json:"sessionId"`
	StationID int       `json:"stationId"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	SessionID string    `json:"sessionId"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// FixMessage is one reading from a rider's device. A non-empty Error reports
// a sensor failure instead of a position.
type FixMessage struct {
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// DecodeFix parses a fix payload. A zero timestamp is replaced by now.
func DecodeFix(data []byte, now time.Time) (motion.Fix, error) {
	var m FixMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return motion.Fix{}, fmt.Errorf("%w: %v", ErrMalformedFix, err)
	}
	if m.Error != "" {
		return motion.Fix{}, fmt.Errorf("%w: %s", ErrSensor, m.Error)
	}
	if m.Lat == nil || m.Lon == nil {
		return motion.Fix{}, fmt.Errorf("%w: lat and lon are required", ErrMalformedFix)
	}
	f := motion.Fix{Time: m.Timestamp, Accuracy: m.Accuracy}
	f.Position.Lat, f.Position.Lon = *m.Lat, *m.Lon
	if f.Time.IsZero() {
		f.Time = now
	}
	return f, nil
}

type ControlMessage struct {
	Command    string  `json:"command"`
	Speed      float64 `json:"speed,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

// Value is the numeric argument relevant to the command.
func (m ControlMessage) Value() float64 {
	switch m.Command {
	case "speed":
		return m.Speed
	case "multiplier":
		return m.Multiplier
	}
	return 0
}

type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
