package motion

import (
	"errors"
	"fmt"
	"time"

	"metro-simulator/internal/geo"
)

type Status int

const (
	Idle Status = iota
	Running
	Paused
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid motion transition")
	ErrOffRoute          = errors.New("position too far from path")
)

// State is the mutable progress of one run along a path.
type State struct {
	Status   Status
	Distance float64 // meters from the path start
	Segment  int
	SpeedKmh float64
	LastTick time.Time
	Finished bool
}

func (s *State) transition(from, to Status) error {
	if s.Status != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, s.Status)
	}
	s.Status = to
	return nil
}

func (s *State) Start() error { return s.transition(Idle, Running) }

// Pause freezes progress. The next tick after Resume has a zero delta so the
// paused interval is never travelled.
func (s *State) Pause() error {
	if err := s.transition(Running, Paused); err != nil {
		return err
	}
	s.LastTick = time.Time{}
	return nil
}

func (s *State) Resume() error {
	if err := s.transition(Paused, Running); err != nil {
		return err
	}
	s.LastTick = time.Time{}
	return nil
}

// Reset returns to Idle at the path start. It is valid from any status.
func (s *State) Reset() {
	*s = State{}
}

// Update is what a driver publishes for one tick or fix.
type Update struct {
	At       time.Time
	Position geo.Point
	Index    int // path index the rider is on
	Fraction float64
	Heading  float64 // degrees in [0,360)
	SpeedKmh float64
	Distance float64 // meters from the path start
	Progress float64 // 0..1
	Finished bool
	Crossed  []int // stations reached by this update
}
