package speed

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Multipliers are the playback factors offered to riders.
var Multipliers = []float64{0.2, 0.5, 1.0, 1.2, 1.5, 2.0}

var ErrInvalidMultiplier = errors.New("multiplier must be positive")

// Profile describes the simulated train: a linear ramp up to cruise speed
// followed by random fluctuation inside a band.
type Profile struct {
	RampStep      time.Duration
	RampIncrement float64 // km/h per step
	Cruise        float64 // km/h
	FluctuateEach time.Duration
	FluctuateMin  float64 // inclusive
	FluctuateMax  float64 // exclusive
}

func DefaultProfile() Profile {
	return Profile{
		RampStep:      500 * time.Millisecond,
		RampIncrement: 5,
		Cruise:        70,
		FluctuateEach: 2 * time.Second,
		FluctuateMin:  60,
		FluctuateMax:  85,
	}
}

// rampDuration is the time needed to reach cruise speed.
func (p Profile) rampDuration() time.Duration {
	if p.RampIncrement <= 0 || p.RampStep <= 0 {
		return 0
	}
	steps := int(p.Cruise / p.RampIncrement)
	if float64(steps)*p.RampIncrement < p.Cruise {
		steps++
	}
	return time.Duration(steps) * p.RampStep
}

// Controller produces the base speed of a simulated run. It is driven by the
// session loop and is not safe for concurrent use.
type Controller struct {
	profile    Profile
	rng        *rand.Rand
	multiplier float64

	running bool
	started time.Time
	base    float64
	bucket  int

	override *float64
}

// NewController returns a controller using rng for fluctuation. A nil rng
// uses a time-seeded source.
func NewController(p Profile, rng *rand.Rand) *Controller {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Controller{profile: p, rng: rng, multiplier: 1}
}

// Start begins a new ramp from standstill.
func (c *Controller) Start(at time.Time) {
	c.running = true
	c.started = at
	c.base = 0
	c.bucket = 0
}

// Stop freezes the current speed.
func (c *Controller) Stop() { c.running = false }

// Reset stops the controller and zeroes the speed. The multiplier and any
// manual override are kept.
func (c *Controller) Reset() {
	c.running = false
	c.base = 0
	c.bucket = 0
}

// Update advances the profile to at and returns the base speed.
func (c *Controller) Update(at time.Time) float64 {
	if c.override != nil {
		return *c.override
	}
	if !c.running {
		return c.base
	}
	elapsed := at.Sub(c.started)
	if elapsed < 0 {
		elapsed = 0
	}
	p := c.profile
	ramp := p.rampDuration()
	if elapsed < ramp {
		c.base = float64(elapsed/p.RampStep) * p.RampIncrement
		if c.base > p.Cruise {
			c.base = p.Cruise
		}
		return c.base
	}
	if p.FluctuateEach <= 0 || p.FluctuateMax <= p.FluctuateMin {
		c.base = p.Cruise
		return c.base
	}
	bucket := int((elapsed - ramp) / p.FluctuateEach)
	if bucket == 0 {
		c.base = p.Cruise
		return c.base
	}
	if bucket != c.bucket {
		c.bucket = bucket
		span := int(p.FluctuateMax - p.FluctuateMin)
		if span <= 0 {
			span = 1
		}
		c.base = p.FluctuateMin + float64(c.rng.IntN(span))
	}
	return c.base
}

// Set pins the base speed to kmh until ClearOverride is called.
func (c *Controller) Set(kmh float64) {
	if kmh < 0 {
		kmh = 0
	}
	c.override = &kmh
}

func (c *Controller) ClearOverride() { c.override = nil }

func (c *Controller) SetMultiplier(m float64) error {
	if m <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, m)
	}
	c.multiplier = m
	return nil
}

func (c *Controller) Multiplier() float64 { return c.multiplier }

// Speed is the last computed base speed in km/h.
func (c *Controller) Speed() float64 {
	if c.override != nil {
		return *c.override
	}
	return c.base
}

// SpeedKmh is the effective speed: base speed scaled by the multiplier.
func (c *Controller) SpeedKmh() float64 { return c.Speed() * c.multiplier }
