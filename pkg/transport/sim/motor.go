package sim

import (
	"math"
	"time"
)

// DegreesPerSecondAtFullSpeed is how fast a simulated motor turns at speed 100.
const DegreesPerSecondAtFullSpeed = 600

type spinState struct {
	startPos  float64
	startTime time.Time
	// speed in degrees per second, signed.
	speed float64
	// distance bounded runs stop after degrees.
	bounded bool
	degrees float64
}

func newSpinState(pos float64, now time.Time, speed int) *spinState {
	return &spinState{
		startPos:  pos,
		startTime: now,
		speed:     float64(speed) * DegreesPerSecondAtFullSpeed / 100,
	}
}

func newBoundedSpinState(pos float64, now time.Time, speed int, degrees int32) *spinState {
	s := newSpinState(pos, now, speed)
	s.bounded, s.degrees = true, math.Abs(float64(degrees))
	return s
}

// estimate returns the position at now and whether the run finished.
func (s *spinState) estimate(now time.Time) (float64, bool) {
	dist := now.Sub(s.startTime).Seconds() * s.speed
	if !s.bounded {
		return s.startPos + dist, false
	}
	if s.speed == 0 || s.degrees == 0 {
		return s.startPos, true
	}
	if math.Abs(dist) >= s.degrees {
		return s.startPos + math.Copysign(s.degrees, s.speed), true
	}
	return s.startPos + dist, false
}

type motor struct {
	pos      float64
	reported int32
	state    *spinState
}

// update advances the motor to now, returning whether a bounded run finished.
func (m *motor) update(now time.Time) bool {
	if m.state == nil {
		return false
	}
	pos, finished := m.state.estimate(now)
	m.pos = pos
	if finished {
		m.state = nil
	}
	return finished
}

func (m *motor) position() int32 {
	return int32(math.Round(m.pos))
}
