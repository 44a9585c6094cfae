package hub

import (
	"math"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/lwp"
)

// Limits of motor commands.
const (
	MaxPower       = 100
	MaxRunDuration = 15 * time.Second
	MaxRunDegrees  = 360000
	DefaultPower   = 50
)

// MotorState is the run state of a motor.
type MotorState int

// Motor states.
const (
	MotorIdle MotorState = iota
	MotorRunning
	MotorRunningTimed
	MotorRunningForDistance
)

func (s MotorState) String() string {
	switch s {
	case MotorIdle:
		return "idle"
	case MotorRunning:
		return "running"
	case MotorRunningTimed:
		return "running-timed"
	case MotorRunningForDistance:
		return "running-for-distance"
	}
	return "unknown"
}

// Sender delivers encoded frames to the hub.
type Sender interface {
	Send(frame []byte, useLimiter bool)
}

// Timer is a scheduled TimerTask which can be canceled.
type Timer interface {
	Cancel() bool
}

// Scheduler arranges Registry.FireTimer(task) to be invoked on the goroutine
// owning the registry after d.
type Scheduler interface {
	ScheduleTimer(d time.Duration, task TimerTask) Timer
}

// TimerTask identifies a timed run. Token is unique within the registry so
// a timer outliving its run is recognized as stale.
type TimerTask struct {
	Registry *Registry
	Port     byte
	Token    uint64
}

// Fire delivers the task to its registry.
func (t TimerTask) Fire() {
	if t.Registry != nil {
		t.Registry.FireTimer(t)
	}
}

// Motor tracks a motor attached to a port. It is not safe for concurrent use
// and is owned by its Registry.
type Motor struct {
	owner     *Registry
	port      byte
	device    lwp.DeviceType
	direction int
	power     int
	position  int32
	state     MotorState

	timer      Timer
	timerToken uint64
	runStart   time.Time
	runFor     time.Duration

	pending *Completion
}

func newMotor(owner *Registry, port byte, device lwp.DeviceType) *Motor {
	m := &Motor{owner: owner, port: port, device: device, direction: 1}
	m.SetPower(DefaultPower)
	return m
}

// RemapPower maps power from [0, 100] to the effective range of the hub,
// keeping 0 as 0 so low powers still turn the motor.
func RemapPower(p int) int {
	if p <= 0 {
		return 0
	}
	if p > MaxPower {
		p = MaxPower
	}
	return 20 + int(math.Round(float64(p)*0.8))
}

// Port returns the port ID.
func (m *Motor) Port() byte { return m.port }

// Device returns the device type.
func (m *Motor) Device() lwp.DeviceType { return m.device }

// Direction returns 1 or -1.
func (m *Motor) Direction() int { return m.direction }

// Power returns the remapped power sent to the hub.
func (m *Motor) Power() int { return m.power }

// Position returns the last reported position in degrees.
func (m *Motor) Position() int32 { return m.position }

// PositionDegrees wraps the position into [0, 360].
func (m *Motor) PositionDegrees() int {
	return wrapClamp(int(m.position), 0, 360)
}

// wrapClamp wraps n into [min, max], both inclusive.
func wrapClamp(n, min, max int) int {
	r := max - min + 1
	v := (n - min) % r
	if v < 0 {
		v += r
	}
	return v + min
}

// State returns the run state.
func (m *Motor) State() MotorState { return m.state }

// Pending returns the completion waiting for hub feedback, if any.
func (m *Motor) Pending() *Completion { return m.pending }

// SetDirection sets the direction by sign, 0 is treated as forward.
func (m *Motor) SetDirection(d int) {
	if d < 0 {
		m.direction = -1
	} else {
		m.direction = 1
	}
}

// Reverse flips the direction.
func (m *Motor) Reverse() {
	m.direction = -m.direction
}

// SetPower clamps p into [0, 100] and stores the remapped value.
func (m *Motor) SetPower(p int) {
	if p < 0 {
		p = 0
	}
	m.power = RemapPower(p)
}

// IsOn indicates the motor is running for ever or for a duration.
func (m *Motor) IsOn() bool {
	return m.state == MotorRunning || m.state == MotorRunningTimed
}

// TurnOn starts the motor without a limit.
func (m *Motor) TurnOn() {
	if m.power == 0 {
		return
	}
	m.supersede()
	m.sendSpeed(m.power * m.direction)
	m.state = MotorRunning
}

// TurnOnFor starts the motor and turns it off after d, clamped to
// [0, MaxRunDuration].
func (m *Motor) TurnOnFor(d time.Duration) {
	if m.power == 0 {
		return
	}
	if d < 0 {
		d = 0
	} else if d > MaxRunDuration {
		d = MaxRunDuration
	}
	m.supersede()
	m.sendSpeed(m.power * m.direction)
	m.state = MotorRunningTimed
	m.scheduleOff(d)
}

// TurnOnForDegrees starts the motor for the degrees, clamped to
// [0, MaxRunDegrees], in the direction of sign combined with the motor
// direction. The returned Completion resolves when the hub reports the
// command finished. An inert motor returns an already resolved Completion.
func (m *Motor) TurnOnForDegrees(degrees int, sign int) *Completion {
	if m.power == 0 {
		return resolvedCompletion(m.port)
	}
	if degrees < 0 {
		degrees = 0
	} else if degrees > MaxRunDegrees {
		degrees = MaxRunDegrees
	}
	if sign < 0 {
		sign = -1
	} else {
		sign = 1
	}
	m.supersede()
	payload := append(lwp.EncodeInt32(int32(degrees)),
		speedByte(m.power*m.direction*sign),
		byte(m.power),
		lwp.EndStateBrake,
		lwp.ProfileNone)
	m.owner.send(lwp.NewOutputCommand(m.port, lwp.SubCmdStartSpeedForDegrees, payload...), true)
	m.state = MotorRunningForDistance
	m.pending = newCompletion(m.port)
	return m.pending
}

// TurnOff floats the motor. Stop all bypasses the rate limiter with
// useLimiter false.
func (m *Motor) TurnOff(useLimiter bool) {
	if m.power == 0 {
		return
	}
	m.supersede()
	m.owner.send(lwp.NewOutputCommand(m.port, lwp.SubCmdStartSpeed,
		lwp.EndStateFloat, lwp.EndStateFloat, lwp.ProfileNone), useLimiter)
	m.state = MotorIdle
}

// Refresh re-sends the speed of a running motor after power or direction
// changed. The remaining time of a timed run is kept.
func (m *Motor) Refresh() {
	if m.power == 0 || !m.IsOn() {
		return
	}
	m.sendSpeed(m.power * m.direction)
}

func (m *Motor) sendSpeed(speed int) {
	m.owner.send(lwp.NewOutputCommand(m.port, lwp.SubCmdStartSpeed,
		speedByte(speed), MaxPower, lwp.ProfileNone), true)
}

func speedByte(speed int) byte {
	return byte(int8(speed))
}

// supersede clears the timer and resolves the pending completion, as the
// hub discards a running command replaced by a new one.
func (m *Motor) supersede() {
	m.cancelTimer()
	if m.pending != nil {
		m.pending.settle(nil)
		m.pending = nil
	}
}

func (m *Motor) scheduleOff(d time.Duration) {
	m.timerToken = m.owner.nextToken()
	m.runStart, m.runFor = time.Now(), d
	m.timer = m.owner.scheduler.ScheduleTimer(d, TimerTask{
		Registry: m.owner,
		Port:     m.port,
		Token:    m.timerToken,
	})
}

func (m *Motor) cancelTimer() {
	if m.timer != nil {
		m.timer.Cancel()
		m.timer = nil
	}
	m.timerToken = 0
}

// Remaining returns the time left of a timed run.
func (m *Motor) Remaining(now time.Time) time.Duration {
	if m.state != MotorRunningTimed {
		return 0
	}
	if left := m.runFor - now.Sub(m.runStart); left > 0 {
		return left
	}
	return 0
}

func (m *Motor) fireTimer(token uint64) {
	if m.timer == nil || token != m.timerToken {
		glog.V(3).Infof("motor %d: stale timer %d ignored", m.port, token)
		return
	}
	m.timer, m.timerToken = nil, 0
	m.TurnOff(true)
}

func (m *Motor) handleFeedback(fb lwp.Feedback) {
	if !fb.Finished() {
		if !fb.InProgress() {
			glog.V(4).Infof("motor %d: feedback %s", m.port, fb)
		}
		return
	}
	if m.state == MotorRunningForDistance {
		m.state = MotorIdle
	}
	if m.pending != nil {
		m.pending.settle(nil)
		m.pending = nil
	}
}

// reset drops all run state without talking to the hub.
func (m *Motor) reset() {
	m.cancelTimer()
	if m.pending != nil {
		m.pending.settle(ErrCompletionDropped)
		m.pending = nil
	}
	m.state = MotorIdle
}
