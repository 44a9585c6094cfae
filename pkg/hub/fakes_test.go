package hub

import (
	"time"

	"github.com/robotalks/boost.go/pkg/lwp"
)

type sentFrame struct {
	frame      []byte
	useLimiter bool
}

type fakeSender struct {
	frames []sentFrame
}

func (s *fakeSender) Send(frame []byte, useLimiter bool) {
	s.frames = append(s.frames, sentFrame{frame: frame, useLimiter: useLimiter})
}

func (s *fakeSender) take() []sentFrame {
	frames := s.frames
	s.frames = nil
	return frames
}

type fakeTimer struct {
	d        time.Duration
	task     TimerTask
	canceled bool
}

func (t *fakeTimer) Cancel() bool {
	if t.canceled {
		return false
	}
	t.canceled = true
	return true
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) ScheduleTimer(d time.Duration, task TimerTask) Timer {
	t := &fakeTimer{d: d, task: task}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) active() []*fakeTimer {
	var timers []*fakeTimer
	for _, t := range s.timers {
		if !t.canceled {
			timers = append(timers, t)
		}
	}
	return timers
}

func newTestRegistry() (*Registry, *fakeSender, *fakeScheduler) {
	sender, scheduler := &fakeSender{}, &fakeScheduler{}
	return NewRegistry(sender, scheduler), sender, scheduler
}

func attachMotor(r *Registry, s *fakeSender, port byte) *Motor {
	r.Attach(port, lwp.DeviceMotorInternal)
	s.take()
	return r.Motor(port)
}

func speedFrame(port byte, speed byte) []byte {
	return []byte{9, 0, 0x81, port, 0x11, 0x07, speed, 100, 0}
}

func floatFrame(port byte) []byte {
	return []byte{9, 0, 0x81, port, 0x11, 0x07, 0, 0, 0}
}

func settled(c *Completion) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
