package hub

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/lwp"
	"github.com/robotalks/boost.go/pkg/ratelimit"
	"github.com/robotalks/boost.go/pkg/transport"
)

// ErrNotInLoop indicates the controller is not added to a loop.
var ErrNotInLoop = errors.New("controller not added to loop")

// Controller drives a hub through a transport. All state is owned by the
// loop it is added to, public methods marshal onto the loop.
type Controller struct {
	Limiter *ratelimit.Limiter
	// MotorPower is the initial power of attached motors.
	MotorPower int

	transport transport.Transport
	loop      *fx.Loop
	registry  *Registry
	portMap   PortMap
	firmware  *lwp.Version
	linkUp    bool
	connected int32

	handlersLock sync.RWMutex
	handlers     []EventHandler
}

// Status is a snapshot of the hub.
type Status struct {
	Connected bool
	Firmware  *lwp.Version
	PortMap   PortMap
	Ports     []PortStatus
	Sensors   Sensors
}

// PortStatus describes the device on a port.
type PortStatus struct {
	Port      byte
	Label     string
	Device    lwp.DeviceType
	State     MotorState
	Power     int
	Direction int
	Position  int32
	// Remaining is the time left of a timed run.
	Remaining time.Duration
}

type notifyMsg struct {
	data []byte
}

type timerMsg struct {
	task TimerTask
}

type callMsg struct {
	fn   func()
	done chan struct{}
}

type sendFunc func([]byte, bool)

func (f sendFunc) Send(frame []byte, useLimiter bool) { f(frame, useLimiter) }

type loopScheduler struct {
	loop *fx.Loop
}

func (s loopScheduler) ScheduleTimer(d time.Duration, task TimerTask) Timer {
	return s.loop.Schedule(d, &timerMsg{task: task})
}

// NewController creates a Controller.
func NewController(t transport.Transport) *Controller {
	return &Controller{
		Limiter:    ratelimit.New(ratelimit.DefaultMaxRate),
		MotorPower: DefaultPower,
		transport:  t,
		portMap:    LegacyPortMap,
	}
}

// AddToLoop implements fx.LoopAdder.
func (c *Controller) AddToLoop(l *fx.Loop) {
	c.loop = l
	c.registry = NewRegistry(sendFunc(c.send), loopScheduler{loop: l})
	c.registry.OnEvent(c.onRegistryEvent)
	l.AddController(c)
}

// Registry exposes the registry, only to be used on the loop.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Subscribe registers an event handler.
func (c *Controller) Subscribe(handler EventHandler) {
	c.handlersLock.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersLock.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.handlersLock.RLock()
	handlers := c.handlers
	c.handlersLock.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Controller) onRegistryEvent(ev Event) {
	if ev.Kind == EventAttached {
		if m := c.registry.Motor(ev.Port); m != nil {
			m.SetPower(c.MotorPower)
		}
	}
	c.emit(ev)
}

// Control implements fx.Controller.
func (c *Controller) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case *notifyMsg:
			c.handleNotification(msg.data)
		case *timerMsg:
			msg.task.Fire()
		case *callMsg:
			msg.fn()
			close(msg.done)
		default:
			return
		}
		mc.MessageTaken()
	}))
	if c.linkUp && !c.transport.IsConnected() {
		glog.Warning("hub link lost")
		c.reset()
	}
	return nil
}

func (c *Controller) call(ctx context.Context, fn func()) error {
	if c.loop == nil {
		return ErrNotInLoop
	}
	msg := &callMsg{fn: fn, done: make(chan struct{})}
	c.loop.Post(msg)
	select {
	case <-msg.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) onNotify(data []byte) {
	frame := make([]byte, len(data))
	copy(frame, data)
	c.loop.Post(&notifyMsg{data: frame})
}

func (c *Controller) handleNotification(data []byte) {
	glog.V(4).Infof("recv % x", data)
	f, err := lwp.Decode(data)
	if err != nil {
		glog.Warningf("malformed frame % x: %v", data, err)
		return
	}
	switch f.Type {
	case lwp.MsgHubAttachedIO:
		io, err := f.AttachedIO()
		if err != nil {
			glog.Warningf("port %d: %v", f.Port, err)
			return
		}
		switch io.Event {
		case lwp.EventAttached:
			c.registry.Attach(io.Port, io.Device)
		case lwp.EventDetached:
			c.registry.Detach(io.Port)
		default:
			glog.V(2).Infof("port %d: %s ignored", io.Port, io.Event)
		}
	case lwp.MsgPortValue:
		value, err := f.PortValue()
		if err != nil {
			glog.Warningf("port %d: %v", f.Port, err)
			return
		}
		c.registry.HandlePortValue(f.Port, value)
	case lwp.MsgPortOutputFeedback:
		fb, err := f.Feedback()
		if err != nil {
			glog.Warningf("port %d: %v", f.Port, err)
			return
		}
		c.registry.HandleFeedback(f.Port, fb)
	case lwp.MsgError:
		if r, err := f.ErrorReport(); err == nil {
			glog.Warningf("hub error: %s", r)
		}
	case lwp.MsgHubProperties:
		v, err := f.FirmwareVersion()
		if err != nil {
			glog.V(2).Infof("hub property ignored: %v", err)
			return
		}
		c.firmware, c.portMap = &v, PortMapFor(v)
		glog.Infof("hub firmware %s, ports A=%d B=%d C=%d D=%d",
			v, c.portMap.A, c.portMap.B, c.portMap.C, c.portMap.D)
		c.emit(Event{Kind: EventFirmware, Version: v})
	default:
		glog.V(2).Infof("message %s ignored", f.Type)
	}
}

func (c *Controller) send(frame []byte, useLimiter bool) {
	if !c.linkUp || !c.transport.IsConnected() {
		glog.V(2).Infof("not connected, drop % x", frame)
		return
	}
	if useLimiter && !c.Limiter.Allow() {
		glog.V(2).Infof("rate limited, drop % x", frame)
		return
	}
	glog.V(4).Infof("send % x", frame)
	if err := c.transport.Write(transport.ServiceUUID, transport.CharacteristicUUID, frame); err != nil {
		glog.Errorf("write error: %v", err)
	}
}

func (c *Controller) reset() {
	wasUp := c.linkUp
	c.linkUp = false
	atomic.StoreInt32(&c.connected, 0)
	c.registry.Reset()
	c.portMap, c.firmware = LegacyPortMap, nil
	if wasUp {
		c.emit(Event{Kind: EventDisconnected})
	}
}

// Scan discovers hubs.
func (c *Controller) Scan(ctx context.Context) ([]transport.Peripheral, error) {
	return c.transport.Discover(ctx)
}

// Connect connects the hub with id and starts receiving notifications.
func (c *Controller) Connect(ctx context.Context, id string) error {
	if c.loop == nil {
		return ErrNotInLoop
	}
	if err := c.transport.Connect(ctx, id); err != nil {
		return err
	}
	// link is up before notifications arrive, so attach replies are not dropped.
	err := c.call(ctx, func() {
		c.linkUp = true
		atomic.StoreInt32(&c.connected, 1)
		glog.Infof("hub %s connected", id)
		c.emit(Event{Kind: EventConnected})
	})
	if err == nil {
		err = c.transport.Subscribe(transport.ServiceUUID, transport.CharacteristicUUID, c.onNotify)
	}
	if err != nil {
		c.transport.Disconnect()
		c.call(ctx, c.reset)
		return err
	}
	return c.Send(ctx, lwp.NewHubPropertyRequest(lwp.PropFirmwareVersion, lwp.PropOpRequestUpdate), false)
}

// Disconnect closes the link and forgets all devices.
func (c *Controller) Disconnect(ctx context.Context) error {
	err := c.transport.Disconnect()
	if callErr := c.call(ctx, c.reset); err == nil {
		err = callErr
	}
	return err
}

// IsConnected indicates the hub is connected.
func (c *Controller) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) != 0 && c.transport.IsConnected()
}

// Send sends a raw frame.
func (c *Controller) Send(ctx context.Context, frame []byte, useLimiter bool) error {
	return c.call(ctx, func() { c.send(frame, useLimiter) })
}

// StopAllMotors turns off all motors bypassing the rate limiter.
func (c *Controller) StopAllMotors(ctx context.Context) error {
	return c.call(ctx, func() { c.registry.StopAll(false) })
}

func (c *Controller) motors(label string) []*Motor {
	ports, ok := c.portMap.Resolve(label)
	if !ok {
		glog.Warningf("unknown motor %q", label)
		return nil
	}
	var motors []*Motor
	for _, port := range ports {
		if m := c.registry.Motor(port); m != nil {
			motors = append(motors, m)
		}
	}
	return motors
}

func (c *Controller) forMotors(ctx context.Context, label string, fn func(*Motor)) error {
	return c.call(ctx, func() {
		for _, m := range c.motors(label) {
			fn(m)
		}
	})
}

// MotorOn turns on motors.
func (c *Controller) MotorOn(ctx context.Context, label string) error {
	return c.forMotors(ctx, label, (*Motor).TurnOn)
}

// MotorOff turns off motors.
func (c *Controller) MotorOff(ctx context.Context, label string) error {
	return c.forMotors(ctx, label, func(m *Motor) { m.TurnOff(true) })
}

// MotorOnFor turns on motors for d.
func (c *Controller) MotorOnFor(ctx context.Context, label string, d time.Duration) error {
	return c.forMotors(ctx, label, func(m *Motor) { m.TurnOnFor(d) })
}

// MotorOnForRotation turns on motors for rotations, negative to run reversed.
// The completions resolve when the hub reports the runs finished.
func (c *Controller) MotorOnForRotation(ctx context.Context, label string, rotations float64) ([]*Completion, error) {
	if math.IsNaN(rotations) || math.IsInf(rotations, 0) {
		glog.Warningf("invalid rotations %v", rotations)
		return nil, nil
	}
	degrees := math.Abs(math.Round(rotations * 360))
	if degrees > MaxRunDegrees {
		degrees = MaxRunDegrees
	}
	sign := 1
	if rotations < 0 {
		sign = -1
	}
	var completions []*Completion
	err := c.forMotors(ctx, label, func(m *Motor) {
		completions = append(completions, m.TurnOnForDegrees(int(degrees), sign))
	})
	if err != nil {
		return nil, err
	}
	return completions, nil
}

// SetMotorPower sets the power of motors, applied immediately to running ones.
func (c *Controller) SetMotorPower(ctx context.Context, label string, power int) error {
	return c.forMotors(ctx, label, func(m *Motor) {
		m.SetPower(power)
		m.Refresh()
	})
}

// SetMotorDirection sets the direction of motors by name.
func (c *Controller) SetMotorDirection(ctx context.Context, label string, direction string) error {
	d, ok := ParseDirection(direction)
	if !ok {
		glog.Warningf("unknown direction %q", direction)
		return nil
	}
	return c.forMotors(ctx, label, func(m *Motor) {
		if d == 0 {
			m.Reverse()
		} else {
			m.SetDirection(d)
		}
		m.Refresh()
	})
}

// MotorPosition returns the position in [0, 360] of the first motor of label.
func (c *Controller) MotorPosition(ctx context.Context, label string) (pos int, err error) {
	err = c.call(ctx, func() {
		if motors := c.motors(label); len(motors) > 0 {
			pos = motors[0].PositionDegrees()
		}
	})
	return
}

// SetLED sets the color of the hub LED.
func (c *Controller) SetLED(ctx context.Context, rgb uint32) error {
	return c.call(ctx, func() { c.registry.SetLED(rgb) })
}

// TiltAngle returns the tilt angle towards dir.
func (c *Controller) TiltAngle(ctx context.Context, dir TiltDirection) (angle int, err error) {
	err = c.call(ctx, func() { angle = c.registry.Sensors().TiltAngle(dir) })
	return
}

// IsTilted tells whether the hub is tilted towards dir.
func (c *Controller) IsTilted(ctx context.Context, dir TiltDirection) (tilted bool, err error) {
	err = c.call(ctx, func() { tilted = c.registry.Sensors().IsTilted(dir) })
	return
}

// Color returns the color seen by the color sensor.
func (c *Controller) Color(ctx context.Context) (color Color, err error) {
	err = c.call(ctx, func() { color = c.registry.Sensors().Color })
	return
}

// SeeingColor tells whether the color sensor sees color.
func (c *Controller) SeeingColor(ctx context.Context, color Color) (seeing bool, err error) {
	err = c.call(ctx, func() { seeing = c.registry.Sensors().SeeingColor(color) })
	return
}

// ColorChanged tells whether the color changed since the last call.
func (c *Controller) ColorChanged(ctx context.Context) (changed bool, err error) {
	err = c.call(ctx, func() { changed = c.registry.Sensors().ColorChanged() })
	return
}

// Status returns a snapshot of the hub.
func (c *Controller) Status(ctx context.Context) (st *Status, err error) {
	err = c.call(ctx, func() {
		st = &Status{
			Connected: c.linkUp,
			PortMap:   c.portMap,
			Sensors:   *c.registry.Sensors(),
		}
		if c.firmware != nil {
			v := *c.firmware
			st.Firmware = &v
		}
		now := time.Now()
		for _, port := range c.registry.Ports() {
			ps := PortStatus{Port: port, Label: c.portMap.Label(port), Device: c.registry.Kind(port)}
			if m := c.registry.Motor(port); m != nil {
				ps.State, ps.Power, ps.Direction, ps.Position = m.State(), m.Power(), m.Direction(), m.Position()
				ps.Remaining = m.Remaining(now)
			}
			st.Ports = append(st.Ports, ps)
		}
	})
	return
}
