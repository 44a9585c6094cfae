package hub

import (
	"sort"

	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/lwp"
)

// DefaultLEDColor is the color of the LED right after it is attached.
const DefaultLEDColor uint32 = 0x0000ff

type portEntry struct {
	device lwp.DeviceType
	motor  *Motor
}

// Registry maps port IDs to attached devices and owns the motors and the
// sensor state. It is not safe for concurrent use.
type Registry struct {
	sender    Sender
	scheduler Scheduler
	ports     map[byte]*portEntry
	sensors   Sensors
	ledPort   byte
	hasLED    bool
	tokens    uint64
	handler   EventHandler
}

// NewRegistry creates a Registry.
func NewRegistry(sender Sender, scheduler Scheduler) *Registry {
	return &Registry{
		sender:    sender,
		scheduler: scheduler,
		ports:     make(map[byte]*portEntry),
	}
}

// OnEvent sets the handler receiving attach and sensor events.
func (r *Registry) OnEvent(handler EventHandler) {
	r.handler = handler
}

func (r *Registry) emit(ev Event) {
	if r.handler != nil {
		r.handler(ev)
	}
}

func (r *Registry) send(frame []byte, useLimiter bool) {
	r.sender.Send(frame, useLimiter)
}

func (r *Registry) nextToken() uint64 {
	r.tokens++
	return r.tokens
}

// Attach registers the device on port and subscribes to its input.
// A device already on the port is detached first.
func (r *Registry) Attach(port byte, device lwp.DeviceType) {
	if _, ok := r.ports[port]; ok {
		r.Detach(port)
	}
	entry := &portEntry{device: device}
	r.ports[port] = entry
	if IsMotor(device) {
		entry.motor = newMotor(r, port, device)
	}
	if device == lwp.DeviceLED {
		r.ledPort, r.hasLED = port, true
		r.send(lwp.NewInputFormatSetup(port, lwp.ModeLED, 0, false), true)
		r.SetLED(DefaultLEDColor)
	}
	r.send(lwp.NewInputFormatSetup(port, InputMode(device), 1, true), true)
	glog.V(1).Infof("port %d: %s attached", port, device)
	r.emit(Event{Kind: EventAttached, Port: port, Device: device})
}

// Detach removes the device on port, dropping the state it owned.
func (r *Registry) Detach(port byte) {
	entry, ok := r.ports[port]
	if !ok {
		return
	}
	delete(r.ports, port)
	if entry.motor != nil {
		entry.motor.reset()
	}
	switch entry.device {
	case lwp.DeviceTilt:
		r.sensors.resetTilt()
	case lwp.DeviceColor:
		r.sensors.resetColor()
	case lwp.DeviceLED:
		if r.ledPort == port {
			r.hasLED = false
		}
	}
	glog.V(1).Infof("port %d: %s detached", port, entry.device)
	r.emit(Event{Kind: EventDetached, Port: port, Device: entry.device})
}

// Kind returns the device type on port, DeviceNone if empty.
func (r *Registry) Kind(port byte) lwp.DeviceType {
	if entry, ok := r.ports[port]; ok {
		return entry.device
	}
	return lwp.DeviceNone
}

// Motor returns the motor on port, nil if port has no motor.
func (r *Registry) Motor(port byte) *Motor {
	if entry, ok := r.ports[port]; ok {
		return entry.motor
	}
	return nil
}

// Motors returns all motors ordered by port.
func (r *Registry) Motors() []*Motor {
	var motors []*Motor
	for _, port := range r.Ports() {
		if m := r.ports[port].motor; m != nil {
			motors = append(motors, m)
		}
	}
	return motors
}

// Ports returns all occupied ports in order.
func (r *Registry) Ports() []byte {
	ports := make([]byte, 0, len(r.ports))
	for port := range r.ports {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// Sensors returns the sensor state.
func (r *Registry) Sensors() *Sensors {
	return &r.sensors
}

// SetLED sets the LED to rgb. It does nothing without an LED attached.
func (r *Registry) SetLED(rgb uint32) {
	if !r.hasLED {
		return
	}
	r.send(lwp.NewOutputCommand(r.ledPort, lwp.SubCmdWriteDirectModeData,
		lwp.ModeLED, byte(rgb>>16), byte(rgb>>8), byte(rgb)), true)
}

// HandlePortValue updates the state of the device on port.
func (r *Registry) HandlePortValue(port byte, value []byte) {
	entry, ok := r.ports[port]
	if !ok {
		glog.Warningf("port %d: value for unattached port ignored", port)
		return
	}
	switch entry.device {
	case lwp.DeviceTilt:
		if len(value) < 2 {
			break
		}
		r.sensors.TiltX, r.sensors.TiltY = value[0], value[1]
		r.emit(Event{Kind: EventTilt, Port: port, Device: entry.device,
			TiltX: int(int8(value[0])), TiltY: int(int8(value[1]))})
		return
	case lwp.DeviceColor:
		if len(value) < 1 {
			break
		}
		r.sensors.Color = ColorFromIndex(value[0])
		r.emit(Event{Kind: EventColor, Port: port, Device: entry.device, Color: r.sensors.Color})
		return
	case lwp.DeviceMotorInternal, lwp.DeviceMotorExternal:
		if len(value) < 4 {
			break
		}
		entry.motor.position = lwp.DecodeInt32(value)
		r.emit(Event{Kind: EventPosition, Port: port, Device: entry.device, Position: entry.motor.position})
		return
	default:
		glog.V(4).Infof("port %d: value of %s ignored", port, entry.device)
		return
	}
	glog.V(2).Infof("port %d: short value % x of %s ignored", port, value, entry.device)
}

// HandleFeedback forwards output command feedback to the motor on port.
func (r *Registry) HandleFeedback(port byte, fb lwp.Feedback) {
	m := r.Motor(port)
	if m == nil {
		glog.V(2).Infof("port %d: feedback %s without motor ignored", port, fb)
		return
	}
	m.handleFeedback(fb)
}

// FireTimer turns off the motor whose timed run task belongs to, unless the
// run has been superseded.
func (r *Registry) FireTimer(task TimerTask) {
	if task.Registry != nil && task.Registry != r {
		return
	}
	m := r.Motor(task.Port)
	if m == nil {
		glog.V(3).Infof("port %d: timer fired without motor", task.Port)
		return
	}
	m.fireTimer(task.Token)
}

// StopAll turns off all motors.
func (r *Registry) StopAll(useLimiter bool) {
	for _, m := range r.Motors() {
		m.TurnOff(useLimiter)
	}
}

// Reset forgets all devices and sensor values, dropping pending completions.
// No event is emitted.
func (r *Registry) Reset() {
	for _, entry := range r.ports {
		if entry.motor != nil {
			entry.motor.reset()
		}
	}
	r.ports = make(map[byte]*portEntry)
	r.sensors.reset()
	r.hasLED = false
}
