// Package sim simulates a hub behind the transport interface, for running
// without hardware and for tests.
package sim

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/lwp"
	"github.com/robotalks/boost.go/pkg/transport"
)

// Defaults of a simulated hub.
const (
	DefaultID       = "sim-hub"
	DefaultName     = "LEGO Move Hub"
	DefaultInterval = 50 * time.Millisecond
)

// Built-in ports not covered by the port map.
const (
	PortLED     byte = 50
	PortTilt    byte = 58
	PortVoltage byte = 59
	PortCurrent byte = 60
)

// DefaultFirmware numbers the ports A-D as 55, 56, 1, 2.
var DefaultFirmware = lwp.Version{Major: 1, Minor: 0, Bugfix: 0, Build: 223}

// Hub is a simulated hub implementing transport.Transport.
type Hub struct {
	ID       string
	Name     string
	Firmware lwp.Version
	// Interval is the period of motor position reports. With 0 reports are
	// only produced by Step.
	Interval time.Duration
	// Now provides the time, defaults to time.Now.
	Now func() time.Time

	lock      sync.Mutex
	devices   map[byte]lwp.DeviceType
	motors    map[byte]*motor
	notifying map[byte]bool
	connected bool
	notify    transport.NotifyFunc
	led       uint32
	tiltX     int8
	tiltY     int8
	color     byte
	stopCh    chan struct{}
}

// New creates a Move Hub with two built-in motors, a color sensor on C and
// an external motor on D.
func New() *Hub {
	return NewWithFirmware(DefaultFirmware)
}

// NewWithFirmware creates a Move Hub whose port numbering follows firmware.
func NewWithFirmware(firmware lwp.Version) *Hub {
	pm := hub.PortMapFor(firmware)
	h := &Hub{
		ID:        DefaultID,
		Name:      DefaultName,
		Firmware:  firmware,
		Interval:  DefaultInterval,
		Now:       time.Now,
		devices:   make(map[byte]lwp.DeviceType),
		motors:    make(map[byte]*motor),
		notifying: make(map[byte]bool),
		color:     hub.ColorNone.Index(),
	}
	h.devices[pm.A] = lwp.DeviceMotorInternal
	h.devices[pm.B] = lwp.DeviceMotorInternal
	h.devices[pm.C] = lwp.DeviceColor
	h.devices[pm.D] = lwp.DeviceMotorExternal
	h.devices[PortLED] = lwp.DeviceLED
	h.devices[PortTilt] = lwp.DeviceTilt
	h.devices[PortVoltage] = lwp.DeviceVoltage
	h.devices[PortCurrent] = lwp.DeviceCurrent
	for port, device := range h.devices {
		if hub.IsMotor(device) {
			h.motors[port] = &motor{}
		}
	}
	return h
}

func (h *Hub) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Discover implements transport.Transport.
func (h *Hub) Discover(ctx context.Context) ([]transport.Peripheral, error) {
	return []transport.Peripheral{{ID: h.ID, Name: h.Name, RSSI: -40}}, nil
}

// Connect implements transport.Transport.
func (h *Hub) Connect(ctx context.Context, id string) error {
	if id != h.ID {
		return transport.ErrNotFound
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.connected {
		return nil
	}
	h.connected = true
	if h.Interval > 0 {
		h.stopCh = make(chan struct{})
		go h.report(h.Interval, h.stopCh)
	}
	return nil
}

// Disconnect implements transport.Transport. Motors stop as a real hub does.
func (h *Hub) Disconnect() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.dropLocked()
	return nil
}

// Drop simulates losing the link.
func (h *Hub) Drop() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.dropLocked()
}

func (h *Hub) dropLocked() {
	if !h.connected {
		return
	}
	h.connected, h.notify = false, nil
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
	now := h.now()
	for _, m := range h.motors {
		m.update(now)
		m.state = nil
	}
	h.notifying = make(map[byte]bool)
}

// IsConnected implements transport.Transport.
func (h *Hub) IsConnected() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.connected
}

func checkCharacteristic(serviceID, characteristicID string) error {
	if transport.NormalizeUUID(serviceID) != transport.ServiceUUID ||
		transport.NormalizeUUID(characteristicID) != transport.CharacteristicUUID {
		return transport.ErrNotFound
	}
	return nil
}

// Subscribe implements transport.Transport. Attached devices are announced
// once notifications are enabled.
func (h *Hub) Subscribe(serviceID, characteristicID string, fn transport.NotifyFunc) error {
	if err := checkCharacteristic(serviceID, characteristicID); err != nil {
		return err
	}
	h.lock.Lock()
	if !h.connected {
		h.lock.Unlock()
		return transport.ErrNotConnected
	}
	h.notify = fn
	var frames [][]byte
	for _, port := range h.portsLocked() {
		frames = append(frames, lwp.NewAttachedIO(port, lwp.EventAttached, h.devices[port]))
	}
	h.lock.Unlock()
	h.deliver(fn, frames)
	return nil
}

// Write implements transport.Transport.
func (h *Hub) Write(serviceID, characteristicID string, data []byte) error {
	if err := checkCharacteristic(serviceID, characteristicID); err != nil {
		return err
	}
	h.lock.Lock()
	if !h.connected {
		h.lock.Unlock()
		return transport.ErrNotConnected
	}
	frames := h.handleLocked(data)
	fn := h.notify
	h.lock.Unlock()
	h.deliver(fn, frames)
	return nil
}

func (h *Hub) deliver(fn transport.NotifyFunc, frames [][]byte) {
	if fn == nil {
		return
	}
	for _, frame := range frames {
		fn(frame)
	}
}

func (h *Hub) portsLocked() []byte {
	ports := make([]byte, 0, len(h.devices))
	for port := range h.devices {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

func errorFrame(t lwp.MessageType, code byte) []byte {
	return []byte{5, lwp.HubID, byte(lwp.MsgError), byte(t), code}
}

// Error codes replied to bad commands.
const (
	errCodeInvalidUse  byte = 0x06
	errCodeUnknownCmd  byte = 0x05
	errCodeInvalidPort byte = 0x07
)

func (h *Hub) handleLocked(data []byte) [][]byte {
	f, err := lwp.Decode(data)
	if err != nil {
		glog.Warningf("sim: malformed frame % x: %v", data, err)
		return nil
	}
	switch f.Type {
	case lwp.MsgHubProperties:
		prop, op, err := f.HubPropertyRequest()
		if err != nil || prop != lwp.PropFirmwareVersion || op != lwp.PropOpRequestUpdate {
			return [][]byte{errorFrame(f.Type, errCodeInvalidUse)}
		}
		return [][]byte{lwp.NewFirmwareVersionUpdate(h.Firmware)}
	case lwp.MsgPortInputFormatSetup:
		s, err := f.InputFormatSetup()
		if err != nil {
			return [][]byte{errorFrame(f.Type, errCodeInvalidUse)}
		}
		if _, ok := h.devices[s.Port]; !ok {
			return [][]byte{errorFrame(f.Type, errCodeInvalidPort)}
		}
		h.notifying[s.Port] = s.Notify
		if !s.Notify {
			return nil
		}
		if value := h.valueLocked(s.Port); value != nil {
			return [][]byte{lwp.NewPortValue(s.Port, value...)}
		}
		return nil
	case lwp.MsgPortOutputCommand:
		cmd, err := f.OutputCommand()
		if err != nil {
			return [][]byte{errorFrame(f.Type, errCodeInvalidUse)}
		}
		return h.outputLocked(cmd)
	}
	return [][]byte{errorFrame(f.Type, errCodeUnknownCmd)}
}

func (h *Hub) valueLocked(port byte) []byte {
	switch h.devices[port] {
	case lwp.DeviceMotorInternal, lwp.DeviceMotorExternal:
		m := h.motors[port]
		m.reported = m.position()
		return lwp.EncodeInt32(m.reported)
	case lwp.DeviceTilt:
		return []byte{byte(h.tiltX), byte(h.tiltY)}
	case lwp.DeviceColor:
		return []byte{h.color}
	}
	return nil
}

func (h *Hub) outputLocked(cmd lwp.OutputCommand) [][]byte {
	device, ok := h.devices[cmd.Port]
	if !ok {
		return [][]byte{errorFrame(lwp.MsgPortOutputCommand, errCodeInvalidPort)}
	}
	switch {
	case device == lwp.DeviceLED && cmd.SubCmd == lwp.SubCmdWriteDirectModeData:
		if len(cmd.Payload) < 4 || cmd.Payload[0] != lwp.ModeLED {
			break
		}
		h.led = uint32(cmd.Payload[1])<<16 | uint32(cmd.Payload[2])<<8 | uint32(cmd.Payload[3])
		return [][]byte{lwp.NewFeedback(cmd.Port, lwp.FeedbackCompleted|lwp.FeedbackIdle)}
	case hub.IsMotor(device) && cmd.SubCmd == lwp.SubCmdStartSpeed:
		if len(cmd.Payload) < 3 {
			break
		}
		return h.spinLocked(cmd.Port, int(int8(cmd.Payload[0])), false, 0)
	case hub.IsMotor(device) && cmd.SubCmd == lwp.SubCmdStartSpeedForDegrees:
		if len(cmd.Payload) < 8 {
			break
		}
		return h.spinLocked(cmd.Port, int(int8(cmd.Payload[4])), true, lwp.DecodeInt32(cmd.Payload))
	}
	return [][]byte{errorFrame(lwp.MsgPortOutputCommand, errCodeInvalidUse)}
}

func (h *Hub) spinLocked(port byte, speed int, bounded bool, degrees int32) [][]byte {
	m, now := h.motors[port], h.now()
	m.update(now)
	var fb lwp.Feedback
	if m.state != nil && m.state.bounded {
		fb |= lwp.FeedbackDiscarded
	}
	switch {
	case bounded:
		m.state = newBoundedSpinState(m.pos, now, speed, degrees)
		fb |= lwp.FeedbackInProgress
	case speed != 0:
		m.state = newSpinState(m.pos, now, speed)
		fb |= lwp.FeedbackInProgress
	default:
		m.state = nil
		fb |= lwp.FeedbackCompleted | lwp.FeedbackIdle
	}
	return [][]byte{lwp.NewFeedback(port, fb)}
}

// Step advances the motors and reports changed positions and finished runs.
func (h *Hub) Step() {
	h.lock.Lock()
	if !h.connected {
		h.lock.Unlock()
		return
	}
	now := h.now()
	var frames [][]byte
	for _, port := range h.portsLocked() {
		m := h.motors[port]
		if m == nil {
			continue
		}
		finished := m.update(now)
		if pos := m.position(); pos != m.reported && h.notifying[port] {
			m.reported = pos
			frames = append(frames, lwp.NewPortValue(port, lwp.EncodeInt32(pos)...))
		}
		if finished {
			frames = append(frames, lwp.NewFeedback(port, lwp.FeedbackCompleted|lwp.FeedbackIdle))
		}
	}
	fn := h.notify
	h.lock.Unlock()
	h.deliver(fn, frames)
}

func (h *Hub) report(interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.Step()
		}
	}
}

// SetTilt sets the tilt angles, reported if notifications are enabled.
func (h *Hub) SetTilt(x, y int8) {
	h.update(PortTilt, func() { h.tiltX, h.tiltY = x, y })
}

// SetColor sets the color seen by the color sensor.
func (h *Hub) SetColor(c hub.Color) {
	h.lock.Lock()
	port, ok := h.portOfLocked(lwp.DeviceColor)
	h.lock.Unlock()
	if !ok {
		return
	}
	h.update(port, func() { h.color = c.Index() })
}

func (h *Hub) portOfLocked(device lwp.DeviceType) (byte, bool) {
	for _, port := range h.portsLocked() {
		if h.devices[port] == device {
			return port, true
		}
	}
	return 0, false
}

func (h *Hub) update(port byte, fn func()) {
	h.lock.Lock()
	fn()
	var frames [][]byte
	if h.connected && h.notifying[port] {
		if value := h.valueLocked(port); value != nil {
			frames = append(frames, lwp.NewPortValue(port, value...))
		}
	}
	notify := h.notify
	h.lock.Unlock()
	h.deliver(notify, frames)
}

// Attach plugs a device into port.
func (h *Hub) Attach(port byte, device lwp.DeviceType) {
	h.lock.Lock()
	h.devices[port] = device
	delete(h.motors, port)
	if hub.IsMotor(device) {
		h.motors[port] = &motor{}
	}
	delete(h.notifying, port)
	notify := h.notify
	h.lock.Unlock()
	h.deliver(notify, [][]byte{lwp.NewAttachedIO(port, lwp.EventAttached, device)})
}

// Detach unplugs the device from port.
func (h *Hub) Detach(port byte) {
	h.lock.Lock()
	_, ok := h.devices[port]
	delete(h.devices, port)
	delete(h.motors, port)
	delete(h.notifying, port)
	notify := h.notify
	h.lock.Unlock()
	if ok {
		h.deliver(notify, [][]byte{lwp.NewAttachedIO(port, lwp.EventDetached, lwp.DeviceNone)})
	}
}

// LED returns the current LED color.
func (h *Hub) LED() uint32 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.led
}

// Position returns the position of the motor on port.
func (h *Hub) Position(port byte) int32 {
	h.lock.Lock()
	defer h.lock.Unlock()
	m := h.motors[port]
	if m == nil {
		return 0
	}
	if m.state == nil {
		return m.position()
	}
	pos, _ := m.state.estimate(h.now())
	return int32(math.Round(pos))
}

// Running tells whether the motor on port is turning.
func (h *Hub) Running(port byte) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	m := h.motors[port]
	return m != nil && m.state != nil && m.state.speed != 0
}
