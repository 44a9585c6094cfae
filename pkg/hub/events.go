package hub

import "github.com/robotalks/boost.go/pkg/lwp"

// EventKind is the kind of Event.
type EventKind int

// Event kinds.
const (
	EventConnected EventKind = iota
	EventDisconnected
	EventAttached
	EventDetached
	EventPosition
	EventTilt
	EventColor
	EventFirmware
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventPosition:
		return "position"
	case EventTilt:
		return "tilt"
	case EventColor:
		return "color"
	case EventFirmware:
		return "firmware"
	}
	return "unknown"
}

// Event is a state change of the hub. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Port     byte
	Device   lwp.DeviceType
	Position int32
	TiltX    int
	TiltY    int
	Color    Color
	Version  lwp.Version
}

// EventHandler receives events on the goroutine running the hub logic.
// It must not block.
type EventHandler func(Event)
