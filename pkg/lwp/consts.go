package lwp

import "fmt"

// MessageType is the third byte of every message.
type MessageType byte

// Message types.
const (
	MsgHubProperties        MessageType = 0x01
	MsgHubAttachedIO        MessageType = 0x04
	MsgError                MessageType = 0x05
	MsgPortInputFormatSetup MessageType = 0x41
	MsgPortValue            MessageType = 0x45
	MsgPortOutputCommand    MessageType = 0x81
	MsgPortOutputFeedback   MessageType = 0x82
)

var messageTypeNames = map[MessageType]string{
	MsgHubProperties:        "HUB_PROPERTIES",
	MsgHubAttachedIO:        "HUB_ATTACHED_IO",
	MsgError:                "ERROR",
	MsgPortInputFormatSetup: "PORT_INPUT_FORMAT_SETUP_SINGLE",
	MsgPortValue:            "PORT_VALUE",
	MsgPortOutputCommand:    "OUTPUT",
	MsgPortOutputFeedback:   "PORT_OUTPUT_COMMAND_FEEDBACK",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(0x%02x)", byte(t))
}

// HasPort indicates the message carries a port ID at byte 3.
func (t MessageType) HasPort() bool {
	switch t {
	case MsgHubAttachedIO, MsgPortInputFormatSetup, MsgPortValue,
		MsgPortOutputCommand, MsgPortOutputFeedback:
		return true
	}
	return false
}

// SubCommand selects the output sub-command.
type SubCommand byte

// Output sub-commands.
const (
	SubCmdStartSpeed           SubCommand = 0x07
	SubCmdStartSpeedForDegrees SubCommand = 0x0B
	SubCmdWriteDirectModeData  SubCommand = 0x51
)

// ExecFlags combines startup and completion information of an output command.
type ExecFlags byte

// Startup and completion flags. A startup flag and a completion flag occupy
// different bits and are combined with bitwise OR.
const (
	BufferIfNecessary  ExecFlags = 0x00
	ExecuteImmediately ExecFlags = 0x10
	NoAction           ExecFlags = 0x00
	CommandFeedback    ExecFlags = 0x01
)

// End states of a motor after a bounded run, and the FLOAT speed value.
const (
	EndStateFloat byte = 0
	EndStateHold  byte = 126
	EndStateBrake byte = 127
)

// Acceleration profile flags.
const (
	ProfileNone         byte = 0x00
	ProfileAcceleration byte = 0x01
	ProfileDeceleration byte = 0x02
)

// Feedback is the bitmask reported in PORT_OUTPUT_COMMAND_FEEDBACK.
type Feedback byte

// Feedback bits.
const (
	FeedbackInProgress Feedback = 0x01
	FeedbackCompleted  Feedback = 0x02
	FeedbackDiscarded  Feedback = 0x04
	FeedbackIdle       Feedback = 0x08
	FeedbackBusyOrFull Feedback = 0x10
)

// InProgress indicates the current command is still executing.
func (f Feedback) InProgress() bool {
	return f&FeedbackInProgress != 0
}

// Finished indicates the last command either completed or was discarded
// and nothing is in progress. The idle bit is not required.
func (f Feedback) Finished() bool {
	return !f.InProgress() && f&(FeedbackCompleted|FeedbackDiscarded) != 0
}

func (f Feedback) String() string {
	return fmt.Sprintf("Feedback(0x%02x)", byte(f))
}

// DeviceType identifies the device attached to a port.
type DeviceType byte

// Device types.
const (
	DeviceNone          DeviceType = 0x00
	DeviceMotorWedo     DeviceType = 0x01
	DeviceButton        DeviceType = 0x05
	DeviceVoltage       DeviceType = 0x14
	DeviceCurrent       DeviceType = 0x15
	DeviceLED           DeviceType = 0x17
	DeviceColor         DeviceType = 0x25
	DeviceMotorExternal DeviceType = 0x26
	DeviceMotorInternal DeviceType = 0x27
	DeviceTilt          DeviceType = 0x28
)

var deviceTypeNames = map[DeviceType]string{
	DeviceNone:          "none",
	DeviceMotorWedo:     "motor-wedo",
	DeviceButton:        "button",
	DeviceVoltage:       "voltage",
	DeviceCurrent:       "current",
	DeviceLED:           "led",
	DeviceColor:         "color",
	DeviceMotorExternal: "motor-external",
	DeviceMotorInternal: "motor-internal",
	DeviceTilt:          "tilt",
}

func (d DeviceType) String() string {
	if name, ok := deviceTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(d))
}

// Known indicates the device type is one of the recognized types.
func (d DeviceType) Known() bool {
	_, ok := deviceTypeNames[d]
	return ok && d != DeviceNone
}

// Input modes used when subscribing to port values.
const (
	ModeTilt        byte = 0
	ModeLED         byte = 1
	ModeColor       byte = 0
	ModeMotorSensor byte = 2
	ModeUnknown     byte = 0
)

// AttachEvent is byte 4 of HUB_ATTACHED_IO.
type AttachEvent byte

// Attach events.
const (
	EventDetached        AttachEvent = 0x00
	EventAttached        AttachEvent = 0x01
	EventAttachedVirtual AttachEvent = 0x02
)

func (e AttachEvent) String() string {
	switch e {
	case EventDetached:
		return "detached"
	case EventAttached:
		return "attached"
	case EventAttachedVirtual:
		return "attached-virtual"
	}
	return fmt.Sprintf("AttachEvent(0x%02x)", byte(e))
}

// HubProperty selects a hub property.
type HubProperty byte

// Hub properties.
const (
	PropFirmwareVersion HubProperty = 0x03
)

// PropertyOperation is the operation on a hub property.
type PropertyOperation byte

// Hub property operations.
const (
	PropOpRequestUpdate PropertyOperation = 0x05
	PropOpUpdate        PropertyOperation = 0x06
)
