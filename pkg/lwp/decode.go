package lwp

import "fmt"

// Frame is a decoded notification from the hub.
type Frame struct {
	HubID byte
	Type  MessageType
	// Port is valid only if Type.HasPort().
	Port byte
	// Payload contains the bytes after the port ID, or after the message
	// type if the message has no port.
	Payload []byte
}

// Decode parses the common header. Bytes beyond the length byte are dropped.
func Decode(data []byte) (*Frame, error) {
	if len(data) < 3 {
		return nil, ErrShortFrame
	}
	size := int(data[0])
	if size < 3 {
		return nil, ErrShortFrame
	}
	if size > len(data) {
		return nil, ErrLengthMismatch
	}
	data = data[:size]
	f := &Frame{HubID: data[1], Type: MessageType(data[2])}
	if !f.Type.HasPort() {
		f.Payload = data[3:]
		return f, nil
	}
	if len(data) < 4 {
		return nil, ErrShortFrame
	}
	f.Port, f.Payload = data[3], data[4:]
	return f, nil
}

func (f *Frame) expect(t MessageType, minPayload int) error {
	if f.Type != t {
		return &UnexpectedMessageError{Expected: t, Actual: f.Type}
	}
	if len(f.Payload) < minPayload {
		return ErrShortFrame
	}
	return nil
}

// AttachedIO is the content of HUB_ATTACHED_IO.
type AttachedIO struct {
	Port   byte
	Event  AttachEvent
	Device DeviceType
}

// AttachedIO decodes a HUB_ATTACHED_IO frame.
func (f *Frame) AttachedIO() (io AttachedIO, err error) {
	if err = f.expect(MsgHubAttachedIO, 1); err != nil {
		return
	}
	io.Port, io.Event = f.Port, AttachEvent(f.Payload[0])
	if io.Event != EventDetached {
		if len(f.Payload) < 2 {
			return io, ErrShortFrame
		}
		io.Device = DeviceType(f.Payload[1])
	}
	return
}

// Feedback decodes a PORT_OUTPUT_COMMAND_FEEDBACK frame.
func (f *Frame) Feedback() (Feedback, error) {
	if err := f.expect(MsgPortOutputFeedback, 1); err != nil {
		return 0, err
	}
	return Feedback(f.Payload[0]), nil
}

// PortValue returns the raw value bytes of a PORT_VALUE frame.
func (f *Frame) PortValue() ([]byte, error) {
	if err := f.expect(MsgPortValue, 1); err != nil {
		return nil, err
	}
	return f.Payload, nil
}

// ErrorReport is the content of a generic ERROR message.
type ErrorReport struct {
	Command MessageType
	Code    byte
}

func (r ErrorReport) String() string {
	return fmt.Sprintf("%v failed with code 0x%02x", r.Command, r.Code)
}

// ErrorReport decodes an ERROR frame.
func (f *Frame) ErrorReport() (r ErrorReport, err error) {
	if err = f.expect(MsgError, 2); err != nil {
		return
	}
	r.Command, r.Code = MessageType(f.Payload[0]), f.Payload[1]
	return
}

// Version is a hub firmware version.
type Version struct {
	Major  int
	Minor  int
	Bugfix int
	Build  int
}

// DecodeVersion decodes the packed 4-byte little-endian version: 3 bits
// major, 4 bits minor, then bugfix and build in BCD.
func DecodeVersion(b []byte) Version {
	v := uint32(DecodeInt32(b))
	return Version{
		Major:  int(v>>28) & 0x7,
		Minor:  int(v>>24) & 0xf,
		Bugfix: bcd(v>>16, 2),
		Build:  bcd(v, 4),
	}
}

func bcd(v uint32, digits int) int {
	var n, scale int = 0, 1
	for i := 0; i < digits; i++ {
		n += int(v&0xf) * scale
		v >>= 4
		scale *= 10
	}
	return n
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%02d.%04d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// FirmwareVersion decodes a HUB_PROPERTIES firmware version update.
func (f *Frame) FirmwareVersion() (Version, error) {
	if err := f.expect(MsgHubProperties, 6); err != nil {
		return Version{}, err
	}
	if HubProperty(f.Payload[0]) != PropFirmwareVersion || PropertyOperation(f.Payload[1]) != PropOpUpdate {
		return Version{}, fmt.Errorf("not a firmware version update: % x", f.Payload[:2])
	}
	return DecodeVersion(f.Payload[2:6]), nil
}
