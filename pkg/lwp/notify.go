package lwp

// Encoders of hub notifications and decoders of host commands, used where
// the hub side is emulated.

// NewAttachedIO encodes a HUB_ATTACHED_IO notification. Hardware and
// software revisions are left zero.
func NewAttachedIO(port byte, event AttachEvent, device DeviceType) []byte {
	if event == EventDetached {
		return []byte{5, HubID, byte(MsgHubAttachedIO), port, byte(event)}
	}
	b := make([]byte, 15)
	b[0], b[1], b[2], b[3], b[4], b[5] = 15, HubID, byte(MsgHubAttachedIO), port, byte(event), byte(device)
	return b
}

// NewPortValue encodes a PORT_VALUE notification.
func NewPortValue(port byte, value ...byte) []byte {
	b := append([]byte{0, HubID, byte(MsgPortValue), port}, value...)
	b[0] = byte(len(b))
	return b
}

// NewFeedback encodes a PORT_OUTPUT_COMMAND_FEEDBACK notification.
func NewFeedback(port byte, fb Feedback) []byte {
	return []byte{5, HubID, byte(MsgPortOutputFeedback), port, byte(fb)}
}

// NewFirmwareVersionUpdate encodes the HUB_PROPERTIES firmware version update.
func NewFirmwareVersionUpdate(v Version) []byte {
	return append([]byte{9, HubID, byte(MsgHubProperties), byte(PropFirmwareVersion), byte(PropOpUpdate)},
		EncodeVersion(v)...)
}

// EncodeVersion packs v the way DecodeVersion unpacks it.
func EncodeVersion(v Version) []byte {
	u := uint32(v.Major&0x7)<<28 | uint32(v.Minor&0xf)<<24 |
		toBCD(v.Bugfix, 2)<<16 | toBCD(v.Build, 4)
	return EncodeInt32(int32(u))
}

func toBCD(n, digits int) uint32 {
	var v uint32
	for i := 0; i < digits; i++ {
		v |= uint32(n%10) << (4 * uint(i))
		n /= 10
	}
	return v
}

// OutputCommand decodes a PORT_OUTPUT_COMMAND frame.
func (f *Frame) OutputCommand() (cmd OutputCommand, err error) {
	if err = f.expect(MsgPortOutputCommand, 2); err != nil {
		return
	}
	cmd.Port = f.Port
	cmd.Flags, cmd.SubCmd = ExecFlags(f.Payload[0]), SubCommand(f.Payload[1])
	cmd.Payload = f.Payload[2:]
	return
}

// InputFormatSetup decodes a PORT_INPUT_FORMAT_SETUP_SINGLE frame.
func (f *Frame) InputFormatSetup() (s InputFormatSetup, err error) {
	if err = f.expect(MsgPortInputFormatSetup, 6); err != nil {
		return
	}
	s.Port, s.Mode = f.Port, f.Payload[0]
	s.Delta = DecodeInt32(f.Payload[1:5])
	s.Notify = f.Payload[5] != 0
	return
}

// HubPropertyRequest decodes the property and operation of a HUB_PROPERTIES frame.
func (f *Frame) HubPropertyRequest() (HubProperty, PropertyOperation, error) {
	if err := f.expect(MsgHubProperties, 2); err != nil {
		return 0, 0, err
	}
	return HubProperty(f.Payload[0]), PropertyOperation(f.Payload[1]), nil
}
