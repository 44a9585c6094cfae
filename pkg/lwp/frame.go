package lwp

import "encoding/binary"

// HubID is always 0 for the directly connected hub.
const HubID byte = 0x00

// OutputCommand is a PORT_OUTPUT_COMMAND message.
type OutputCommand struct {
	Port    byte
	Flags   ExecFlags
	SubCmd  SubCommand
	Payload []byte
}

// Bytes returns encoded bytes for sending.
func (c *OutputCommand) Bytes() []byte {
	b := make([]byte, 0, 6+len(c.Payload))
	b = append(b, 0, HubID, byte(MsgPortOutputCommand), c.Port, byte(c.Flags), byte(c.SubCmd))
	b = append(b, c.Payload...)
	b[0] = byte(len(b))
	return b
}

// NewOutputCommand encodes an output command which executes immediately and
// requests command feedback.
func NewOutputCommand(port byte, subCmd SubCommand, payload ...byte) []byte {
	cmd := OutputCommand{
		Port:    port,
		Flags:   ExecuteImmediately | CommandFeedback,
		SubCmd:  subCmd,
		Payload: payload,
	}
	return cmd.Bytes()
}

// InputFormatSetup is a PORT_INPUT_FORMAT_SETUP_SINGLE message.
type InputFormatSetup struct {
	Port   byte
	Mode   byte
	Delta  int32
	Notify bool
}

// Bytes returns encoded bytes for sending.
func (s *InputFormatSetup) Bytes() []byte {
	b := []byte{10, HubID, byte(MsgPortInputFormatSetup), s.Port, s.Mode, 0, 0, 0, 0, 0}
	PutInt32(b[5:9], s.Delta)
	if s.Notify {
		b[9] = 1
	}
	return b
}

// NewInputFormatSetup encodes an input format setup message.
func NewInputFormatSetup(port, mode byte, delta int32, notify bool) []byte {
	s := InputFormatSetup{Port: port, Mode: mode, Delta: delta, Notify: notify}
	return s.Bytes()
}

// NewHubPropertyRequest encodes a HUB_PROPERTIES message.
func NewHubPropertyRequest(prop HubProperty, op PropertyOperation) []byte {
	return []byte{5, HubID, byte(MsgHubProperties), byte(prop), byte(op)}
}

// EncodeInt32 encodes v as 4 little-endian bytes.
func EncodeInt32(v int32) []byte {
	b := make([]byte, 4)
	PutInt32(b, v)
	return b
}

// PutInt32 writes v into the first 4 bytes of b in little-endian.
func PutInt32(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

// DecodeInt32 decodes the first 4 bytes of b as a little-endian signed integer.
func DecodeInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}
