package lwp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		err    error
		expect *Frame
	}{
		{"empty", nil, ErrShortFrame, nil},
		{"header only", []byte{2, 0}, ErrShortFrame, nil},
		{"zero length", []byte{0, 0, 0x45, 1}, ErrShortFrame, nil},
		{"length exceeds data", []byte{8, 0, 0x45, 1, 0}, ErrLengthMismatch, nil},
		{"port missing", []byte{3, 0, 0x45}, ErrShortFrame, nil},
		{
			"port value",
			[]byte{8, 0, 0x45, 55, 2, 0, 0, 0},
			nil,
			&Frame{Type: MsgPortValue, Port: 55, Payload: []byte{2, 0, 0, 0}},
		},
		{
			"trailing bytes dropped",
			[]byte{5, 0, 0x45, 58, 9, 0xaa, 0xbb},
			nil,
			&Frame{Type: MsgPortValue, Port: 58, Payload: []byte{9}},
		},
		{
			"no port",
			[]byte{5, 0, 0x05, 0x81, 0x06},
			nil,
			&Frame{Type: MsgError, Payload: []byte{0x81, 0x06}},
		},
		{
			"unknown type keeps payload",
			[]byte{4, 0, 0x7f, 9},
			nil,
			&Frame{Type: MessageType(0x7f), Payload: []byte{9}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Decode(tc.in)
			if tc.err != nil {
				require.Equal(t, tc.err, err)
				require.Nil(t, f)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, f)
		})
	}
}

func TestAttachedIO(t *testing.T) {
	f, err := Decode([]byte{15, 0, 0x04, 55, 0x01, 0x27, 0, 0, 0, 0, 0x10, 0, 0, 0, 0x10})
	require.NoError(t, err)
	io, err := f.AttachedIO()
	require.NoError(t, err)
	require.Equal(t, AttachedIO{Port: 55, Event: EventAttached, Device: DeviceMotorInternal}, io)

	f, err = Decode([]byte{5, 0, 0x04, 55, 0x00})
	require.NoError(t, err)
	io, err = f.AttachedIO()
	require.NoError(t, err)
	require.Equal(t, AttachedIO{Port: 55, Event: EventDetached}, io)

	f, err = Decode([]byte{5, 0, 0x04, 55, 0x01})
	require.NoError(t, err)
	_, err = f.AttachedIO()
	require.Equal(t, ErrShortFrame, err)

	f, err = Decode([]byte{5, 0, 0x82, 55, 0x0a})
	require.NoError(t, err)
	_, err = f.AttachedIO()
	require.Equal(t, &UnexpectedMessageError{Expected: MsgHubAttachedIO, Actual: MsgPortOutputFeedback}, err)
}

func TestFeedback(t *testing.T) {
	testCases := []struct {
		fb         Feedback
		inProgress bool
		finished   bool
	}{
		{FeedbackInProgress, true, false},
		{FeedbackCompleted | FeedbackIdle, false, true},
		{FeedbackDiscarded | FeedbackIdle, false, true},
		{FeedbackCompleted, false, true},
		{FeedbackDiscarded, false, true},
		{FeedbackInProgress | FeedbackDiscarded, true, false},
		{FeedbackIdle, false, false},
		{FeedbackBusyOrFull, false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.fb.String(), func(t *testing.T) {
			f, err := Decode([]byte{5, 0, 0x82, 1, byte(tc.fb)})
			require.NoError(t, err)
			fb, err := f.Feedback()
			require.NoError(t, err)
			require.Equal(t, tc.fb, fb)
			require.Equal(t, tc.inProgress, fb.InProgress())
			require.Equal(t, tc.finished, fb.Finished())
		})
	}
}

func TestErrorReport(t *testing.T) {
	f, err := Decode([]byte{5, 0, 0x05, 0x81, 0x06})
	require.NoError(t, err)
	r, err := f.ErrorReport()
	require.NoError(t, err)
	require.Equal(t, ErrorReport{Command: MsgPortOutputCommand, Code: 6}, r)
	require.Equal(t, "OUTPUT failed with code 0x06", r.String())
}

func TestFirmwareVersion(t *testing.T) {
	f, err := Decode([]byte{9, 0, 0x01, 0x03, 0x06, 0x24, 0x02, 0x00, 0x10})
	require.NoError(t, err)
	v, err := f.FirmwareVersion()
	require.NoError(t, err)
	require.Equal(t, Version{Major: 1, Minor: 0, Bugfix: 0, Build: 224}, v)
	require.Equal(t, "1.0.00.0224", v.String())

	require.Equal(t, Version{Major: 2, Minor: 3, Bugfix: 15, Build: 1234},
		DecodeVersion([]byte{0x34, 0x12, 0x15, 0x23}))

	f, err = Decode([]byte{9, 0, 0x01, 0x04, 0x06, 0, 0, 0, 0})
	require.NoError(t, err)
	_, err = f.FirmwareVersion()
	require.Error(t, err)
}

func TestDeviceTypeString(t *testing.T) {
	require.Equal(t, "motor-internal", DeviceMotorInternal.String())
	require.Equal(t, "unknown(0x42)", DeviceType(0x42).String())
	require.True(t, DeviceTilt.Known())
	require.False(t, DeviceNone.Known())
	require.False(t, DeviceType(0x42).Known())
	require.Equal(t, "PORT_VALUE", MsgPortValue.String())
	require.Equal(t, "MessageType(0x7f)", MessageType(0x7f).String())
}
