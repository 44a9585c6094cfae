package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/lwp"
	"github.com/robotalks/boost.go/pkg/transport"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock   sync.Mutex
	frames [][]byte
}

func (r *recorder) notify(data []byte) {
	r.lock.Lock()
	r.frames = append(r.frames, data)
	r.lock.Unlock()
}

func (r *recorder) take() [][]byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	frames := r.frames
	r.frames = nil
	return frames
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func connectSim(t *testing.T) (*Hub, *recorder, *testClock) {
	clock := &testClock{now: time.Unix(1000, 0)}
	h := New()
	h.Interval = 0
	h.Now = clock.Now
	rec := &recorder{}
	require.NoError(t, h.Connect(context.Background(), DefaultID))
	require.NoError(t, h.Subscribe(transport.ServiceUUID, transport.CharacteristicUUID, rec.notify))
	return h, rec, clock
}

func write(t *testing.T, h *Hub, frame []byte) {
	require.NoError(t, h.Write(transport.ServiceUUID, transport.CharacteristicUUID, frame))
}

func TestHubConnect(t *testing.T) {
	h := New()
	h.Interval = 0
	ps, err := h.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, []transport.Peripheral{{ID: DefaultID, Name: DefaultName, RSSI: -40}}, ps)

	require.Equal(t, transport.ErrNotFound, h.Connect(context.Background(), "other"))
	require.Equal(t, transport.ErrNotConnected,
		h.Subscribe(transport.ServiceUUID, transport.CharacteristicUUID, func([]byte) {}))
	require.Equal(t, transport.ErrNotConnected,
		h.Write(transport.ServiceUUID, transport.CharacteristicUUID, []byte{5, 0, 1, 3, 5}))

	h, rec, _ := connectSim(t)
	require.True(t, h.IsConnected())
	require.Equal(t, transport.ErrNotFound, h.Write("180a", transport.CharacteristicUUID, []byte{5, 0, 1, 3, 5}))

	var attached []lwp.AttachedIO
	for _, frame := range rec.take() {
		f, err := lwp.Decode(frame)
		require.NoError(t, err)
		io, err := f.AttachedIO()
		require.NoError(t, err)
		attached = append(attached, io)
	}
	require.Equal(t, []lwp.AttachedIO{
		{Port: 1, Event: lwp.EventAttached, Device: lwp.DeviceColor},
		{Port: 2, Event: lwp.EventAttached, Device: lwp.DeviceMotorExternal},
		{Port: PortLED, Event: lwp.EventAttached, Device: lwp.DeviceLED},
		{Port: 55, Event: lwp.EventAttached, Device: lwp.DeviceMotorInternal},
		{Port: 56, Event: lwp.EventAttached, Device: lwp.DeviceMotorInternal},
		{Port: PortTilt, Event: lwp.EventAttached, Device: lwp.DeviceTilt},
		{Port: PortVoltage, Event: lwp.EventAttached, Device: lwp.DeviceVoltage},
		{Port: PortCurrent, Event: lwp.EventAttached, Device: lwp.DeviceCurrent},
	}, attached)

	require.NoError(t, h.Disconnect())
	require.False(t, h.IsConnected())
}

func TestHubNewFirmwarePorts(t *testing.T) {
	h := NewWithFirmware(lwp.Version{Major: 1, Build: 224})
	h.Interval = 0
	rec := &recorder{}
	require.NoError(t, h.Connect(context.Background(), DefaultID))
	require.NoError(t, h.Subscribe(transport.ServiceUUID, transport.CharacteristicUUID, rec.notify))
	frames := rec.take()
	require.Equal(t, lwp.NewAttachedIO(0, lwp.EventAttached, lwp.DeviceMotorInternal), frames[0])

	write(t, h, lwp.NewHubPropertyRequest(lwp.PropFirmwareVersion, lwp.PropOpRequestUpdate))
	require.Equal(t, [][]byte{{9, 0, 0x01, 0x03, 0x06, 0x24, 0x02, 0x00, 0x10}}, rec.take())
}

func TestHubMotorSpeed(t *testing.T) {
	h, rec, clock := connectSim(t)
	rec.take()

	write(t, h, lwp.NewInputFormatSetup(55, lwp.ModeMotorSensor, 1, true))
	require.Equal(t, [][]byte{lwp.NewPortValue(55, 0, 0, 0, 0)}, rec.take())

	write(t, h, lwp.NewOutputCommand(55, lwp.SubCmdStartSpeed, 50, 100, 0))
	require.Equal(t, [][]byte{lwp.NewFeedback(55, lwp.FeedbackInProgress)}, rec.take())
	require.True(t, h.Running(55))

	clock.advance(time.Second)
	h.Step()
	require.Equal(t, [][]byte{lwp.NewPortValue(55, lwp.EncodeInt32(300)...)}, rec.take())
	require.Equal(t, int32(300), h.Position(55))

	h.Step()
	require.Empty(t, rec.take())

	write(t, h, lwp.NewOutputCommand(55, lwp.SubCmdStartSpeed, 0, 0, 0))
	require.Equal(t, [][]byte{lwp.NewFeedback(55, lwp.FeedbackCompleted|lwp.FeedbackIdle)}, rec.take())
	require.False(t, h.Running(55))

	// motors without notifications enabled report nothing.
	write(t, h, lwp.NewOutputCommand(56, lwp.SubCmdStartSpeed, 0x9c, 100, 0))
	rec.take()
	clock.advance(time.Second)
	h.Step()
	require.Empty(t, rec.take())
	require.Equal(t, int32(-600), h.Position(56))
}

func TestHubMotorDegrees(t *testing.T) {
	h, rec, clock := connectSim(t)
	write(t, h, lwp.NewInputFormatSetup(56, lwp.ModeMotorSensor, 1, true))
	rec.take()

	run := append(lwp.EncodeInt32(360), 60, 60, lwp.EndStateBrake, lwp.ProfileNone)
	write(t, h, lwp.NewOutputCommand(56, lwp.SubCmdStartSpeedForDegrees, run...))
	require.Equal(t, [][]byte{lwp.NewFeedback(56, lwp.FeedbackInProgress)}, rec.take())

	clock.advance(500 * time.Millisecond)
	h.Step()
	require.Equal(t, [][]byte{lwp.NewPortValue(56, lwp.EncodeInt32(180)...)}, rec.take())

	clock.advance(time.Second)
	h.Step()
	require.Equal(t, [][]byte{
		lwp.NewPortValue(56, lwp.EncodeInt32(360)...),
		lwp.NewFeedback(56, lwp.FeedbackCompleted|lwp.FeedbackIdle),
	}, rec.take())
	require.False(t, h.Running(56))

	write(t, h, lwp.NewOutputCommand(56, lwp.SubCmdStartSpeedForDegrees, run...))
	rec.take()
	write(t, h, lwp.NewOutputCommand(56, lwp.SubCmdStartSpeed, 0, 0, 0))
	require.Equal(t, [][]byte{
		lwp.NewFeedback(56, lwp.FeedbackDiscarded|lwp.FeedbackCompleted|lwp.FeedbackIdle),
	}, rec.take())
}

func TestHubSensorsAndLED(t *testing.T) {
	h, rec, _ := connectSim(t)
	rec.take()

	h.SetTilt(-20, 5)
	require.Empty(t, rec.take())
	write(t, h, lwp.NewInputFormatSetup(PortTilt, lwp.ModeTilt, 1, true))
	require.Equal(t, [][]byte{lwp.NewPortValue(PortTilt, 0xec, 5)}, rec.take())
	h.SetTilt(0, 30)
	require.Equal(t, [][]byte{lwp.NewPortValue(PortTilt, 0, 30)}, rec.take())

	write(t, h, lwp.NewInputFormatSetup(1, lwp.ModeColor, 1, true))
	require.Equal(t, [][]byte{lwp.NewPortValue(1, 255)}, rec.take())
	h.SetColor(hub.ColorYellow)
	require.Equal(t, [][]byte{lwp.NewPortValue(1, 7)}, rec.take())

	write(t, h, lwp.NewOutputCommand(PortLED, lwp.SubCmdWriteDirectModeData, lwp.ModeLED, 0x12, 0x34, 0x56))
	require.Equal(t, [][]byte{lwp.NewFeedback(PortLED, lwp.FeedbackCompleted|lwp.FeedbackIdle)}, rec.take())
	require.Equal(t, uint32(0x123456), h.LED())

	write(t, h, lwp.NewOutputCommand(PortTilt, lwp.SubCmdStartSpeed, 50, 100, 0))
	require.Equal(t, [][]byte{{5, 0, 0x05, 0x81, 0x06}}, rec.take())
	write(t, h, lwp.NewInputFormatSetup(9, 0, 1, true))
	require.Equal(t, [][]byte{{5, 0, 0x05, 0x41, 0x07}}, rec.take())

	h.Detach(1)
	require.Equal(t, [][]byte{{5, 0, 0x04, 1, 0}}, rec.take())
	h.Attach(1, lwp.DeviceTilt)
	require.Equal(t, [][]byte{lwp.NewAttachedIO(1, lwp.EventAttached, lwp.DeviceTilt)}, rec.take())
}

func TestControllerWithSimulatedHub(t *testing.T) {
	sim := New()
	sim.Interval = 5 * time.Millisecond
	ctl := hub.NewController(sim)
	loop := fx.NewLoop()
	loop.Interval = 10 * time.Millisecond
	loop.Add(ctl)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	attached := make(chan byte, 16)
	ctl.Subscribe(func(ev hub.Event) {
		if ev.Kind == hub.EventAttached {
			attached <- ev.Port
		}
	})
	require.NoError(t, ctl.Connect(ctx, DefaultID))
	for n := 0; n < 8; n++ {
		select {
		case <-attached:
		case <-time.After(time.Second):
			t.Fatal("devices not attached")
		}
	}

	completions, err := ctl.MotorOnForRotation(ctx, "A", 0.25)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, completions[0].Wait(waitCtx))
	require.Equal(t, int32(90), sim.Position(55))

	require.Eventually(t, func() bool {
		pos, err := ctl.MotorPosition(ctx, "A")
		return err == nil && pos == 90
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ctl.SetLED(ctx, 0xff0000))
	require.Eventually(t, func() bool { return sim.LED() == 0xff0000 }, time.Second, 10*time.Millisecond)

	sim.Drop()
	require.Eventually(t, func() bool { return !ctl.IsConnected() }, time.Second, 10*time.Millisecond)
}
