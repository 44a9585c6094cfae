package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"
	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/lwp"
	"github.com/robotalks/boost.go/pkg/transport/sim"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakePubSub struct {
	lock     sync.Mutex
	handlers map[string]Handler
	pubCh    chan published
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string]Handler), pubCh: make(chan published, 256)}
}

func (p *fakePubSub) Publish(topic string, payload []byte, retain bool) {
	p.pubCh <- published{topic: topic, payload: payload, retain: retain}
}

func (p *fakePubSub) Subscribe(pattern string, handler Handler) error {
	p.lock.Lock()
	p.handlers[pattern] = handler
	p.lock.Unlock()
	return nil
}

func (p *fakePubSub) deliver(t *testing.T, topic, payload string) {
	p.lock.Lock()
	h := p.handlers[topic]
	p.lock.Unlock()
	require.NotNil(t, h, "no subscription on %s", topic)
	h(topic, []byte(payload))
}

func (p *fakePubSub) expect(t *testing.T, topic string, msg proto.Message) published {
	for {
		select {
		case pub := <-p.pubCh:
			if pub.topic != topic {
				continue
			}
			require.NoError(t, proto.Unmarshal(pub.payload, msg))
			return pub
		case <-time.After(2 * time.Second):
			t.Fatalf("%s not published", topic)
		}
	}
}

type call struct {
	op    string
	label string
	arg   interface{}
}

type fakeHub struct {
	calls   []call
	handler hub.EventHandler
}

func (h *fakeHub) record(op, label string, arg interface{}) error {
	h.calls = append(h.calls, call{op: op, label: label, arg: arg})
	return nil
}

func (h *fakeHub) Subscribe(handler hub.EventHandler) { h.handler = handler }
func (h *fakeHub) MotorOn(ctx context.Context, label string) error {
	return h.record(OpOn, label, nil)
}
func (h *fakeHub) MotorOff(ctx context.Context, label string) error {
	return h.record(OpOff, label, nil)
}
func (h *fakeHub) MotorOnFor(ctx context.Context, label string, d time.Duration) error {
	return h.record(OpFor, label, d)
}
func (h *fakeHub) MotorOnForRotation(ctx context.Context, label string, rotations float64) ([]*hub.Completion, error) {
	return nil, h.record(OpRotate, label, rotations)
}
func (h *fakeHub) SetMotorPower(ctx context.Context, label string, power int) error {
	return h.record(OpPower, label, power)
}
func (h *fakeHub) SetMotorDirection(ctx context.Context, label string, direction string) error {
	return h.record(OpDirection, label, direction)
}
func (h *fakeHub) SetLED(ctx context.Context, rgb uint32) error {
	return h.record(OpLED, "", rgb)
}
func (h *fakeHub) StopAllMotors(ctx context.Context) error {
	return h.record(OpStop, "", nil)
}

func TestBridgeCommands(t *testing.T) {
	testCases := []struct {
		payload string
		expect  *call
	}{
		{`{"op":"on","motor":"A"}`, &call{OpOn, "A", nil}},
		{`{"op":"OFF","motor":"ab"}`, &call{OpOff, "ab", nil}},
		{`{"op":"for","motor":"B","value":1.5}`, &call{OpFor, "B", 1500 * time.Millisecond}},
		{`{"op":"rotate","motor":"D","value":-2}`, &call{OpRotate, "D", -2.0}},
		{`{"op":"power","motor":"all","value":80}`, &call{OpPower, "all", 80}},
		{`{"op":"direction","motor":"A","direction":"that way"}`, &call{OpDirection, "A", "that way"}},
		{`{"op":"led","rgb":"#ff8000"}`, &call{OpLED, "", uint32(0xff8000)}},
		{`{"op":"led","rgb":"0x0000ff"}`, &call{OpLED, "", uint32(0xff)}},
		{`{"op":"stop"}`, &call{OpStop, "", nil}},
		{`{"op":"led","rgb":"#1000000"}`, nil},
		{`{"op":"led","rgb":"red"}`, nil},
		{`{"op":"jump"}`, nil},
		{`not json`, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.payload, func(t *testing.T) {
			h, ps := &fakeHub{}, newFakePubSub()
			b := NewBridge("hub1", h, ps)
			require.NoError(t, b.Start())
			require.NotNil(t, h.handler)
			ps.deliver(t, "hub1/cmd", tc.payload)
			if tc.expect == nil {
				require.Empty(t, h.calls)
				return
			}
			require.Equal(t, []call{*tc.expect}, h.calls)
		})
	}
}

func TestBridgeEvents(t *testing.T) {
	h, ps := &fakeHub{}, newFakePubSub()
	require.NoError(t, NewBridge("hub1", h, ps).Start())

	h.handler(hub.Event{Kind: hub.EventConnected})
	var connected wrappers.BoolValue
	require.True(t, ps.expect(t, "hub1/connected", &connected).retain)
	require.True(t, connected.Value)

	h.handler(hub.Event{Kind: hub.EventAttached, Port: 55, Device: lwp.DeviceMotorInternal})
	var device wrappers.StringValue
	ps.expect(t, "hub1/port/55/device", &device)
	require.Equal(t, "motor-internal", device.Value)

	h.handler(hub.Event{Kind: hub.EventPosition, Port: 55, Position: -90})
	var pos wrappers.Int32Value
	ps.expect(t, "hub1/port/55/position", &pos)
	require.Equal(t, int32(-90), pos.Value)

	h.handler(hub.Event{Kind: hub.EventTilt, TiltX: -20, TiltY: 5})
	var x, y wrappers.Int32Value
	ps.expect(t, "hub1/tilt/x", &x)
	ps.expect(t, "hub1/tilt/y", &y)
	require.Equal(t, int32(-20), x.Value)
	require.Equal(t, int32(5), y.Value)

	h.handler(hub.Event{Kind: hub.EventColor, Color: hub.ColorRed})
	var color wrappers.StringValue
	ps.expect(t, "hub1/color", &color)
	require.Equal(t, hub.ColorRed.String(), color.Value)

	h.handler(hub.Event{Kind: hub.EventDetached, Port: 55})
	ps.expect(t, "hub1/port/55/device", &device)
	require.Equal(t, "none", device.Value)

	h.handler(hub.Event{Kind: hub.EventDisconnected})
	ps.expect(t, "hub1/connected", &connected)
	require.False(t, connected.Value)
}

func TestBridgeWithSimulatedHub(t *testing.T) {
	simHub := sim.New()
	simHub.Interval = 5 * time.Millisecond
	ctl := hub.NewController(simHub)
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

	ps := newFakePubSub()
	require.NoError(t, NewBridge("hub1", ctl, ps).Start())
	require.NoError(t, ctl.Connect(ctx, sim.DefaultID))

	var connected wrappers.BoolValue
	ps.expect(t, "hub1/connected", &connected)
	require.True(t, connected.Value)
	var device wrappers.StringValue
	ps.expect(t, "hub1/port/55/device", &device)
	require.Equal(t, "motor-internal", device.Value)

	require.Eventually(t, func() bool {
		st, err := ctl.Status(ctx)
		return err == nil && len(st.Ports) == 8
	}, 2*time.Second, 10*time.Millisecond)

	ps.deliver(t, "hub1/cmd", `{"op":"rotate","motor":"A","value":0.5}`)
	var rotated wrappers.BoolValue
	ps.expect(t, "hub1/motor/A/done", &rotated)
	require.True(t, rotated.Value)
	require.Equal(t, int32(180), simHub.Position(55))
}
