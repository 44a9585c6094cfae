// Package mqtt bridges a hub controller to a MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"
	"github.com/robotalks/boost.go/pkg/hub"
)

// Command ops accepted on <hub>/cmd.
const (
	OpOn        = "on"
	OpOff       = "off"
	OpFor       = "for"
	OpRotate    = "rotate"
	OpPower     = "power"
	OpDirection = "direction"
	OpLED       = "led"
	OpStop      = "stop"
)

// Command is the JSON payload of <hub>/cmd.
type Command struct {
	Op        string  `json:"op"`
	Motor     string  `json:"motor,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Direction string  `json:"direction,omitempty"`
	RGB       string  `json:"rgb,omitempty"`
}

// Hub is the part of hub.Controller driven by the bridge.
type Hub interface {
	Subscribe(hub.EventHandler)
	MotorOn(ctx context.Context, label string) error
	MotorOff(ctx context.Context, label string) error
	MotorOnFor(ctx context.Context, label string, d time.Duration) error
	MotorOnForRotation(ctx context.Context, label string, rotations float64) ([]*hub.Completion, error)
	SetMotorPower(ctx context.Context, label string, power int) error
	SetMotorDirection(ctx context.Context, label string, direction string) error
	SetLED(ctx context.Context, rgb uint32) error
	StopAllMotors(ctx context.Context) error
}

// Bridge publishes hub events and executes commands received from MQTT.
type Bridge struct {
	// Name is the topic namespace of the hub.
	Name string
	// CommandTimeout bounds the execution of a command.
	CommandTimeout time.Duration
	// RotationTimeout bounds waiting for a rotation to complete.
	RotationTimeout time.Duration

	hub    Hub
	pubsub PubSub
}

// Default timeouts.
const (
	DefaultCommandTimeout  = time.Second
	DefaultRotationTimeout = time.Minute
)

// NewBridge creates a Bridge.
func NewBridge(name string, h Hub, ps PubSub) *Bridge {
	return &Bridge{
		Name:            name,
		CommandTimeout:  DefaultCommandTimeout,
		RotationTimeout: DefaultRotationTimeout,
		hub:             h,
		pubsub:          ps,
	}
}

// Start subscribes to hub events and the command topic.
func (b *Bridge) Start() error {
	b.hub.Subscribe(b.onEvent)
	return b.pubsub.Subscribe(b.topic("cmd"), b.onCommand)
}

func (b *Bridge) topic(parts ...string) string {
	return b.Name + "/" + strings.Join(parts, "/")
}

func (b *Bridge) publish(topic string, msg proto.Message, retain bool) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		glog.Errorf("marshal %s: %v", topic, err)
		return
	}
	b.pubsub.Publish(topic, payload, retain)
}

func (b *Bridge) onEvent(ev hub.Event) {
	port := strconv.Itoa(int(ev.Port))
	switch ev.Kind {
	case hub.EventConnected:
		b.publish(b.topic("connected"), &wrappers.BoolValue{Value: true}, true)
	case hub.EventDisconnected:
		b.publish(b.topic("connected"), &wrappers.BoolValue{Value: false}, true)
	case hub.EventAttached:
		b.publish(b.topic("port", port, "device"), &wrappers.StringValue{Value: ev.Device.String()}, false)
	case hub.EventDetached:
		b.publish(b.topic("port", port, "device"), &wrappers.StringValue{Value: "none"}, false)
	case hub.EventPosition:
		b.publish(b.topic("port", port, "position"), &wrappers.Int32Value{Value: ev.Position}, false)
	case hub.EventTilt:
		b.publish(b.topic("tilt", "x"), &wrappers.Int32Value{Value: int32(ev.TiltX)}, false)
		b.publish(b.topic("tilt", "y"), &wrappers.Int32Value{Value: int32(ev.TiltY)}, false)
	case hub.EventColor:
		b.publish(b.topic("color"), &wrappers.StringValue{Value: ev.Color.String()}, false)
	case hub.EventFirmware:
		b.publish(b.topic("firmware"), &wrappers.StringValue{Value: ev.Version.String()}, true)
	}
}

func (b *Bridge) onCommand(topic string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		glog.Warningf("%s: invalid command: %v", topic, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.CommandTimeout)
	defer cancel()
	if err := b.Execute(ctx, &cmd); err != nil {
		glog.Warningf("%s: %s: %v", topic, cmd.Op, err)
	}
}

// Execute executes a command on the hub.
func (b *Bridge) Execute(ctx context.Context, cmd *Command) error {
	switch strings.ToLower(cmd.Op) {
	case OpOn:
		return b.hub.MotorOn(ctx, cmd.Motor)
	case OpOff:
		return b.hub.MotorOff(ctx, cmd.Motor)
	case OpFor:
		return b.hub.MotorOnFor(ctx, cmd.Motor, time.Duration(cmd.Value*float64(time.Second)))
	case OpRotate:
		completions, err := b.hub.MotorOnForRotation(ctx, cmd.Motor, cmd.Value)
		if err == nil && len(completions) > 0 {
			go b.waitRotation(strings.ToUpper(cmd.Motor), completions)
		}
		return err
	case OpPower:
		return b.hub.SetMotorPower(ctx, cmd.Motor, int(cmd.Value))
	case OpDirection:
		return b.hub.SetMotorDirection(ctx, cmd.Motor, cmd.Direction)
	case OpLED:
		rgb, err := hub.ParseRGB(cmd.RGB)
		if err != nil {
			return err
		}
		return b.hub.SetLED(ctx, rgb)
	case OpStop:
		return b.hub.StopAllMotors(ctx)
	}
	return fmt.Errorf("unknown op %q", cmd.Op)
}

func (b *Bridge) waitRotation(label string, completions []*hub.Completion) {
	ctx, cancel := context.WithTimeout(context.Background(), b.RotationTimeout)
	defer cancel()
	err := hub.WaitAll(ctx, completions...)
	if err != nil {
		glog.V(2).Infof("rotation of %s: %v", label, err)
	}
	b.publish(b.topic("motor", label, "done"), &wrappers.BoolValue{Value: err == nil}, false)
}
