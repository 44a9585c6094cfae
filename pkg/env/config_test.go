package env

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/transport/ble"
	"github.com/robotalks/boost.go/pkg/transport/scratchlink"
	"github.com/robotalks/boost.go/pkg/transport/sim"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	conf, err := NewConfig()
	require.NoError(t, err)
	return conf
}

func TestConfigLoad(t *testing.T) {
	conf := newTestConfig(t)
	require.Equal(t, hub.DefaultPower, conf.Hub.MotorPower)
	require.NoError(t, conf.Load([]byte(`
transport: scratchlink
device: hub-1
scratch_link_url: ws://localhost:1234/scratch/ble
name: kitchen
hub:
  motor_power: 80
`)))
	require.Equal(t, TransportScratchLink, conf.Transport)
	require.Equal(t, "hub-1", conf.Device)
	require.Equal(t, "kitchen", conf.HubName())
	require.Equal(t, 80, conf.Hub.MotorPower)
	require.Equal(t, defaultConfig.MQTTBrokerURL, conf.MQTTBrokerURL)
	// the defaults are untouched.
	require.Equal(t, hub.DefaultPower, Default().Hub.MotorPower)

	require.Error(t, conf.Load([]byte("transport: [")))
}

func TestConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("BOOST_TRANSPORT", "sim")
	t.Setenv("BOOST_MOTOR_POWER", "30")
	dir := t.TempDir()
	fn := filepath.Join(dir, "boost.yaml")
	require.NoError(t, ioutil.WriteFile(fn, []byte("transport: ble\nhub:\n  motor_power: 90\n"), 0644))

	conf := newTestConfig(t)
	require.NoError(t, conf.LoadFile(fn))
	require.Equal(t, TransportSim, conf.Transport)
	require.Equal(t, 30, conf.Hub.MotorPower)

	require.True(t, os.IsNotExist(conf.LoadFile(filepath.Join(dir, "missing.yaml"))))
}

func TestNewTransport(t *testing.T) {
	conf := newTestConfig(t)
	conf.Transport = "BLE"
	tr, err := conf.NewTransport()
	require.NoError(t, err)
	require.IsType(t, &ble.Transport{}, tr)

	conf.Transport = TransportScratchLink
	conf.ScratchLinkURL = "ws://example:20111/scratch/ble"
	tr, err = conf.NewTransport()
	require.NoError(t, err)
	require.Equal(t, "ws://example:20111/scratch/ble", tr.(*scratchlink.Transport).URL)

	conf.Transport = TransportSim
	tr, err = conf.NewTransport()
	require.NoError(t, err)
	require.IsType(t, &sim.Hub{}, tr)

	conf.Transport = "usb"
	_, err = conf.NewTransport()
	require.Error(t, err)
	_, err = conf.NewController()
	require.Error(t, err)
}

func TestConnectFirstDiscovered(t *testing.T) {
	conf := newTestConfig(t)
	conf.Transport = TransportSim
	conf.Device = ""
	ctl, err := conf.NewController()
	require.NoError(t, err)

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

	id, err := conf.Connect(ctx, ctl)
	require.NoError(t, err)
	require.Equal(t, sim.DefaultID, id)
	require.True(t, ctl.IsConnected())

	conf.Device = "other"
	_, err = conf.Connect(ctx, ctl)
	require.Error(t, err)
}

func TestMachineID(t *testing.T) {
	id := MachineID()
	require.NotEmpty(t, id)
	require.LessOrEqual(t, len(id), machineIDLen)
	require.Equal(t, id, MachineID())
}
