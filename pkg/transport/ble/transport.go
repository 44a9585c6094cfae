// Package ble reaches the hub through the Bluetooth adapter of the host.
package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/transport"
	"tinygo.org/x/bluetooth"
)

// DefaultScanDuration is how long Discover scans.
const DefaultScanDuration = 5 * time.Second

// Transport implements transport.Transport with tinygo.org/x/bluetooth.
type Transport struct {
	Adapter      *bluetooth.Adapter
	ScanDuration time.Duration

	lock      sync.Mutex
	enabled   bool
	found     map[string]bluetooth.Address
	device    *bluetooth.Device
	chars     map[string]bluetooth.DeviceCharacteristic
	connected bool
}

// New creates a Transport on the default adapter.
func New() *Transport {
	return &Transport{
		Adapter:      bluetooth.DefaultAdapter,
		ScanDuration: DefaultScanDuration,
		found:        make(map[string]bluetooth.Address),
	}
}

func (t *Transport) enable() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.enabled {
		return nil
	}
	if err := t.Adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter error: %v", err)
	}
	t.Adapter.SetConnectHandler(t.onConnectEvent)
	t.enabled = true
	return nil
}

func (t *Transport) onConnectEvent(device bluetooth.Device, connected bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if connected || t.device == nil || t.device.Address.String() != device.Address.String() {
		return
	}
	glog.Warningf("ble: %s disconnected", device.Address.String())
	t.connected = false
}

// scan runs until ctx is done or stop returns true.
func (t *Transport) scan(ctx context.Context, stop func(transport.Peripheral) bool) error {
	if err := t.enable(); err != nil {
		return err
	}
	service, err := bluetooth.ParseUUID(transport.ServiceUUID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = fx.RunWithContextCancel(ctx, func() { t.Adapter.StopScan() }, func() error {
		return t.Adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(service) {
				return
			}
			p := transport.Peripheral{
				ID:   result.Address.String(),
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			}
			t.lock.Lock()
			t.found[p.ID] = result.Address
			t.lock.Unlock()
			if stop(p) {
				cancel()
			}
		})
	})
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// Discover implements transport.Transport.
func (t *Transport) Discover(ctx context.Context) ([]transport.Peripheral, error) {
	ctx, cancel := context.WithTimeout(ctx, t.ScanDuration)
	defer cancel()
	var lock sync.Mutex
	var found []transport.Peripheral
	seen := make(map[string]bool)
	err := t.scan(ctx, func(p transport.Peripheral) bool {
		lock.Lock()
		defer lock.Unlock()
		if !seen[p.ID] {
			seen[p.ID] = true
			found = append(found, p)
		}
		return false
	})
	lock.Lock()
	defer lock.Unlock()
	return found, err
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context, id string) error {
	t.lock.Lock()
	addr, ok := t.found[id]
	t.lock.Unlock()
	if !ok {
		scanCtx, cancel := context.WithTimeout(ctx, t.ScanDuration)
		err := t.scan(scanCtx, func(p transport.Peripheral) bool { return p.ID == id })
		cancel()
		if err != nil {
			return err
		}
		t.lock.Lock()
		addr, ok = t.found[id]
		t.lock.Unlock()
		if !ok {
			return transport.ErrNotFound
		}
	}
	device, err := t.Adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s error: %v", id, err)
	}
	chars, err := discoverCharacteristics(device)
	if err != nil {
		device.Disconnect()
		return err
	}
	t.lock.Lock()
	t.device, t.chars, t.connected = &device, chars, true
	t.lock.Unlock()
	glog.Infof("ble: connected to %s", id)
	return nil
}

func discoverCharacteristics(device bluetooth.Device) (map[string]bluetooth.DeviceCharacteristic, error) {
	serviceUUID, err := bluetooth.ParseUUID(transport.ServiceUUID)
	if err != nil {
		return nil, err
	}
	charUUID, err := bluetooth.ParseUUID(transport.CharacteristicUUID)
	if err != nil {
		return nil, err
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("discover service %s error: %v", transport.ServiceUUID, err)
	}
	found, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(found) == 0 {
		return nil, fmt.Errorf("discover characteristic %s error: %v", transport.CharacteristicUUID, err)
	}
	return map[string]bluetooth.DeviceCharacteristic{
		transport.CharacteristicUUID: found[0],
	}, nil
}

// Disconnect implements transport.Transport.
func (t *Transport) Disconnect() error {
	t.lock.Lock()
	device := t.device
	t.device, t.chars, t.connected = nil, nil, false
	t.lock.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// IsConnected implements transport.Transport.
func (t *Transport) IsConnected() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.connected
}

func (t *Transport) characteristic(serviceID, characteristicID string) (bluetooth.DeviceCharacteristic, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.connected {
		return bluetooth.DeviceCharacteristic{}, transport.ErrNotConnected
	}
	if transport.NormalizeUUID(serviceID) != transport.ServiceUUID {
		return bluetooth.DeviceCharacteristic{}, transport.ErrNotFound
	}
	char, ok := t.chars[transport.NormalizeUUID(characteristicID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, transport.ErrNotFound
	}
	return char, nil
}

// Write implements transport.Transport.
func (t *Transport) Write(serviceID, characteristicID string, data []byte) error {
	char, err := t.characteristic(serviceID, characteristicID)
	if err != nil {
		return err
	}
	_, err = char.WriteWithoutResponse(data)
	return err
}

// Subscribe implements transport.Transport.
func (t *Transport) Subscribe(serviceID, characteristicID string, fn transport.NotifyFunc) error {
	char, err := t.characteristic(serviceID, characteristicID)
	if err != nil {
		return err
	}
	return char.EnableNotifications(func(buf []byte) { fn(buf) })
}
