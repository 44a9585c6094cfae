// Package transport defines how the hub controller reaches the peripheral.
package transport

import (
	"context"
	"errors"
	"strings"
)

// GATT service and characteristic of the hub.
const (
	ServiceUUID        = "00001623-1212-efde-1623-785feabcd123"
	CharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"
)

// ManufacturerID is the company identifier in the advertisement of the hub.
const ManufacturerID uint16 = 0x0397

var (
	// ErrNotConnected indicates no peripheral is connected.
	ErrNotConnected = errors.New("not connected")
	// ErrNotFound indicates the peripheral is not discovered.
	ErrNotFound = errors.New("peripheral not found")
)

// Peripheral is a discovered hub.
type Peripheral struct {
	ID   string
	Name string
	RSSI int
}

// NotifyFunc receives notification payloads of a characteristic. It is
// invoked on a goroutine of the transport.
type NotifyFunc func(data []byte)

// Transport is a BLE link to a single peripheral.
type Transport interface {
	Discover(ctx context.Context) ([]Peripheral, error)
	Connect(ctx context.Context, id string) error
	Disconnect() error
	IsConnected() bool
	Write(serviceID, characteristicID string, data []byte) error
	Subscribe(serviceID, characteristicID string, fn NotifyFunc) error
}

// NormalizeUUID lower-cases the UUID for comparison.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}
