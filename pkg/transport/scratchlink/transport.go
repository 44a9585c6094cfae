// Package scratchlink reaches the hub through the BLE session of Scratch Link,
// a JSON-RPC 2.0 service over a local websocket.
package scratchlink

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/transport"
)

// Defaults of a Transport.
const (
	DefaultURL          = "ws://127.0.0.1:20111/scratch/ble"
	DefaultOrigin       = "http://127.0.0.1/"
	DefaultScanDuration = 3 * time.Second
	DefaultCallTimeout  = 5 * time.Second
)

// JSON-RPC methods and notifications of the Scratch Link BLE session.
const (
	MethodDiscover                = "discover"
	MethodConnect                 = "connect"
	MethodWrite                   = "write"
	MethodStartNotifications      = "startNotifications"
	NotifyDidDiscoverPeripheral   = "didDiscoverPeripheral"
	NotifyCharacteristicDidChange = "characteristicDidChange"
)

const encodingBase64 = "base64"

type discoverFilter struct {
	Services []string `json:"services"`
}

type discoverParams struct {
	Filters []discoverFilter `json:"filters"`
}

type peripheralInfo struct {
	PeripheralID json.RawMessage `json:"peripheralId"`
	Name         string          `json:"name"`
	RSSI         int             `json:"rssi"`
}

type connectParams struct {
	PeripheralID json.RawMessage `json:"peripheralId"`
}

type characteristicParams struct {
	ServiceID        string `json:"serviceId"`
	CharacteristicID string `json:"characteristicId"`
}

type writeParams struct {
	characteristicParams
	Message      string `json:"message"`
	Encoding     string `json:"encoding"`
	WithResponse bool   `json:"withResponse"`
}

type changeParams struct {
	characteristicParams
	Message  string `json:"message"`
	Encoding string `json:"encoding"`
}

// DialFunc opens the connection to Scratch Link.
type DialFunc func(ctx context.Context, url, origin string) (PacketReadWriter, error)

// Transport implements transport.Transport over Scratch Link.
type Transport struct {
	URL          string
	Origin       string
	ScanDuration time.Duration
	CallTimeout  time.Duration
	Dial         DialFunc

	lock          sync.Mutex
	sess          *session
	connected     bool
	peripherals   map[string]json.RawMessage
	watchers      map[chan transport.Peripheral]struct{}
	subscriptions map[characteristicParams]transport.NotifyFunc
}

// New creates a Transport with defaults.
func New() *Transport {
	return &Transport{
		URL:          DefaultURL,
		Origin:       DefaultOrigin,
		ScanDuration: DefaultScanDuration,
		CallTimeout:  DefaultCallTimeout,
		Dial:         Dial,
	}
}

func (t *Transport) session(ctx context.Context) (*session, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.sess != nil && t.sess.alive() {
		return t.sess, nil
	}
	dial := t.Dial
	if dial == nil {
		dial = Dial
	}
	rw, err := dial(ctx, t.URL, t.Origin)
	if err != nil {
		return nil, err
	}
	t.sess = newSession(rw, t.handleNotification)
	t.connected = false
	t.peripherals = make(map[string]json.RawMessage)
	t.watchers = make(map[chan transport.Peripheral]struct{})
	t.subscriptions = make(map[characteristicParams]transport.NotifyFunc)
	return t.sess, nil
}

func (t *Transport) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || t.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.CallTimeout)
}

func peripheralID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (t *Transport) handleNotification(method string, params json.RawMessage) {
	switch method {
	case NotifyDidDiscoverPeripheral:
		var info peripheralInfo
		if err := json.Unmarshal(params, &info); err != nil || len(info.PeripheralID) == 0 {
			glog.Warningf("scratch link: invalid %s: %s", method, params)
			return
		}
		p := transport.Peripheral{ID: peripheralID(info.PeripheralID), Name: info.Name, RSSI: info.RSSI}
		t.lock.Lock()
		t.peripherals[p.ID] = info.PeripheralID
		for ch := range t.watchers {
			select {
			case ch <- p:
			default:
			}
		}
		t.lock.Unlock()
	case NotifyCharacteristicDidChange:
		var change changeParams
		if err := json.Unmarshal(params, &change); err != nil {
			glog.Warningf("scratch link: invalid %s: %s", method, params)
			return
		}
		data, err := decodeMessage(change.Message, change.Encoding)
		if err != nil {
			glog.Warningf("scratch link: %s: %v", method, err)
			return
		}
		key := characteristicParams{
			ServiceID:        transport.NormalizeUUID(change.ServiceID),
			CharacteristicID: transport.NormalizeUUID(change.CharacteristicID),
		}
		t.lock.Lock()
		fn := t.subscriptions[key]
		t.lock.Unlock()
		if fn != nil {
			fn(data)
		}
	default:
		glog.V(2).Infof("scratch link: %s ignored", method)
	}
}

func decodeMessage(msg, encoding string) ([]byte, error) {
	if encoding == encodingBase64 {
		return base64.StdEncoding.DecodeString(msg)
	}
	return []byte(msg), nil
}

func (t *Transport) watch() chan transport.Peripheral {
	ch := make(chan transport.Peripheral, 16)
	t.lock.Lock()
	t.watchers[ch] = struct{}{}
	t.lock.Unlock()
	return ch
}

func (t *Transport) unwatch(ch chan transport.Peripheral) {
	t.lock.Lock()
	delete(t.watchers, ch)
	t.lock.Unlock()
}

// startDiscovery starts a scan and returns the channel of discovered peripherals.
func (t *Transport) startDiscovery(ctx context.Context) (chan transport.Peripheral, error) {
	sess, err := t.session(ctx)
	if err != nil {
		return nil, err
	}
	ch := t.watch()
	callCtx, cancel := t.callContext(ctx)
	defer cancel()
	params := &discoverParams{Filters: []discoverFilter{{Services: []string{transport.ServiceUUID}}}}
	if err = sess.call(callCtx, MethodDiscover, params, nil); err != nil {
		t.unwatch(ch)
		return nil, err
	}
	return ch, nil
}

// Discover implements transport.Transport. It scans for ScanDuration or
// until ctx is done.
func (t *Transport) Discover(ctx context.Context) ([]transport.Peripheral, error) {
	ch, err := t.startDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	defer t.unwatch(ch)
	timer := time.NewTimer(t.ScanDuration)
	defer timer.Stop()
	var found []transport.Peripheral
	index := make(map[string]int)
	for {
		select {
		case p := <-ch:
			if n, ok := index[p.ID]; ok {
				found[n] = p
			} else {
				index[p.ID] = len(found)
				found = append(found, p)
			}
		case <-timer.C:
			return found, nil
		case <-ctx.Done():
			return found, nil
		}
	}
}

func (t *Transport) discovered(id string) (json.RawMessage, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	raw, ok := t.peripherals[id]
	return raw, ok
}

// Connect implements transport.Transport. The peripheral is discovered first
// if the current session has not seen it.
func (t *Transport) Connect(ctx context.Context, id string) error {
	if _, err := t.session(ctx); err != nil {
		return err
	}
	raw, ok := t.discovered(id)
	if !ok {
		ch, err := t.startDiscovery(ctx)
		if err != nil {
			return err
		}
		timer := time.NewTimer(t.ScanDuration)
		for !ok {
			select {
			case p := <-ch:
				if p.ID == id {
					raw, ok = t.discovered(id)
				}
			case <-timer.C:
				t.unwatch(ch)
				return transport.ErrNotFound
			case <-ctx.Done():
				timer.Stop()
				t.unwatch(ch)
				return ctx.Err()
			}
		}
		timer.Stop()
		t.unwatch(ch)
	}
	sess, err := t.session(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := t.callContext(ctx)
	defer cancel()
	if err = sess.call(callCtx, MethodConnect, &connectParams{PeripheralID: raw}, nil); err != nil {
		return err
	}
	t.lock.Lock()
	t.connected = true
	t.lock.Unlock()
	glog.Infof("scratch link: connected to %s", id)
	return nil
}

// Disconnect implements transport.Transport. Scratch Link disconnects the
// peripheral when the session closes.
func (t *Transport) Disconnect() error {
	t.lock.Lock()
	sess := t.sess
	t.sess, t.connected = nil, false
	t.lock.Unlock()
	if sess != nil {
		sess.close()
	}
	return nil
}

// IsConnected implements transport.Transport.
func (t *Transport) IsConnected() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.connected && t.sess != nil && t.sess.alive()
}

func (t *Transport) connectedSession() (*session, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.connected || t.sess == nil {
		return nil, transport.ErrNotConnected
	}
	return t.sess, nil
}

// Write implements transport.Transport without waiting for the response.
func (t *Transport) Write(serviceID, characteristicID string, data []byte) error {
	sess, err := t.connectedSession()
	if err != nil {
		return err
	}
	return sess.post(MethodWrite, &writeParams{
		characteristicParams: characteristicParams{ServiceID: serviceID, CharacteristicID: characteristicID},
		Message:              base64.StdEncoding.EncodeToString(data),
		Encoding:             encodingBase64,
	})
}

// Subscribe implements transport.Transport.
func (t *Transport) Subscribe(serviceID, characteristicID string, fn transport.NotifyFunc) error {
	sess, err := t.connectedSession()
	if err != nil {
		return err
	}
	key := characteristicParams{
		ServiceID:        transport.NormalizeUUID(serviceID),
		CharacteristicID: transport.NormalizeUUID(characteristicID),
	}
	t.lock.Lock()
	t.subscriptions[key] = fn
	t.lock.Unlock()
	ctx, cancel := t.callContext(context.Background())
	defer cancel()
	err = sess.call(ctx, MethodStartNotifications,
		&characteristicParams{ServiceID: serviceID, CharacteristicID: characteristicID}, nil)
	if err != nil {
		t.lock.Lock()
		delete(t.subscriptions, key)
		t.lock.Unlock()
	}
	return err
}

// String describes the transport in logs.
func (t *Transport) String() string {
	return "scratchlink(" + strconv.Quote(t.URL) + ")"
}
