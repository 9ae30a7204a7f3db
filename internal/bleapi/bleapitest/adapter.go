// Package bleapitest is a scripted, in-memory bleapi.Adapter used by the
// higher-level actor tests. It has no dependency on any BLE library; tests
// drive it directly (AddPeripheral, QueueConnect, PublishNotification,
// SimulateDisconnect) instead of talking to real hardware.
package bleapitest

import (
	"context"
	"sync"
	"time"

	"github.com/cubeast-app/connect/internal/bleapi"
)

// ConnectAttempt is one scripted outcome of a single service-discovery
// attempt within Connect's retry loop (see Adapter.Connect).
type ConnectAttempt struct {
	Services []bleapi.ServiceDescriptor
	Err      error
}

type subscription struct {
	ch chan bleapi.CharacteristicValue
}

type connectedDevice struct {
	data bleapi.DeviceData
	subs map[bleapi.CharacteristicId]*subscription
}

// Adapter is a scripted bleapi.Adapter for tests.
type Adapter struct {
	// Backoff overrides the real adapter's 1000ms retry spacing so tests
	// don't pay for it; defaults to 0.
	Backoff time.Duration

	mu          sync.Mutex
	events      chan bleapi.AdapterEvent
	peripherals map[bleapi.DeviceId]bleapi.DiscoveredDevice
	scripts     map[bleapi.DeviceId][]ConnectAttempt
	connected   map[bleapi.DeviceId]*connectedDevice
	scanning    bool
	ScanStarts  int
	ScanStops   int
}

// New returns an empty scripted adapter.
func New() *Adapter {
	return &Adapter{
		events:      make(chan bleapi.AdapterEvent, 256),
		peripherals: make(map[bleapi.DeviceId]bleapi.DiscoveredDevice),
		scripts:     make(map[bleapi.DeviceId][]ConnectAttempt),
		connected:   make(map[bleapi.DeviceId]*connectedDevice),
	}
}

// AddPeripheral registers or updates an advertised peripheral and emits the
// corresponding discovered/updated event, mirroring what the real adapter
// does on every advertisement.
func (a *Adapter) AddPeripheral(d bleapi.DiscoveredDevice) {
	a.mu.Lock()
	prev, existed := a.peripherals[d.ID]
	a.peripherals[d.ID] = d
	a.mu.Unlock()

	kind := bleapi.EventDeviceDiscovered
	if existed {
		if prev.EqualPayload(d) {
			return
		}
		kind = bleapi.EventDeviceUpdated
	}
	a.events <- bleapi.AdapterEvent{Kind: kind, DeviceID: d.ID}
}

// RemovePeripheral drops a peripheral from the snapshot without emitting an
// event, simulating an advertisement that simply stopped arriving.
func (a *Adapter) RemovePeripheral(id bleapi.DeviceId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peripherals, id)
}

// QueueConnect scripts the per-attempt outcomes Connect(id) will replay, in
// order, one per service-discovery attempt. The last entry repeats for any
// attempt beyond the scripted list.
func (a *Adapter) QueueConnect(id bleapi.DeviceId, attempts ...ConnectAttempt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[id] = attempts
}

func (a *Adapter) Events() <-chan bleapi.AdapterEvent { return a.events }

func (a *Adapter) Peripherals(ctx context.Context) ([]bleapi.DiscoveredDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]bleapi.DiscoveredDevice, 0, len(a.peripherals))
	for _, d := range a.peripherals {
		out = append(out, d)
	}
	return out, nil
}

func (a *Adapter) StartScan(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = true
	a.ScanStarts++
	return nil
}

func (a *Adapter) StopScan(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = false
	a.ScanStops++
	return nil
}

// Scanning reports whether StartScan has been called without a matching
// StopScan, for assertions on the discovery actor's 0<->1 subscriber
// lifecycle wiring.
func (a *Adapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}

// Connect replays the scripted attempts queued by QueueConnect, applying
// the same bounded-retry shape §4.1 requires of every Adapter
// implementation: up to 3 attempts, stopping at the first non-empty
// service table.
func (a *Adapter) Connect(ctx context.Context, id bleapi.DeviceId) (bleapi.DeviceData, error) {
	a.mu.Lock()
	attempts := a.scripts[id]
	known, hadAdvert := a.peripherals[id]
	a.mu.Unlock()

	if len(attempts) == 0 {
		attempts = []ConnectAttempt{{Services: nil}}
	}

	const maxAttempts = 3
	var last ConnectAttempt
	retryCount := 0
	for i := 0; i < maxAttempts; i++ {
		if i < len(attempts) {
			last = attempts[i]
		} else {
			last = attempts[len(attempts)-1]
		}
		if last.Err != nil {
			return bleapi.DeviceData{}, last.Err
		}
		if len(last.Services) > 0 {
			break
		}
		retryCount = i + 1
		if i < maxAttempts-1 && a.Backoff > 0 {
			select {
			case <-ctx.Done():
				return bleapi.DeviceData{}, ctx.Err()
			case <-time.After(a.Backoff):
			}
		}
	}

	data := bleapi.DeviceData{
		ID:         id,
		Services:   last.Services,
		RetryCount: retryCount,
	}
	if hadAdvert {
		data.Name = known.Name
		data.Address = known.Address
		data.ManufacturerData = known.ManufacturerData
	}

	a.mu.Lock()
	a.connected[id] = &connectedDevice{data: data, subs: make(map[bleapi.CharacteristicId]*subscription)}
	a.mu.Unlock()
	return data, nil
}

func (a *Adapter) device(id bleapi.DeviceId) (*connectedDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cd, ok := a.connected[id]
	if !ok {
		return nil, bleapi.ErrNotConnected
	}
	return cd, nil
}

func (a *Adapter) Disconnect(ctx context.Context, id bleapi.DeviceId) error {
	a.mu.Lock()
	cd, ok := a.connected[id]
	delete(a.connected, id)
	a.mu.Unlock()
	if ok {
		for _, s := range cd.subs {
			close(s.ch)
		}
	}
	return nil
}

// SimulateDisconnect emits an unsolicited disconnect for a connected
// device, as if the peripheral had dropped the link on its own (§4.1, E5).
func (a *Adapter) SimulateDisconnect(id bleapi.DeviceId) {
	a.mu.Lock()
	cd, ok := a.connected[id]
	delete(a.connected, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	for _, s := range cd.subs {
		close(s.ch)
	}
	a.events <- bleapi.AdapterEvent{Kind: bleapi.EventDeviceDisconnected, DeviceID: id}
}

func (a *Adapter) ReadCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (bleapi.CharacteristicValue, error) {
	cd, err := a.device(id)
	if err != nil {
		return bleapi.CharacteristicValue{}, err
	}
	if _, ok := bleapi.FindCharacteristic(cd.data.Services, charID); !ok {
		return bleapi.CharacteristicValue{}, bleapi.ErrCharacteristicNotFound
	}
	return bleapi.CharacteristicValue{TimestampMsUnixEpoch: uint64(time.Now().UnixMilli())}, nil
}

func (a *Adapter) WriteCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId, value []byte) error {
	cd, err := a.device(id)
	if err != nil {
		return err
	}
	if _, ok := bleapi.FindCharacteristic(cd.data.Services, charID); !ok {
		return bleapi.ErrCharacteristicNotFound
	}
	return nil
}

func (a *Adapter) SubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (<-chan bleapi.CharacteristicValue, error) {
	cd, err := a.device(id)
	if err != nil {
		return nil, err
	}
	if _, ok := bleapi.FindCharacteristic(cd.data.Services, charID); !ok {
		return nil, bleapi.ErrCharacteristicNotFound
	}
	ch := make(chan bleapi.CharacteristicValue, 64)

	a.mu.Lock()
	cd.subs[charID] = &subscription{ch: ch}
	a.mu.Unlock()
	return ch, nil
}

func (a *Adapter) UnsubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) error {
	cd, err := a.device(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if s, ok := cd.subs[charID]; ok {
		close(s.ch)
		delete(cd.subs, charID)
	}
	a.mu.Unlock()
	return nil
}

// PublishNotification delivers a notification value to a subscribed
// characteristic's channel, as the real adapter's GATT notify callback
// would.
func (a *Adapter) PublishNotification(id bleapi.DeviceId, charID bleapi.CharacteristicId, value []byte) bool {
	a.mu.Lock()
	cd, ok := a.connected[id]
	if !ok {
		a.mu.Unlock()
		return false
	}
	s, ok := cd.subs[charID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.ch <- bleapi.CharacteristicValue{TimestampMsUnixEpoch: uint64(time.Now().UnixMilli()), Value: value}:
		return true
	default:
		return false
	}
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, cd := range a.connected {
		for _, s := range cd.subs {
			close(s.ch)
		}
		delete(a.connected, id)
	}
	close(a.events)
	return nil
}

var _ bleapi.Adapter = (*Adapter)(nil)
