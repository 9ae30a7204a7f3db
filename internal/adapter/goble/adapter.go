// Package goble implements bleapi.Adapter against github.com/go-ble/ble,
// the real host BLE stack. The platform-specific device factory lives in
// platform_darwin.go / platform_linux.go (build-tag selected), mirroring
// the teacher's darwin.NewDevice() wiring.
package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/groutine"
	"github.com/cubeast-app/connect/internal/ringchan"
)

// RetryPolicy configures Connect's bounded service-discovery retry (§4.1:
// 3 attempts, 1000ms apart, when the discovered service table comes back
// empty).
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy is the policy §4.1 specifies.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 1000 * time.Millisecond}

type liveDevice struct {
	client  ble.Client
	profile *ble.Profile
	subs    map[bleapi.CharacteristicId]chan bleapi.CharacteristicValue
}

// Adapter implements bleapi.Adapter against a single ble.Device. One
// Adapter is owned by the Bluetooth actor for the process lifetime; all
// calls are already serialized by that actor, so the locking here only
// protects the event-stream consumer from the scan/notification
// goroutines this package spawns.
type Adapter struct {
	dev    ble.Device
	logger *logrus.Logger
	retry  RetryPolicy

	events *ringchan.RingChannel[bleapi.AdapterEvent]

	mu          sync.Mutex
	peripherals map[bleapi.DeviceId]bleapi.DiscoveredDevice
	connected   map[bleapi.DeviceId]*liveDevice

	scanCancel context.CancelFunc
}

// New constructs an Adapter from a platform device factory (newHostDevice,
// provided per build tag). It starts no goroutine itself: the central-event
// stream is fed by StartScan's advertisement handler and by the disconnect
// watcher each Connect spawns.
func New(logger *logrus.Logger, retry RetryPolicy) (*Adapter, error) {
	dev, err := newHostDevice()
	if err != nil {
		return nil, normalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	if retry.Attempts <= 0 {
		retry = DefaultRetryPolicy
	}

	return &Adapter{
		dev:         dev,
		logger:      logger,
		retry:       retry,
		events:      ringchan.NewRingChannel[bleapi.AdapterEvent](256),
		peripherals: make(map[bleapi.DeviceId]bleapi.DiscoveredDevice),
		connected:   make(map[bleapi.DeviceId]*liveDevice),
	}, nil
}

func (a *Adapter) Events() <-chan bleapi.AdapterEvent {
	return a.events.C()
}

func (a *Adapter) Peripherals(ctx context.Context) ([]bleapi.DiscoveredDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]bleapi.DiscoveredDevice, 0, len(a.peripherals))
	for _, d := range a.peripherals {
		out = append(out, d)
	}
	return out, nil
}

// StartScan launches a background scan via ble.Device.Scan, which blocks
// until the context passed to it is cancelled. It is cancelled by
// StopScan, never by the caller's ctx directly, so a single scan can
// outlive the request that started it (§4.2's discovery actor owns the
// scan's lifetime, not any one session).
func (a *Adapter) StartScan(ctx context.Context) error {
	a.mu.Lock()
	if a.scanCancel != nil {
		a.mu.Unlock()
		return nil
	}
	scanCtx, cancel := context.WithCancel(context.Background())
	a.scanCancel = cancel
	a.mu.Unlock()

	groutine.Go(scanCtx, "goble-scan", func(gctx context.Context) {
		err := a.dev.Scan(gctx, true, func(adv ble.Advertisement) {
			a.handleAdvertisement(adv)
		})
		if err != nil && gctx.Err() == nil && a.logger != nil {
			a.logger.WithError(err).Warn("ble scan exited with error")
		}
	})
	return nil
}

func (a *Adapter) StopScan(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.scanCancel
	a.scanCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (a *Adapter) handleAdvertisement(adv ble.Advertisement) {
	d := toDiscoveredDevice(adv)

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
	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"device_id": d.ID,
			"vendors":   bleapi.DecodeVendorNames(d.ManufacturerData),
		}).Debug("goble: advertisement observed")
	}
	a.events.Send(bleapi.AdapterEvent{Kind: kind, DeviceID: d.ID})
}

// Connect dials the peripheral and discovers its GATT profile, retrying
// discovery up to a.retry.Attempts times (a.retry.Backoff apart) when the
// service table comes back empty (§4.1). RetryCount on the returned
// DeviceData records how many extra attempts beyond the first were needed.
func (a *Adapter) Connect(ctx context.Context, id bleapi.DeviceId) (bleapi.DeviceData, error) {
	client, err := ble.Dial(ctx, ble.NewAddr(string(id)))
	if err != nil {
		return bleapi.DeviceData{}, normalizeError(err)
	}

	var profile *ble.Profile
	retryCount := 0
	for attempt := 0; attempt < a.retry.Attempts; attempt++ {
		profile, err = client.DiscoverProfile(true)
		if err != nil {
			_ = client.CancelConnection()
			return bleapi.DeviceData{}, normalizeError(err)
		}
		if len(profile.Services) > 0 {
			break
		}
		retryCount = attempt + 1
		if attempt < a.retry.Attempts-1 {
			select {
			case <-ctx.Done():
				_ = client.CancelConnection()
				return bleapi.DeviceData{}, normalizeError(ctx.Err())
			case <-time.After(a.retry.Backoff):
			}
		}
	}

	if len(profile.Services) == 0 {
		_ = client.CancelConnection()
		return bleapi.DeviceData{}, bleapi.New(bleapi.CategoryConnectivity, bleapi.CodeNotConnected,
			errors.New("service discovery exhausted all attempts with an empty service table"))
	}

	ld := &liveDevice{
		client:  client,
		profile: profile,
		subs:    make(map[bleapi.CharacteristicId]chan bleapi.CharacteristicValue),
	}

	a.mu.Lock()
	a.connected[id] = ld
	known, hadAdvert := a.peripherals[id]
	a.mu.Unlock()

	if disconnectable, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "goble-disconnect-watch", func(gctx context.Context) {
			select {
			case <-disconnectable.Disconnected():
				a.handleUnsolicitedDisconnect(id)
			case <-gctx.Done():
			}
		})
	}

	data := bleapi.DeviceData{
		ID:         id,
		Services:   toServiceDescriptors(profile, a.logger),
		RetryCount: retryCount,
	}
	if hadAdvert {
		data.Name = known.Name
		data.Address = known.Address
		data.ManufacturerData = known.ManufacturerData
	} else {
		addr := string(id)
		data.Address = &addr
	}
	return data, nil
}

func (a *Adapter) handleUnsolicitedDisconnect(id bleapi.DeviceId) {
	a.mu.Lock()
	ld, ok := a.connected[id]
	delete(a.connected, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	for _, ch := range ld.subs {
		close(ch)
	}
	a.events.Send(bleapi.AdapterEvent{Kind: bleapi.EventDeviceDisconnected, DeviceID: id})
}

func (a *Adapter) Disconnect(ctx context.Context, id bleapi.DeviceId) error {
	a.mu.Lock()
	ld, ok := a.connected[id]
	delete(a.connected, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	for _, ch := range ld.subs {
		close(ch)
	}
	return normalizeError(ld.client.CancelConnection())
}

func (a *Adapter) live(id bleapi.DeviceId) (*liveDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ld, ok := a.connected[id]
	if !ok {
		return nil, bleapi.ErrNotConnected
	}
	return ld, nil
}

func (a *Adapter) ReadCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (bleapi.CharacteristicValue, error) {
	ld, err := a.live(id)
	if err != nil {
		return bleapi.CharacteristicValue{}, err
	}
	c := findCharacteristic(ld.profile, charID)
	if c == nil {
		return bleapi.CharacteristicValue{}, bleapi.ErrCharacteristicNotFound
	}
	data, err := ld.client.ReadCharacteristic(c)
	if err != nil {
		return bleapi.CharacteristicValue{}, normalizeError(err)
	}
	return bleapi.CharacteristicValue{TimestampMsUnixEpoch: nowMs(), Value: data}, nil
}

func (a *Adapter) WriteCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId, value []byte) error {
	ld, err := a.live(id)
	if err != nil {
		return err
	}
	c := findCharacteristic(ld.profile, charID)
	if c == nil {
		return bleapi.ErrCharacteristicNotFound
	}
	withoutResponse := c.Property&ble.CharWrite == 0 && c.Property&ble.CharWriteNR != 0
	return normalizeError(ld.client.WriteCharacteristic(c, value, withoutResponse))
}

func (a *Adapter) SubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (<-chan bleapi.CharacteristicValue, error) {
	ld, err := a.live(id)
	if err != nil {
		return nil, err
	}
	c := findCharacteristic(ld.profile, charID)
	if c == nil {
		return nil, bleapi.ErrCharacteristicNotFound
	}

	ch := make(chan bleapi.CharacteristicValue, 64)
	indicate := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	handler := func(data []byte) {
		select {
		case ch <- bleapi.CharacteristicValue{TimestampMsUnixEpoch: nowMs(), Value: append([]byte(nil), data...)}:
		default:
		}
	}
	if err := ld.client.Subscribe(c, indicate, handler); err != nil {
		close(ch)
		return nil, normalizeError(err)
	}

	a.mu.Lock()
	ld.subs[charID] = ch
	a.mu.Unlock()
	return ch, nil
}

func (a *Adapter) UnsubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) error {
	ld, err := a.live(id)
	if err != nil {
		return err
	}
	c := findCharacteristic(ld.profile, charID)
	if c == nil {
		return bleapi.ErrCharacteristicNotFound
	}
	indicate := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	unsubErr := ld.client.Unsubscribe(c, indicate)

	a.mu.Lock()
	if ch, ok := ld.subs[charID]; ok {
		close(ch)
		delete(ld.subs, charID)
	}
	a.mu.Unlock()
	return normalizeError(unsubErr)
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	cancel := a.scanCancel
	a.scanCancel = nil
	for id, ld := range a.connected {
		for _, ch := range ld.subs {
			close(ch)
		}
		_ = ld.client.CancelConnection()
		delete(a.connected, id)
	}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return normalizeError(a.dev.Stop())
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
