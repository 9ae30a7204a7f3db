package bleapi

import "context"

// AdapterEventKind enumerates the central-event stream's event types
// (§6.3).
type AdapterEventKind int

const (
	EventDeviceDiscovered AdapterEventKind = iota
	EventDeviceUpdated
	EventDeviceDisconnected
	EventManufacturerDataAdvertisement
)

// AdapterEvent is one item from Adapter.Events(). DeviceID is populated
// for every kind; the discovery actor re-enumerates peripherals on
// Discovered/Updated/ManufacturerData events, and the Bluetooth actor
// reacts to Disconnected by tearing down the corresponding ConnectedDevice
// (§4.1).
type AdapterEvent struct {
	Kind     AdapterEventKind
	DeviceID DeviceId
}

// Adapter is the contract the core requires from the host BLE layer
// (§6.3). Exactly one Adapter is owned by the Bluetooth actor; every
// method may block on the underlying BLE stack and must be safe to call
// from the Bluetooth actor's single goroutine (serialization is the
// actor's job, not the adapter's).
//
// internal/adapter/goble implements this against github.com/go-ble/ble.
// internal/bleapi/bleapitest implements it as a scripted in-memory mock
// for tests.
type Adapter interface {
	// Events returns the adapter's central-event stream. The channel is
	// valid for the lifetime of the Adapter and is never closed by a
	// well-behaved implementation except on Close.
	Events() <-chan AdapterEvent

	// Peripherals enumerates currently known peripherals (advertised or
	// connected), used by the discovery actor to build a fresh snapshot
	// after each event.
	Peripherals(ctx context.Context) ([]DiscoveredDevice, error)

	StartScan(ctx context.Context) error
	StopScan(ctx context.Context) error

	// Connect dials a peripheral and performs service discovery,
	// returning a full DeviceData snapshot. Implementations MUST apply
	// the bounded retry described in §4.1 (3 attempts, 1000ms apart)
	// when the discovered service table comes back empty.
	Connect(ctx context.Context, id DeviceId) (DeviceData, error)
	Disconnect(ctx context.Context, id DeviceId) error

	ReadCharacteristic(ctx context.Context, id DeviceId, charID CharacteristicId) (CharacteristicValue, error)
	WriteCharacteristic(ctx context.Context, id DeviceId, charID CharacteristicId, value []byte) error

	// SubscribeCharacteristic enables the physical GATT notify
	// subscription and returns a channel of incoming values. Called
	// exactly once per (device, characteristic) by the notification
	// actor, on the 0→1 subscriber transition (§4.3, N1).
	SubscribeCharacteristic(ctx context.Context, id DeviceId, charID CharacteristicId) (<-chan CharacteristicValue, error)

	// UnsubscribeCharacteristic disables the physical subscription.
	// Called on the 1→0 transition.
	UnsubscribeCharacteristic(ctx context.Context, id DeviceId, charID CharacteristicId) error

	// Close releases the adapter and any open scan/subscriptions.
	Close() error
}
