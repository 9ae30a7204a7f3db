// Package bleapi defines the domain types and the adapter contract (§6.3)
// that the BLE session multiplexer is built against. It has no dependency
// on any concrete BLE library — internal/adapter/goble provides the real
// implementation, internal/bleapi/bleapitest a scripted mock for tests.
package bleapi

import (
	"bytes"
	"sort"
)

// DeviceId is the opaque, stable identifier a host BLE stack mints for a
// peripheral. Equality of DeviceId defines device identity (§3).
type DeviceId string

// CharacteristicId is a 128-bit GATT characteristic UUID, normalized to
// lowercase with no dashes (see NormalizeUUID).
type CharacteristicId string

// DiscoveredDevice is a value type describing one advertised peripheral.
// Equality ignores ID and RSSI so that two advertisements carrying the
// same payload compare equal and can suppress duplicate broadcasts (§3).
type DiscoveredDevice struct {
	ID               DeviceId
	Name             *string
	Address          *string
	RSSI             *int
	ManufacturerData map[uint16][]byte
}

// EqualPayload reports whether two DiscoveredDevice values carry the same
// advertised payload, ignoring ID and RSSI, per §3's duplicate-suppression
// rule.
func (d DiscoveredDevice) EqualPayload(o DiscoveredDevice) bool {
	if !stringPtrEqual(d.Name, o.Name) || !stringPtrEqual(d.Address, o.Address) {
		return false
	}
	if len(d.ManufacturerData) != len(o.ManufacturerData) {
		return false
	}
	for k, v := range d.ManufacturerData {
		ov, ok := o.ManufacturerData[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SortDiscoveredDevices sorts devices by name, with unnamed devices sorted
// last, per §4.2's "sorts by name (nulls last, lexicographic otherwise)".
func SortDiscoveredDevices(devices []DiscoveredDevice) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i].Name, devices[j].Name
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
}

// CharacteristicDescriptor describes one GATT characteristic's UUID and
// supported operations (§3).
type CharacteristicDescriptor struct {
	UUID                 CharacteristicId
	Read                 bool
	Write                bool
	WriteWithoutResponse bool
	Notify               bool
}

// ServiceDescriptor describes one GATT service and its ordered
// characteristics (§3).
type ServiceDescriptor struct {
	UUID            string
	Characteristics []CharacteristicDescriptor
}

// DeviceData is the snapshot returned on a successful connect (§3).
type DeviceData struct {
	ID               DeviceId
	Name             *string
	Address          *string
	ManufacturerData map[uint16][]byte
	Services         []ServiceDescriptor

	// RetryCount records how many additional service-discovery attempts
	// (beyond the first) were needed before the service table came back
	// non-empty. Supplemental telemetry, see SPEC_FULL.md §12.
	RetryCount int
}

// CharacteristicValue is a timestamped characteristic read or notification
// payload (§3). Timestamps are assigned at the bridge, not the device.
type CharacteristicValue struct {
	TimestampMsUnixEpoch uint64
	Value                []byte
}

// FindCharacteristic looks up a characteristic descriptor by UUID within a
// service list, returning ok=false if absent.
func FindCharacteristic(services []ServiceDescriptor, charID CharacteristicId) (CharacteristicDescriptor, bool) {
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			if c.UUID == charID {
				return c, true
			}
		}
	}
	return CharacteristicDescriptor{}, false
}
