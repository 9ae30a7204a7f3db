package protocol

import (
	"errors"
	"fmt"

	"github.com/cubeast-app/connect/internal/bleapi"
)

func manufacturerDataWire(m map[uint16][]byte) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for id, data := range m {
		out[fmt.Sprintf("%04x", id)] = fmt.Sprintf("%x", data)
	}
	return out
}

// FromDiscoveredDevice converts a domain DiscoveredDevice to its wire shape.
func FromDiscoveredDevice(d bleapi.DiscoveredDevice) DiscoveredDevice {
	return DiscoveredDevice{
		ID:               string(d.ID),
		Name:             d.Name,
		Address:          d.Address,
		RSSI:             d.RSSI,
		ManufacturerData: manufacturerDataWire(d.ManufacturerData),
	}
}

// FromDiscoveredDevices converts a slice, preserving order.
func FromDiscoveredDevices(devices []bleapi.DiscoveredDevice) []DiscoveredDevice {
	out := make([]DiscoveredDevice, len(devices))
	for i, d := range devices {
		out[i] = FromDiscoveredDevice(d)
	}
	return out
}

func fromCharacteristicDescriptor(c bleapi.CharacteristicDescriptor) CharacteristicDescriptor {
	return CharacteristicDescriptor{
		UUID:                 string(c.UUID),
		Read:                 c.Read,
		Write:                c.Write,
		WriteWithoutResponse: c.WriteWithoutResponse,
		Notify:               c.Notify,
	}
}

func fromServiceDescriptor(s bleapi.ServiceDescriptor) ServiceDescriptor {
	chars := make([]CharacteristicDescriptor, len(s.Characteristics))
	for i, c := range s.Characteristics {
		chars[i] = fromCharacteristicDescriptor(c)
	}
	return ServiceDescriptor{UUID: s.UUID, Characteristics: chars}
}

// FromDeviceData converts a domain DeviceData to its wire shape.
func FromDeviceData(d bleapi.DeviceData) DeviceData {
	services := make([]ServiceDescriptor, len(d.Services))
	for i, s := range d.Services {
		services[i] = fromServiceDescriptor(s)
	}
	return DeviceData{
		ID:               string(d.ID),
		Name:             d.Name,
		Address:          d.Address,
		ManufacturerData: manufacturerDataWire(d.ManufacturerData),
		Services:         services,
	}
}

// ErrorCategoryCode extracts the (category, code) pair §7 requires on the
// wire from any error. An error outside the taxonomy is classified by
// bleapi.NormalizeAdapterError (system/runtime_error when its message
// matches nothing); a nil error reports internal/unknown.
func ErrorCategoryCode(err error) (category, code string) {
	var e *bleapi.Error
	if !errors.As(err, &e) {
		if err == nil {
			return string(bleapi.CategoryInternal), string(bleapi.CodeUnknown)
		}
		if !errors.As(bleapi.NormalizeAdapterError(err), &e) {
			return string(bleapi.CategoryInternal), string(bleapi.CodeUnknown)
		}
	}
	return string(e.Category), string(e.Code)
}
