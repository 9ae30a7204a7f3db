package goble

import (
	"encoding/binary"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/bledb"
)

// toDiscoveredDevice converts a raw go-ble advertisement into the bridge's
// DiscoveredDevice value type, keyed by the peripheral's address.
func toDiscoveredDevice(adv ble.Advertisement) bleapi.DiscoveredDevice {
	id := bleapi.DeviceId(adv.Addr().String())

	var name *string
	if n := adv.LocalName(); n != "" {
		name = &n
	}
	addr := adv.Addr().String()
	rssi := adv.RSSI()

	return bleapi.DiscoveredDevice{
		ID:               id,
		Name:             name,
		Address:          &addr,
		RSSI:             &rssi,
		ManufacturerData: manufacturerDataMap(adv.ManufacturerData()),
	}
}

// manufacturerDataMap splits a raw manufacturer-data advertisement field
// (company ID as a little-endian uint16 prefix, per the BLE convention)
// into the per-company map DiscoveredDevice/DeviceData carry.
func manufacturerDataMap(raw []byte) map[uint16][]byte {
	if len(raw) < 2 {
		return nil
	}
	id := binary.LittleEndian.Uint16(raw[0:2])
	return map[uint16][]byte{id: raw[2:]}
}

// toServiceDescriptors converts a discovered go-ble profile into the
// bridge's service/characteristic descriptor tables, normalizing UUIDs and
// decoding GATT property bit flags into the Read/Write/Notify flag set
// §3 requires. Resolved Bluetooth SIG names are emitted as debug log
// fields only, the way the teacher's BLEConnection logs "Found service
// UUID"/"Found characteristic UUID" with a knownName field; they never
// reach the wire (§3).
func toServiceDescriptors(profile *ble.Profile, logger *logrus.Logger) []bleapi.ServiceDescriptor {
	services := make([]bleapi.ServiceDescriptor, 0, len(profile.Services))
	for _, svc := range profile.Services {
		rawUUID := svc.UUID.String()
		sd := bleapi.ServiceDescriptor{
			UUID:            bleapi.NormalizeUUID(rawUUID),
			Characteristics: make([]bleapi.CharacteristicDescriptor, 0, len(svc.Characteristics)),
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"service_uuid": sd.UUID,
				"known_name":   bledb.LookupService(rawUUID),
			}).Debug("goble: discovered service")
		}
		for _, c := range svc.Characteristics {
			charUUID := bleapi.NormalizeUUID(c.UUID.String())
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"service_uuid":        sd.UUID,
					"characteristic_uuid": charUUID,
					"known_name":          bledb.LookupCharacteristic(c.UUID.String()),
				}).Debug("goble: discovered characteristic")
				for _, d := range c.Descriptors {
					logger.WithFields(logrus.Fields{
						"characteristic_uuid": charUUID,
						"descriptor_uuid":     bleapi.NormalizeUUID(d.UUID.String()),
						"known_name":          bledb.LookupDescriptor(d.UUID.String()),
					}).Debug("goble: discovered descriptor")
				}
			}
			sd.Characteristics = append(sd.Characteristics, bleapi.CharacteristicDescriptor{
				UUID:                 bleapi.CharacteristicId(charUUID),
				Read:                 c.Property&ble.CharRead != 0,
				Write:                c.Property&ble.CharWrite != 0,
				WriteWithoutResponse: c.Property&ble.CharWriteNR != 0,
				Notify:               c.Property&ble.CharNotify != 0 || c.Property&ble.CharIndicate != 0,
			})
		}
		services = append(services, sd)
	}
	return services
}

// findCharacteristic locates the live go-ble characteristic handle with the
// given normalized UUID on a previously discovered profile, returning the
// first match across all services.
func findCharacteristic(profile *ble.Profile, charID bleapi.CharacteristicId) *ble.Characteristic {
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			if bleapi.NormalizeUUID(c.UUID.String()) == string(charID) {
				return c
			}
		}
	}
	return nil
}
