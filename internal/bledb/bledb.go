// Package bledb resolves well-known Bluetooth SIG service, characteristic,
// and descriptor UUIDs to their assigned names, for log and diagnostic
// enrichment only. It is never consulted by the wire protocol: clients get
// raw UUIDs and decide names for themselves.
package bledb

import "strings"

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID to this package's lookup key: lowercase, no
// dashes/braces/0x prefix, and shortened to its 16-bit form when it carries
// the Bluetooth SIG base UUID suffix. Custom 128-bit UUIDs that don't match
// the SIG base pass through unchanged (aside from case/punctuation).
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(uuid)
	u = strings.TrimPrefix(u, "0x")
	u = strings.Trim(u, "{}")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasSuffix(u, sigBaseSuffix) {
		short := strings.TrimSuffix(u, sigBaseSuffix)
		short = strings.TrimLeft(short, "0")
		if short == "" {
			short = "0"
		}
		// 16-bit assigned numbers are always 4 hex digits; 32-bit ones keep
		// their full width.
		if len(short) <= 4 {
			return pad(short, 4)
		}
		return pad(short, 8)
	}
	return u
}

func pad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1812": "Human Interface Device",
	"1819": "Location and Navigation",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a39": "Heart Rate Control Point",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// LookupService returns the assigned name for a service UUID, or "" if
// unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the assigned name for a characteristic
// UUID, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the assigned name for a descriptor UUID, or ""
// if unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
