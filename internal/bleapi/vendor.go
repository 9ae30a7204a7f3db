package bleapi

// vendorNames maps Bluetooth SIG assigned company identifiers to a
// human-readable manufacturer name, for log enrichment only (SPEC_FULL.md
// §12). The bridge never puts vendor names on the wire — clients get the
// raw ManufacturerData bytes and decode them however they like.
var vendorNames = map[uint16]string{
	0x004C: "Apple, Inc.",
	0x0006: "Microsoft",
	0x00E0: "Google",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x0059: "Nordic Semiconductor ASA",
	0x0157: "Anhui Huami Information Technology Co., Ltd.",
	0x0087: "Garmin International, Inc.",
	0x0002: "Intel Corp.",
	0xFFFE: "Test Manufacturer Data",
}

// VendorName returns the manufacturer name for a Bluetooth SIG company ID,
// or ok=false if the ID isn't in the known set.
func VendorName(companyID uint16) (string, bool) {
	name, ok := vendorNames[companyID]
	return name, ok
}

// DecodeVendorNames resolves every company ID present in a
// DiscoveredDevice's or DeviceData's ManufacturerData map to a vendor name,
// for inclusion in structured log fields. Unknown IDs are omitted.
func DecodeVendorNames(manufacturerData map[uint16][]byte) map[uint16]string {
	if len(manufacturerData) == 0 {
		return nil
	}
	out := make(map[uint16]string, len(manufacturerData))
	for id := range manufacturerData {
		if name, ok := vendorNames[id]; ok {
			out[id] = name
		}
	}
	return out
}
