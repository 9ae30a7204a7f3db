package bleapi

import "testing"

func strPtr(s string) *string { return &s }

func TestEqualPayloadIgnoresIDAndRSSI(t *testing.T) {
	a := DiscoveredDevice{ID: "dev-a", Name: strPtr("Heart Monitor"), RSSI: intPtr(-40)}
	b := DiscoveredDevice{ID: "dev-b", Name: strPtr("Heart Monitor"), RSSI: intPtr(-70)}
	if !a.EqualPayload(b) {
		t.Error("expected payloads with the same name to compare equal despite differing ID/RSSI")
	}
}

func TestEqualPayloadComparesManufacturerData(t *testing.T) {
	a := DiscoveredDevice{ManufacturerData: map[uint16][]byte{0x004C: {1, 2}}}
	b := DiscoveredDevice{ManufacturerData: map[uint16][]byte{0x004C: {1, 2}}}
	c := DiscoveredDevice{ManufacturerData: map[uint16][]byte{0x004C: {1, 3}}}
	if !a.EqualPayload(b) {
		t.Error("expected identical manufacturer data to compare equal")
	}
	if a.EqualPayload(c) {
		t.Error("expected differing manufacturer data to compare unequal")
	}
}

func TestSortDiscoveredDevicesPutsUnnamedLast(t *testing.T) {
	devices := []DiscoveredDevice{
		{ID: "1", Name: strPtr("Zeta")},
		{ID: "2", Name: nil},
		{ID: "3", Name: strPtr("Alpha")},
	}
	SortDiscoveredDevices(devices)
	if *devices[0].Name != "Alpha" || *devices[1].Name != "Zeta" || devices[2].Name != nil {
		t.Fatalf("unexpected order: %+v", devices)
	}
}

func TestFindCharacteristicReturnsOkFalseWhenAbsent(t *testing.T) {
	services := []ServiceDescriptor{{
		UUID:            "180d",
		Characteristics: []CharacteristicDescriptor{{UUID: "2a37"}},
	}}
	if _, ok := FindCharacteristic(services, "2a38"); ok {
		t.Error("expected ok=false for an absent characteristic")
	}
	if c, ok := FindCharacteristic(services, "2a37"); !ok || c.UUID != "2a37" {
		t.Error("expected to find the present characteristic")
	}
}

func intPtr(i int) *int { return &i }
