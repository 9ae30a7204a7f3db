package bleapi

import "testing"

func TestVendorNameResolvesKnownCompanyID(t *testing.T) {
	name, ok := VendorName(0x004C)
	if !ok || name != "Apple, Inc." {
		t.Errorf("VendorName(0x004C) = (%q, %v), want (\"Apple, Inc.\", true)", name, ok)
	}
}

func TestVendorNameReportsUnknownCompanyID(t *testing.T) {
	if _, ok := VendorName(0xABCD); ok {
		t.Error("expected an unassigned company ID to report ok=false")
	}
}

func TestDecodeVendorNamesOmitsUnknownIDsAndNilsOnEmpty(t *testing.T) {
	if got := DecodeVendorNames(nil); got != nil {
		t.Errorf("expected nil manufacturer data to decode to nil, got %v", got)
	}

	got := DecodeVendorNames(map[uint16][]byte{0x004C: {1}, 0xABCD: {2}})
	if len(got) != 1 || got[0x004C] != "Apple, Inc." {
		t.Errorf("expected only the known company ID to survive, got %v", got)
	}
}
