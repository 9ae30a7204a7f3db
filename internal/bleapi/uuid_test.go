package bleapi

import "testing"

func TestNormalizeUUIDLowercasesStripsDashesAndBraces(t *testing.T) {
	cases := map[string]string{
		"2A37":                                   "2a37",
		"0000180D-0000-1000-8000-00805F9B34FB":   "0000180d00001000800000805f9b34fb",
		"{6E400001-B5A3-F393-E0A9-E50E24DCCA9E}": "6e400001b5a3f393e0a9e50e24dcca9e",
		"0x180D":                                 "180d",
	}
	for in, want := range cases {
		if got := NormalizeUUID(in); got != want {
			t.Errorf("NormalizeUUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeUUIDIsIdempotent(t *testing.T) {
	once := NormalizeUUID("2A37")
	twice := NormalizeUUID(once)
	if once != twice {
		t.Errorf("NormalizeUUID not idempotent: %q != %q", once, twice)
	}
}

func TestNormalizeUUIDsAppliesToEachElement(t *testing.T) {
	got := NormalizeUUIDs([]string{"2A37", "0x180D"})
	want := []string{"2a37", "180d"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeUUIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
