package goble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManufacturerDataMapSplitsLittleEndianCompanyIDPrefix(t *testing.T) {
	got := manufacturerDataMap([]byte{0x4C, 0x00, 0x01, 0x02})
	assert.Equal(t, map[uint16][]byte{0x004C: {0x01, 0x02}}, got)
}

func TestManufacturerDataMapNilOnShortPayload(t *testing.T) {
	assert.Nil(t, manufacturerDataMap(nil))
	assert.Nil(t, manufacturerDataMap([]byte{0x01}))
}

func TestManufacturerDataMapAllowsEmptyPayloadAfterPrefix(t *testing.T) {
	got := manufacturerDataMap([]byte{0x4C, 0x00})
	assert.Equal(t, map[uint16][]byte{0x004C: {}}, got)
}
