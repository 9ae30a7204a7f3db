package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeast-app/connect/internal/bleapi"
)

func TestByteArrayMarshalsAsNumberArray(t *testing.T) {
	b, err := json.Marshal(ByteArray{1, 2, 255})
	require.NoError(t, err)
	assert.JSONEq(t, "[1,2,255]", string(b))
}

func TestByteArrayMarshalsNilAsNull(t *testing.T) {
	var b ByteArray
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestByteArrayRoundTrips(t *testing.T) {
	var b ByteArray
	require.NoError(t, json.Unmarshal([]byte("[1,2,3]"), &b))
	assert.Equal(t, ByteArray{1, 2, 3}, b)
}

func TestEncodeRequestRoundTripsThroughEnvelope(t *testing.T) {
	frame, err := EncodeRequest("req-1", Request{Type: RequestConnect, DeviceID: "dev-1"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EnvelopeRequest, env.Type)
	assert.Equal(t, "req-1", env.ID)

	req, err := DecodeRequest(env)
	require.NoError(t, err)
	assert.Equal(t, RequestConnect, req.Type)
	assert.Equal(t, "dev-1", req.DeviceID)
}

func TestEncodeMalformedErrorHasNoID(t *testing.T) {
	frame, err := EncodeMalformedError("bad json")
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EnvelopeError, env.Type)
	assert.Equal(t, "bad json", env.Message)
	assert.Empty(t, env.ID)
}

func TestFromDiscoveredDeviceHexEncodesManufacturerData(t *testing.T) {
	name := "Heart Monitor"
	d := bleapi.DiscoveredDevice{
		ID:               "dev-1",
		Name:             &name,
		ManufacturerData: map[uint16][]byte{0x004C: {0x01, 0x02}},
	}
	wire := FromDiscoveredDevice(d)
	assert.Equal(t, "dev-1", wire.ID)
	assert.Equal(t, "Heart Monitor", *wire.Name)
	assert.Equal(t, "0102", wire.ManufacturerData["004c"])
}

func TestErrorCategoryCodeExtractsTaxonomy(t *testing.T) {
	category, code := ErrorCategoryCode(bleapi.ErrCharacteristicNotFound)
	assert.Equal(t, "device", category)
	assert.Equal(t, "characteristic_not_found", code)
}

func TestErrorCategoryCodeNormalizesUnrecognizedErrors(t *testing.T) {
	category, code := ErrorCategoryCode(assertError{"device not found: foo"})
	assert.Equal(t, "connectivity", category)
	assert.Equal(t, "device_not_found", code)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
