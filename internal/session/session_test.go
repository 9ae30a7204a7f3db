package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/bleapi/bleapitest"
	"github.com/cubeast-app/connect/internal/bluetooth"
	"github.com/cubeast-app/connect/internal/protocol"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeConn is an in-memory session.Conn: writes land on out, reads are
// served from in, and Close unblocks any pending ReadMessage.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case c.out <- data:
		return nil
	default:
		return nil
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) sendRequest(t *testing.T, id string, req protocol.Request) {
	t.Helper()
	frame, err := protocol.EncodeRequest(id, req)
	require.NoError(t, err)
	c.in <- frame
}

func (c *fakeConn) awaitFrame(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case frame := <-c.out:
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return protocol.Envelope{}
	}
}

// awaitResponse returns the next response frame, skipping any broadcast
// frames (such as the discovered-devices snapshot that follows a
// start-discovery) written before it.
func (c *fakeConn) awaitResponse(t *testing.T) protocol.Envelope {
	t.Helper()
	for {
		env := c.awaitFrame(t)
		if env.Type != protocol.EnvelopeBroadcast {
			return env
		}
	}
}

func newTestSession(t *testing.T) (*Session, *fakeConn, *bluetooth.Actor, *bleapitest.Adapter) {
	t.Helper()
	adapter := bleapitest.New()
	bt := bluetooth.New(adapter, testLogger())
	conn := newFakeConn()
	sess := New(context.Background(), conn, bt, testLogger(), "1.2.3", nil, 0)
	go sess.Run()
	t.Cleanup(func() {
		conn.Close()
		bt.Close()
	})
	return sess, conn, bt, adapter
}

func TestStartDiscoveryIsIdempotentPerSession(t *testing.T) {
	_, conn, _, _ := newTestSession(t)

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestStartDiscovery})
	env := conn.awaitFrame(t)
	assert.Equal(t, protocol.EnvelopeResponse, env.Type)
	assert.Equal(t, "1", env.ID)

	conn.sendRequest(t, "2", protocol.Request{Type: protocol.RequestStartDiscovery})
	env = conn.awaitResponse(t)
	assert.Equal(t, "2", env.ID)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	assert.Equal(t, protocol.ResultOk, resp.Result)
}

func TestStopDiscoveryWithNothingRunningErrors(t *testing.T) {
	_, conn, _, _ := newTestSession(t)

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestStopDiscovery})
	env := conn.awaitFrame(t)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	assert.Equal(t, protocol.ResultError, resp.Result)
	assert.Equal(t, "internal", resp.Category)
	assert.Equal(t, "invalid_state", resp.Code)
}

func TestConnectReturnsConnectedDeviceData(t *testing.T) {
	_, conn, _, adapter := newTestSession(t)
	adapter.AddPeripheral(bleapi.DiscoveredDevice{ID: "dev-1"})

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestConnect, DeviceID: "dev-1"})
	env := conn.awaitFrame(t)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	require.Equal(t, protocol.ResultConnected, resp.Result)
	require.NotNil(t, resp.Device)
	assert.Equal(t, "dev-1", resp.Device.ID)
}

func TestConnectUnknownDeviceReturnsError(t *testing.T) {
	_, conn, _, _ := newTestSession(t)

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestConnect, DeviceID: "ghost"})
	env := conn.awaitFrame(t)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	assert.Equal(t, protocol.ResultError, resp.Result)
	assert.Equal(t, "connectivity", resp.Category)
	assert.Equal(t, "device_not_found", resp.Code)
}

func TestMalformedFrameProducesErrorEnvelopeWithoutID(t *testing.T) {
	_, conn, _, _ := newTestSession(t)

	conn.in <- []byte("not json")
	env := conn.awaitFrame(t)
	assert.Equal(t, protocol.EnvelopeError, env.Type)
	assert.Empty(t, env.ID)
}

func TestNotificationSubscribeProducesBroadcast(t *testing.T) {
	_, conn, _, adapter := newTestSession(t)
	adapter.AddPeripheral(bleapi.DiscoveredDevice{ID: "dev-1"})
	adapter.QueueConnect("dev-1", bleapitest.ConnectAttempt{
		Services: []bleapi.ServiceDescriptor{{
			UUID:            "180d",
			Characteristics: []bleapi.CharacteristicDescriptor{{UUID: "2a37", Notify: true}},
		}},
	})

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestConnect, DeviceID: "dev-1"})
	conn.awaitFrame(t)

	conn.sendRequest(t, "2", protocol.Request{Type: protocol.RequestSubscribeToCharacteristic, DeviceID: "dev-1", CharacteristicID: "2a37"})
	env := conn.awaitFrame(t)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	assert.Equal(t, protocol.ResultOk, resp.Result)

	require.Eventually(t, func() bool {
		return adapter.PublishNotification("dev-1", "2a37", []byte{9})
	}, time.Second, time.Millisecond)

	env = conn.awaitFrame(t)
	assert.Equal(t, protocol.EnvelopeBroadcast, env.Type)
	var b protocol.Broadcast
	require.NoError(t, json.Unmarshal(env.Broadcast, &b))
	assert.Equal(t, protocol.BroadcastCharacteristicValue, b.Type)
	assert.Equal(t, "dev-1", b.DeviceID)
	assert.Equal(t, []byte{9}, []byte(b.Value))
}

func TestStatusDefaultsToRunningWithVersion(t *testing.T) {
	_, conn, _, _ := newTestSession(t)

	conn.sendRequest(t, "1", protocol.Request{Type: protocol.RequestStatus})
	env := conn.awaitFrame(t)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &resp))
	require.NotNil(t, resp.Status)
	assert.Equal(t, protocol.StatusRunning, resp.Status.Type)
	assert.Equal(t, "1.2.3", resp.Status.Version)
}
