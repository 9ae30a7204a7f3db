package listener

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type staticAllower struct{ allowed map[string]bool }

func (a staticAllower) Allowed(origin string) bool { return a.allowed[origin] }

func TestCheckOriginAllowAnyOriginBypassesAllowList(t *testing.T) {
	l := &Listener{opts: Options{AllowAnyOrigin: true}}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, l.checkOrigin(req))
}

func TestCheckOriginDefaultsToProductionHosts(t *testing.T) {
	l := &Listener{}

	allowed := httptest.NewRequest("GET", "/", nil)
	allowed.Header.Set("Origin", "https://app.cubeast.com")
	assert.True(t, l.checkOrigin(allowed))

	rejected := httptest.NewRequest("GET", "/", nil)
	rejected.Header.Set("Origin", "https://not-cubeast.example")
	assert.False(t, l.checkOrigin(rejected))
}

func TestCheckOriginUsesAllowerWhenSet(t *testing.T) {
	l := &Listener{opts: Options{Allowed: staticAllower{allowed: map[string]bool{"https://partner.example": true}}}}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://partner.example")
	assert.True(t, l.checkOrigin(req))

	// Production hosts are not implicitly allowed once an explicit
	// allower is configured; it fully replaces the default map.
	req2 := httptest.NewRequest("GET", "/", nil)
	req2.Header.Set("Origin", "https://app.cubeast.com")
	assert.False(t, l.checkOrigin(req2))
}

func TestHandleUpgradeRejectsDisallowedOrigin(t *testing.T) {
	adapter := bleapitest.New()
	bt := bluetooth.New(adapter, testLogger())
	defer bt.Close()

	l := New(Options{}, bt, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(l.handleUpgrade))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://not-allowed.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleUpgradeAcceptsAllowedOriginAndServesSession(t *testing.T) {
	adapter := bleapitest.New()
	bt := bluetooth.New(adapter, testLogger())
	defer bt.Close()

	l := New(Options{Version: "9.9.9"}, bt, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(l.handleUpgrade))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://app.cubeast.com")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.sessions) == 1
	}, time.Second, time.Millisecond)

	frame, err := protocol.EncodeRequest("1", protocol.Request{Type: protocol.RequestStatus})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, protocol.EnvelopeResponse, env.Type)

	var respBody protocol.Response
	require.NoError(t, json.Unmarshal(env.Response, &respBody))
	require.NotNil(t, respBody.Status)
	assert.Equal(t, "9.9.9", respBody.Status.Version)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.sessions) == 0
	}, time.Second, time.Millisecond)
}
