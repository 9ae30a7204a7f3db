// Package session implements the session actor (§4.4): one per accepted
// WebSocket, merging inbound frames with forwarders over a held discovery
// stream and any held per-characteristic notification streams, and
// dispatching requests against the Bluetooth actor.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/bluetooth"
	"github.com/cubeast-app/connect/internal/groutine"
	"github.com/cubeast-app/connect/internal/protocol"
)

// Conn is the socket sink/source the listener hands a session (§4.5): a
// text-frame transport, already upgraded and origin-checked. The session
// never imports gorilla/websocket directly.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// StatusSource supplies the external update subsystem's status (§6.1);
// the core only forwards it. A nil StatusSource makes every `status`
// request report StatusRunning with Version set from New's version arg.
type StatusSource interface {
	Status() protocol.Status
}

type notifKey struct {
	deviceID bleapi.DeviceId
	charID   bleapi.CharacteristicId
}

type discoveryEvent struct {
	devices []bleapi.DiscoveredDevice
}

type notificationEvent struct {
	key   notifKey
	value bleapi.CharacteristicValue
}

type frameResult struct {
	data []byte
	err  error
}

// Session is the per-socket session actor. Construct with New and run with
// Run, which blocks until the socket closes or the context is cancelled.
type Session struct {
	ID string

	conn           Conn
	bt             *bluetooth.Actor
	logger         *logrus.Logger
	status         StatusSource
	version        string
	connectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	frames chan frameResult
	events chan any

	disconnects *bluetooth.DisconnectSubscription

	discoverySub    *bluetooth.DiscoverySubscription
	discoveryCancel context.CancelFunc

	notificationSubs    map[notifKey]*bluetooth.NotificationSubscription
	notificationCancels map[notifKey]context.CancelFunc

	connectedDevices map[bleapi.DeviceId]struct{}

	writeMu sync.Mutex
}

// New constructs a session actor over conn. Call Run to drive it.
// connectTimeout bounds each Connect request's wait on the Bluetooth actor
// (§5: "Connect carries no explicit timeout at the core" — UI-initiated
// callers wrap it); zero means no timeout is applied.
func New(ctx context.Context, conn Conn, bt *bluetooth.Actor, logger *logrus.Logger, version string, status StatusSource, connectTimeout time.Duration) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:                  uuid.NewString(),
		conn:                conn,
		bt:                  bt,
		logger:              logger,
		status:              status,
		version:             version,
		connectTimeout:      connectTimeout,
		ctx:                 sctx,
		cancel:              cancel,
		frames:              make(chan frameResult),
		events:              make(chan any, 16),
		disconnects:         bt.SubscribeDisconnections(),
		notificationSubs:    make(map[notifKey]*bluetooth.NotificationSubscription),
		notificationCancels: make(map[notifKey]context.CancelFunc),
		connectedDevices:    make(map[bleapi.DeviceId]struct{}),
	}
}

// Run is the session's single-goroutine mailbox loop (§4.4, §5). It
// returns once the socket closes, the context is cancelled, or a read
// error occurs, after unconditionally tearing down every held stream.
func (s *Session) Run() {
	defer s.teardown()

	groutine.Go(s.ctx, "session-reader", func(ctx context.Context) {
		for {
			data, err := s.conn.ReadMessage()
			select {
			case s.frames <- frameResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	})

	for {
		select {
		case <-s.ctx.Done():
			return
		case fr := <-s.frames:
			if fr.err != nil {
				return
			}
			s.handleFrame(fr.data)
		case ev := <-s.events:
			s.handleEvent(ev)
		case id, ok := <-s.disconnects.Values():
			if !ok {
				return
			}
			s.handleDisconnect(id)
		}
	}
}

func (s *Session) handleEvent(ev any) {
	switch e := ev.(type) {
	case discoveryEvent:
		s.sendBroadcast(protocol.DiscoveredDevicesBroadcast(protocol.FromDiscoveredDevices(e.devices)))
	case notificationEvent:
		s.sendBroadcast(protocol.CharacteristicValueBroadcast(
			string(e.key.deviceID), string(e.key.charID),
			e.value.TimestampMsUnixEpoch, e.value.Value,
		))
	}
}

func (s *Session) handleDisconnect(id bleapi.DeviceId) {
	if _, ok := s.connectedDevices[id]; !ok {
		return
	}
	delete(s.connectedDevices, id)
	for key, cancel := range s.notificationCancels {
		if key.deviceID != id {
			continue
		}
		cancel()
		delete(s.notificationCancels, key)
		delete(s.notificationSubs, key)
	}
	s.sendBroadcast(protocol.DisconnectedBroadcast(string(id)))
}

func (s *Session) handleFrame(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendMalformedError("malformed json frame")
		return
	}
	if env.Type != protocol.EnvelopeRequest {
		s.sendMalformedError("expected a request frame")
		return
	}
	req, err := protocol.DecodeRequest(env)
	if err != nil {
		s.sendMalformedError("malformed request payload")
		return
	}
	s.sendResponse(env.ID, s.dispatch(req))
}

// dispatch implements §4.4's per-request table.
func (s *Session) dispatch(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.RequestStartDiscovery:
		return s.handleStartDiscovery()
	case protocol.RequestStopDiscovery:
		return s.handleStopDiscovery()
	case protocol.RequestConnect:
		return s.handleConnect(req.DeviceID)
	case protocol.RequestDisconnect:
		return s.handleDisconnect_(req.DeviceID)
	case protocol.RequestReadCharacteristic:
		return s.handleRead(req.DeviceID, req.CharacteristicID)
	case protocol.RequestWriteCharacteristic:
		return s.handleWrite(req.DeviceID, req.CharacteristicID, req.Value)
	case protocol.RequestSubscribeToCharacteristic:
		return s.handleSubscribe(req.DeviceID, req.CharacteristicID)
	case protocol.RequestUnsubscribeFromCharacteristic:
		return s.handleUnsubscribe(req.DeviceID, req.CharacteristicID)
	case protocol.RequestStatus:
		return s.handleStatus()
	default:
		return errorResponseFor(bleapi.New(bleapi.CategoryInternal, bleapi.CodeInvalidState, nil))
	}
}

func (s *Session) handleStartDiscovery() protocol.Response {
	if s.discoverySub != nil {
		return protocol.OkResponse()
	}
	sub, err := s.bt.SubscribeDiscovery(s.ctx)
	if err != nil {
		return errorResponseFor(err)
	}
	fctx, cancel := context.WithCancel(s.ctx)
	s.discoverySub = sub
	s.discoveryCancel = cancel
	groutine.Go(fctx, "session-discovery-forward", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case devices, ok := <-sub.Values():
				if !ok {
					return
				}
				select {
				case s.events <- discoveryEvent{devices: devices}:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return protocol.OkResponse()
}

func (s *Session) handleStopDiscovery() protocol.Response {
	if s.discoverySub == nil {
		return errorResponseFor(bleapi.New(bleapi.CategoryInternal, bleapi.CodeInvalidState, nil))
	}
	s.discoveryCancel()
	s.bt.UnsubscribeDiscovery(s.discoverySub)
	s.discoverySub = nil
	s.discoveryCancel = nil
	return protocol.OkResponse()
}

func (s *Session) handleConnect(deviceID string) protocol.Response {
	ctx := s.ctx
	if s.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.connectTimeout)
		defer cancel()
	}
	data, err := s.bt.Connect(ctx, bleapi.DeviceId(deviceID))
	if err != nil {
		return errorResponseFor(err)
	}
	s.connectedDevices[data.ID] = struct{}{}
	return protocol.ConnectedResponse(protocol.FromDeviceData(data))
}

// handleDisconnect_ implements the Disconnect request (named to avoid
// colliding with the unsolicited-disconnect handler handleDisconnect).
func (s *Session) handleDisconnect_(deviceID string) protocol.Response {
	id := bleapi.DeviceId(deviceID)
	for key, cancel := range s.notificationCancels {
		if key.deviceID != id {
			continue
		}
		sub := s.notificationSubs[key]
		cancel()
		s.bt.UnsubscribeCharacteristic(s.ctx, id, sub)
		delete(s.notificationCancels, key)
		delete(s.notificationSubs, key)
	}
	if err := s.bt.Disconnect(s.ctx, id); err != nil {
		return errorResponseFor(err)
	}
	delete(s.connectedDevices, id)
	return protocol.OkResponse()
}

func (s *Session) handleRead(deviceID, charID string) protocol.Response {
	value, err := s.bt.ReadCharacteristic(s.ctx, bleapi.DeviceId(deviceID), bleapi.CharacteristicId(bleapi.NormalizeUUID(charID)))
	if err != nil {
		return errorResponseFor(err)
	}
	return protocol.ValueResponse(value.TimestampMsUnixEpoch, value.Value)
}

func (s *Session) handleWrite(deviceID, charID string, value protocol.ByteArray) protocol.Response {
	err := s.bt.WriteCharacteristic(s.ctx, bleapi.DeviceId(deviceID), bleapi.CharacteristicId(bleapi.NormalizeUUID(charID)), value)
	if err != nil {
		return errorResponseFor(err)
	}
	return protocol.OkResponse()
}

func (s *Session) handleSubscribe(deviceID, charID string) protocol.Response {
	key := notifKey{deviceID: bleapi.DeviceId(deviceID), charID: bleapi.CharacteristicId(bleapi.NormalizeUUID(charID))}
	if _, ok := s.notificationSubs[key]; ok {
		return protocol.OkResponse()
	}
	sub, err := s.bt.SubscribeCharacteristic(s.ctx, key.deviceID, key.charID)
	if err != nil {
		return errorResponseFor(err)
	}
	fctx, cancel := context.WithCancel(s.ctx)
	s.notificationSubs[key] = sub
	s.notificationCancels[key] = cancel
	groutine.Go(fctx, "session-notification-forward", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case value, ok := <-sub.Values():
				if !ok {
					return
				}
				select {
				case s.events <- notificationEvent{key: key, value: value}:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return protocol.OkResponse()
}

func (s *Session) handleUnsubscribe(deviceID, charID string) protocol.Response {
	key := notifKey{deviceID: bleapi.DeviceId(deviceID), charID: bleapi.CharacteristicId(bleapi.NormalizeUUID(charID))}
	sub, ok := s.notificationSubs[key]
	if !ok {
		return errorResponseFor(bleapi.New(bleapi.CategoryInternal, bleapi.CodeInvalidState, nil))
	}
	s.notificationCancels[key]()
	s.bt.UnsubscribeCharacteristic(s.ctx, key.deviceID, sub)
	delete(s.notificationSubs, key)
	delete(s.notificationCancels, key)
	return protocol.OkResponse()
}

func (s *Session) handleStatus() protocol.Response {
	if s.status != nil {
		return protocol.StatusResponse(s.status.Status())
	}
	return protocol.StatusResponse(protocol.Status{Type: protocol.StatusRunning, Version: s.version})
}

// teardown fires every abort held by this session and issues the
// corresponding unsubscribe calls, unconditionally (§4.4, §5's "session
// drop is the only destructor that must fire").
func (s *Session) teardown() {
	s.cancel()
	if s.discoverySub != nil {
		s.bt.UnsubscribeDiscovery(s.discoverySub)
	}
	for key, sub := range s.notificationSubs {
		s.bt.UnsubscribeCharacteristic(context.Background(), key.deviceID, sub)
	}
	s.bt.UnsubscribeDisconnections(s.disconnects)
	if err := s.conn.Close(); err != nil && s.logger != nil {
		s.logger.WithError(err).Debug("session: error closing socket")
	}
}

func errorResponseFor(err error) protocol.Response {
	category, code := protocol.ErrorCategoryCode(err)
	return protocol.ErrorResponse(category, code)
}

func (s *Session) sendResponse(id string, resp protocol.Response) {
	frame, err := protocol.EncodeResponse(id, resp)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("session: failed to encode response")
		}
		return
	}
	s.write(frame)
}

func (s *Session) sendBroadcast(b protocol.Broadcast) {
	frame, err := protocol.EncodeBroadcast(b)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("session: failed to encode broadcast")
		}
		return
	}
	s.write(frame)
}

func (s *Session) sendMalformedError(message string) {
	frame, err := protocol.EncodeMalformedError(message)
	if err != nil {
		return
	}
	s.write(frame)
}

// write is the session's sole path to the socket. The mailbox loop is the
// only caller in practice (forwarders never write directly), but writeMu
// guards against the teardown path racing a final broadcast.
func (s *Session) write(frame []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(frame); err != nil && s.logger != nil {
		s.logger.WithError(err).Debug("session: write failed")
	}
}
