// Package bluetooth implements the Bluetooth actor (§4.1): the single
// owner of the host BLE adapter. It serializes every adapter-touching
// operation through one goroutine's command queue, and owns the discovery
// actor and the set of connected-device records, each with its own
// notification actor (§4.2, §4.3).
package bluetooth

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/groutine"
)

// DisconnectSubscription is a session's handle on the Bluetooth actor's
// disconnect feed, used to deliver the unsolicited `disconnected`
// broadcast (§4.1, §4.5) to every session holding a ConnectedDevice
// reference for the affected peripheral, not just ones subscribed to its
// notifications.
type DisconnectSubscription struct {
	id     int
	values chan bleapi.DeviceId
}

func (s *DisconnectSubscription) Values() <-chan bleapi.DeviceId { return s.values }

// Actor is the Bluetooth actor. Construct with New, which spawns its
// goroutine; call Close to release the adapter.
type Actor struct {
	adapter bleapi.Adapter
	logger  *logrus.Logger
	retry   RetryTelemetry

	cmds chan func()

	discovery *discoveryActor

	connected map[bleapi.DeviceId]*connectedDevice

	disconnectSubs   map[int]chan bleapi.DeviceId
	nextDisconnectID int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RetryTelemetry is retained for future aggregate metrics; currently
// per-connect RetryCount is reported directly on DeviceData (SPEC_FULL.md
// §12) so this carries no fields yet.
type RetryTelemetry struct{}

// New constructs the Bluetooth actor over the given adapter and starts its
// command-processing goroutine along with the discovery actor's.
func New(adapter bleapi.Adapter, logger *logrus.Logger) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		adapter:        adapter,
		logger:         logger,
		cmds:           make(chan func(), 64),
		discovery:      newDiscoveryActor(adapter, logger),
		connected:      make(map[bleapi.DeviceId]*connectedDevice),
		disconnectSubs: make(map[int]chan bleapi.DeviceId),
		ctx:            ctx,
		cancel:         cancel,
	}
	a.wg.Add(2)
	groutine.Go(ctx, "bluetooth-actor", func(gctx context.Context) {
		defer a.wg.Done()
		a.run(gctx)
	})
	groutine.Go(ctx, "discovery-actor", func(gctx context.Context) {
		defer a.wg.Done()
		a.discovery.run(gctx)
	})
	return a
}

func (a *Actor) run(ctx context.Context) {
	if a.logger != nil {
		defer a.logger.Debugf("%s: exiting", groutine.GetName(ctx))
	}
	events := a.adapter.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.cmds:
			cmd()
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleAdapterEvent(ev)
		}
	}
}

func (a *Actor) handleAdapterEvent(ev bleapi.AdapterEvent) {
	switch ev.Kind {
	case bleapi.EventDeviceDiscovered, bleapi.EventDeviceUpdated, bleapi.EventManufacturerDataAdvertisement:
		a.discovery.notifyEvent()
	case bleapi.EventDeviceDisconnected:
		a.teardownConnectedDevice(ev.DeviceID)
		a.broadcastDisconnect(ev.DeviceID)
	}
}

func (a *Actor) broadcastDisconnect(id bleapi.DeviceId) {
	for _, ch := range a.disconnectSubs {
		select {
		case ch <- id:
		default:
		}
	}
}

// teardownConnectedDevice stops the notification actor and removes the
// record, without touching the adapter (the peripheral is already gone).
// Called from the actor's own goroutine only.
func (a *Actor) teardownConnectedDevice(id bleapi.DeviceId) {
	cd, ok := a.connected[id]
	if !ok {
		return
	}
	delete(a.connected, id)
	if cd.cancel != nil {
		cd.cancel()
	}
}

// SubscribeDisconnections registers a session-global disconnect feed. Call
// once per session and filter by the device IDs that session currently
// holds a connection to.
func (a *Actor) SubscribeDisconnections() *DisconnectSubscription {
	done := make(chan *DisconnectSubscription, 1)
	a.cmds <- func() {
		id := a.nextDisconnectID
		a.nextDisconnectID++
		ch := make(chan bleapi.DeviceId, 16)
		a.disconnectSubs[id] = ch
		done <- &DisconnectSubscription{id: id, values: ch}
	}
	return <-done
}

func (a *Actor) UnsubscribeDisconnections(sub *DisconnectSubscription) {
	done := make(chan struct{})
	a.cmds <- func() {
		defer close(done)
		if ch, ok := a.disconnectSubs[sub.id]; ok {
			delete(a.disconnectSubs, sub.id)
			close(ch)
		}
	}
	<-done
}

func (a *Actor) SubscribeDiscovery(ctx context.Context) (*DiscoverySubscription, error) {
	return a.discovery.Subscribe(ctx)
}

func (a *Actor) UnsubscribeDiscovery(sub *DiscoverySubscription) {
	a.discovery.Unsubscribe(sub)
}

// ResolveDeviceByName looks up a peripheral's DeviceId by its advertised
// name in the current discovery roster (SPEC_FULL.md §12's by-name connect
// sugar; never consulted by the protocol dispatcher itself, which only
// ever takes a DeviceId off the wire). Matching is case-insensitive. Zero
// matches or more than one both report connectivity/device_not_found: an
// ambiguous name is as unusable as an absent one.
func (a *Actor) ResolveDeviceByName(ctx context.Context, name string) (bleapi.DeviceId, error) {
	devices, err := a.discovery.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	var match bleapi.DeviceId
	matches := 0
	for _, d := range devices {
		if d.Name != nil && strings.EqualFold(*d.Name, name) {
			match = d.ID
			matches++
		}
	}
	if matches != 1 {
		return "", bleapi.ErrDeviceNotFound
	}
	return match, nil
}

// Connect implements §4.1's connect algorithm. Service-discovery retry is
// delegated to the adapter (bleapi.Adapter.Connect's contract requires
// every implementation to apply it), so this only handles reference
// counting and notification-actor lifecycle.
func (a *Actor) Connect(ctx context.Context, id bleapi.DeviceId) (bleapi.DeviceData, error) {
	type result struct {
		data bleapi.DeviceData
		err  error
	}
	resCh := make(chan result, 1)
	a.cmds <- func() {
		if cd, ok := a.connected[id]; ok {
			cd.clientCount++
			resCh <- result{data: cd.data}
			return
		}

		peers, err := a.adapter.Peripherals(ctx)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		found := false
		for _, p := range peers {
			if p.ID == id {
				found = true
				break
			}
		}
		if !found {
			resCh <- result{err: bleapi.ErrDeviceNotFound}
			return
		}

		data, err := a.adapter.Connect(ctx, id)
		if err != nil {
			resCh <- result{err: err}
			return
		}

		notifCtx, notifCancel := context.WithCancel(a.ctx)
		notif := newNotificationActor(a.adapter, id, a.logger)
		groutine.Go(notifCtx, "notification-actor", func(gctx context.Context) {
			notif.run(gctx)
		})

		a.connected[id] = &connectedDevice{
			data:          data,
			clientCount:   1,
			notifications: notif,
			cancel:        notifCancel,
		}
		resCh <- result{data: data}
	}
	select {
	case r := <-resCh:
		return r.data, r.err
	case <-ctx.Done():
		return bleapi.DeviceData{}, ctx.Err()
	}
}

// Disconnect implements §4.1's disconnect algorithm: decrement
// client_count; at zero, stop the notification actor, request peripheral
// disconnect, then remove the record.
func (a *Actor) Disconnect(ctx context.Context, id bleapi.DeviceId) error {
	errCh := make(chan error, 1)
	a.cmds <- func() {
		cd, ok := a.connected[id]
		if !ok {
			errCh <- bleapi.ErrDeviceNotFound
			return
		}
		cd.clientCount--
		if cd.clientCount > 0 {
			errCh <- nil
			return
		}
		delete(a.connected, id)
		if cd.cancel != nil {
			cd.cancel()
		}
		errCh <- a.adapter.Disconnect(ctx, id)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) ReadCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (bleapi.CharacteristicValue, error) {
	type result struct {
		value bleapi.CharacteristicValue
		err   error
	}
	resCh := make(chan result, 1)
	a.cmds <- func() {
		cd, ok := a.connected[id]
		if !ok {
			resCh <- result{err: bleapi.ErrDeviceNotFound}
			return
		}
		if _, ok := bleapi.FindCharacteristic(cd.data.Services, charID); !ok {
			resCh <- result{err: bleapi.ErrCharacteristicNotFound}
			return
		}
		value, err := a.adapter.ReadCharacteristic(ctx, id, charID)
		resCh <- result{value: value, err: err}
	}
	select {
	case r := <-resCh:
		return r.value, r.err
	case <-ctx.Done():
		return bleapi.CharacteristicValue{}, ctx.Err()
	}
}

func (a *Actor) WriteCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId, value []byte) error {
	errCh := make(chan error, 1)
	a.cmds <- func() {
		cd, ok := a.connected[id]
		if !ok {
			errCh <- bleapi.ErrDeviceNotFound
			return
		}
		if _, ok := bleapi.FindCharacteristic(cd.data.Services, charID); !ok {
			errCh <- bleapi.ErrCharacteristicNotFound
			return
		}
		errCh <- a.adapter.WriteCharacteristic(ctx, id, charID, value)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) SubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, charID bleapi.CharacteristicId) (*NotificationSubscription, error) {
	type result struct {
		notif    *notificationActor
		services []bleapi.ServiceDescriptor
		err      error
	}
	// Resolve the owning notification actor and its cached service table
	// in one round trip through the Bluetooth actor, then delegate the
	// subscribe itself to the notification actor.
	resCh := make(chan result, 1)
	a.cmds <- func() {
		cd, ok := a.connected[id]
		if !ok {
			resCh <- result{err: bleapi.ErrDeviceNotFound}
			return
		}
		resCh <- result{notif: cd.notifications, services: cd.data.Services}
	}
	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		return r.notif.Subscribe(ctx, r.services, charID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) UnsubscribeCharacteristic(ctx context.Context, id bleapi.DeviceId, sub *NotificationSubscription) error {
	resCh := make(chan *notificationActor, 1)
	a.cmds <- func() {
		if cd, ok := a.connected[id]; ok {
			resCh <- cd.notifications
		} else {
			resCh <- nil
		}
	}
	notif := <-resCh
	if notif == nil {
		return nil
	}
	notif.Unsubscribe(sub)
	return nil
}

// Close stops the Bluetooth actor and the adapter it owns.
func (a *Actor) Close() error {
	a.cancel()
	a.wg.Wait()
	return a.adapter.Close()
}
