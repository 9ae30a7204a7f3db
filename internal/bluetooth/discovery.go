package bluetooth

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/ringchan"
)

// DiscoverySubscription is the handle a session holds for one discovery
// subscription (§3, S1). Values delivers roster snapshots, starting with
// the current one at subscribe time (§4.2).
type DiscoverySubscription struct {
	id     int
	values *ringchan.RingChannel[[]bleapi.DiscoveredDevice]
}

func (s *DiscoverySubscription) Values() <-chan []bleapi.DiscoveredDevice { return s.values.C() }

// discoveryActor owns DiscoverySubscriberCount and the rolling roster
// (§3 D1, §4.2). It runs on its own goroutine so a slow re-enumeration
// (an adapter.Peripherals call) never blocks the Bluetooth actor's
// command queue.
type discoveryActor struct {
	adapter bleapi.Adapter
	logger  *logrus.Logger

	cmds    chan func()
	trigger chan struct{}

	subscribers map[int]*ringchan.RingChannel[[]bleapi.DiscoveredDevice]
	nextID      int
	count       int
	snapshot    []bleapi.DiscoveredDevice
	scanning    bool
}

func newDiscoveryActor(adapter bleapi.Adapter, logger *logrus.Logger) *discoveryActor {
	return &discoveryActor{
		adapter:     adapter,
		logger:      logger,
		cmds:        make(chan func(), 16),
		trigger:     make(chan struct{}, 1),
		subscribers: make(map[int]*ringchan.RingChannel[[]bleapi.DiscoveredDevice]),
	}
}

func (d *discoveryActor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.cmds:
			cmd()
		case <-d.trigger:
			d.reenumerate(ctx)
		}
	}
}

// notifyEvent is called by the Bluetooth actor's event loop for every
// DeviceDiscovered/DeviceUpdated/ManufacturerDataAdvertisement event; it
// never blocks, coalescing bursts into a single re-enumeration.
func (d *discoveryActor) notifyEvent() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *discoveryActor) reenumerate(ctx context.Context) {
	devices, err := d.adapter.Peripherals(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.WithError(err).Warn("discovery: failed to enumerate peripherals")
		}
		return
	}
	sorted := append([]bleapi.DiscoveredDevice(nil), devices...)
	bleapi.SortDiscoveredDevices(sorted)

	if devicesEqual(sorted, d.snapshot) {
		return
	}
	d.snapshot = sorted
	for _, rc := range d.subscribers {
		rc.Send(sorted)
	}
}

func devicesEqual(a, b []bleapi.DiscoveredDevice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].EqualPayload(b[i]) {
			return false
		}
	}
	return true
}

// Subscribe increments the subscriber count, starting the physical scan
// on the 0→1 transition, and hands back a subscription that immediately
// carries the current snapshot (§4.2).
func (d *discoveryActor) Subscribe(ctx context.Context) (*DiscoverySubscription, error) {
	type result struct {
		sub *DiscoverySubscription
		err error
	}
	resCh := make(chan result, 1)
	d.cmds <- func() {
		d.count++
		id := d.nextID
		d.nextID++
		rc := ringchan.NewRingChannel[[]bleapi.DiscoveredDevice](4)
		d.subscribers[id] = rc

		if d.count == 1 && !d.scanning {
			if err := d.adapter.StartScan(context.Background()); err != nil {
				resCh <- result{err: err}
				return
			}
			d.scanning = true
		}
		rc.Send(append([]bleapi.DiscoveredDevice(nil), d.snapshot...))
		resCh <- result{sub: &DiscoverySubscription{id: id, values: rc}}
	}
	select {
	case r := <-resCh:
		return r.sub, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the current discovery roster without registering a
// subscription or affecting the scan's start/stop lifecycle, for
// ResolveDeviceByName's by-name lookup (SPEC_FULL.md §12).
func (d *discoveryActor) Snapshot(ctx context.Context) ([]bleapi.DiscoveredDevice, error) {
	resCh := make(chan []bleapi.DiscoveredDevice, 1)
	d.cmds <- func() {
		resCh <- append([]bleapi.DiscoveredDevice(nil), d.snapshot...)
	}
	select {
	case snap := <-resCh:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe decrements the subscriber count, stopping the physical scan
// on the 1→0 transition. Unsubscribing twice for the same subscription is
// a no-op (§4.2: decrementing at zero never goes negative).
func (d *discoveryActor) Unsubscribe(sub *DiscoverySubscription) {
	done := make(chan struct{})
	d.cmds <- func() {
		defer close(done)
		rc, ok := d.subscribers[sub.id]
		if !ok {
			return
		}
		delete(d.subscribers, sub.id)
		rc.Close()
		if d.count > 0 {
			d.count--
		}
		if d.count == 0 && d.scanning {
			if err := d.adapter.StopScan(context.Background()); err != nil && d.logger != nil {
				d.logger.WithError(err).Warn("discovery: failed to stop scan")
			}
			d.scanning = false
		}
	}
	<-done
}
