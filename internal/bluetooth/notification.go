package bluetooth

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bleapi"
	"github.com/cubeast-app/connect/internal/groutine"
)

// NotificationSubscription is the handle a session holds for one
// characteristic subscription (§3, S2).
type NotificationSubscription struct {
	charID bleapi.CharacteristicId
	id     int
	values chan bleapi.CharacteristicValue
}

func (s *NotificationSubscription) Values() <-chan bleapi.CharacteristicValue { return s.values }

type notifItem struct {
	charID bleapi.CharacteristicId
	value  bleapi.CharacteristicValue
}

// notificationActor owns NotificationSubscriberCount for one connected
// peripheral, one per characteristic (§3 N1, §4.3). Like discoveryActor it
// runs on its own goroutine, fed by one forwarder per subscribed
// characteristic that drains the adapter's per-subscription channel.
type notificationActor struct {
	adapter  bleapi.Adapter
	deviceID bleapi.DeviceId
	logger   *logrus.Logger

	cmds     chan func()
	incoming chan notifItem

	counts      map[bleapi.CharacteristicId]int
	subscribers map[bleapi.CharacteristicId]map[int]chan bleapi.CharacteristicValue
	nextID      int
}

func newNotificationActor(adapter bleapi.Adapter, deviceID bleapi.DeviceId, logger *logrus.Logger) *notificationActor {
	return &notificationActor{
		adapter:     adapter,
		deviceID:    deviceID,
		logger:      logger,
		cmds:        make(chan func(), 16),
		incoming:    make(chan notifItem, 64),
		counts:      make(map[bleapi.CharacteristicId]int),
		subscribers: make(map[bleapi.CharacteristicId]map[int]chan bleapi.CharacteristicValue),
	}
}

func (n *notificationActor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.closeAll()
			return
		case cmd := <-n.cmds:
			cmd()
		case item := <-n.incoming:
			n.dispatch(item)
		}
	}
}

// dispatch fans an incoming value out to every subscriber of its
// characteristic. A slow subscriber delays delivery to the others sharing
// this peripheral; sessions are expected to keep pace with their socket.
func (n *notificationActor) dispatch(item notifItem) {
	for _, ch := range n.subscribers[item.charID] {
		ch <- item.value
	}
}

func (n *notificationActor) closeAll() {
	for _, byID := range n.subscribers {
		for _, ch := range byID {
			close(ch)
		}
	}
	n.subscribers = make(map[bleapi.CharacteristicId]map[int]chan bleapi.CharacteristicValue)
	n.counts = make(map[bleapi.CharacteristicId]int)
}

// Subscribe increments per_characteristic_count[char_id] (§4.3). On 0→1 it
// locates the characteristic in the cached service table, fails
// CharacteristicNotFound if absent or NotSupported if NOTIFY is clear, and
// calls the adapter's subscribe.
func (n *notificationActor) Subscribe(ctx context.Context, services []bleapi.ServiceDescriptor, charID bleapi.CharacteristicId) (*NotificationSubscription, error) {
	type result struct {
		sub *NotificationSubscription
		err error
	}
	resCh := make(chan result, 1)
	n.cmds <- func() {
		if n.counts[charID] == 0 {
			desc, ok := bleapi.FindCharacteristic(services, charID)
			if !ok {
				resCh <- result{err: bleapi.ErrCharacteristicNotFound}
				return
			}
			if !desc.Notify {
				resCh <- result{err: bleapi.New(bleapi.CategorySystem, bleapi.CodeNotSupported, nil)}
				return
			}
			upstream, err := n.adapter.SubscribeCharacteristic(ctx, n.deviceID, charID)
			if err != nil {
				resCh <- result{err: err}
				return
			}
			groutine.Go(context.Background(), "notification-forward", func(gctx context.Context) {
				for v := range upstream {
					select {
					case n.incoming <- notifItem{charID: charID, value: v}:
					case <-gctx.Done():
						return
					}
				}
			})
		}
		n.counts[charID]++

		id := n.nextID
		n.nextID++
		ch := make(chan bleapi.CharacteristicValue, 64)
		if n.subscribers[charID] == nil {
			n.subscribers[charID] = make(map[int]chan bleapi.CharacteristicValue)
		}
		n.subscribers[charID][id] = ch
		resCh <- result{sub: &NotificationSubscription{charID: charID, id: id, values: ch}}
	}
	select {
	case r := <-resCh:
		return r.sub, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe decrements the count for sub's characteristic, calling the
// adapter's unsubscribe and erasing the key on the 1→0 transition (§4.3).
// Unsubscribing an already-removed subscription is a no-op.
func (n *notificationActor) Unsubscribe(sub *NotificationSubscription) {
	done := make(chan struct{})
	n.cmds <- func() {
		defer close(done)
		byID, ok := n.subscribers[sub.charID]
		if !ok {
			return
		}
		ch, ok := byID[sub.id]
		if !ok {
			return
		}
		delete(byID, sub.id)
		close(ch)
		if len(byID) == 0 {
			delete(n.subscribers, sub.charID)
		}

		if n.counts[sub.charID] > 0 {
			n.counts[sub.charID]--
		}
		if n.counts[sub.charID] == 0 {
			delete(n.counts, sub.charID)
			if err := n.adapter.UnsubscribeCharacteristic(context.Background(), n.deviceID, sub.charID); err != nil && n.logger != nil {
				n.logger.WithError(err).Warn("notification: failed to unsubscribe characteristic")
			}
		}
	}
	<-done
}
