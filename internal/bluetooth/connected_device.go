package bluetooth

import "github.com/cubeast-app/connect/internal/bleapi"

// connectedDevice is the Bluetooth actor's record for one BLE-connected
// peripheral (§3, ConnectedDevice). It is only ever touched from the
// Bluetooth actor's own goroutine.
type connectedDevice struct {
	data         bleapi.DeviceData
	clientCount  int
	notifications *notificationActor
	cancel       func()
}
