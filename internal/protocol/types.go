package protocol

// Request is a flattened tagged union over every request variant (§6.1).
// Type selects which fields are meaningful; unused fields are omitted on
// the wire.
type Request struct {
	Type                    string    `json:"type"`
	DeviceID                string    `json:"device_id,omitempty"`
	CharacteristicID        string    `json:"characteristic_id,omitempty"`
	Value                   ByteArray `json:"value,omitempty"`
}

const (
	RequestStartDiscovery               = "start-discovery"
	RequestStopDiscovery                = "stop-discovery"
	RequestConnect                      = "connect"
	RequestDisconnect                   = "disconnect"
	RequestReadCharacteristic           = "read-characteristic"
	RequestWriteCharacteristic          = "write-characteristic"
	RequestSubscribeToCharacteristic    = "subscribe-to-characteristic"
	RequestUnsubscribeFromCharacteristic = "unsubscribe-from-characteristic"
	RequestStatus                       = "status"
)

// Response is a flattened tagged union over every response variant
// (§6.1), discriminated by Result.
type Response struct {
	Result    string     `json:"result"`
	Category  string     `json:"category,omitempty"`
	Code      string     `json:"code,omitempty"`
	Timestamp uint64     `json:"timestamp,omitempty"`
	Value     ByteArray  `json:"value,omitempty"`
	Status    *Status    `json:"status,omitempty"`
	Device    *DeviceData `json:"device,omitempty"`
}

const (
	ResultOk        = "ok"
	ResultError     = "error"
	ResultValue     = "value"
	ResultStatus    = "status"
	ResultConnected = "connected"
)

func OkResponse() Response { return Response{Result: ResultOk} }

func ErrorResponse(category, code string) Response {
	return Response{Result: ResultError, Category: category, Code: code}
}

func ValueResponse(timestampMs uint64, value []byte) Response {
	return Response{Result: ResultValue, Timestamp: timestampMs, Value: value}
}

func ConnectedResponse(device DeviceData) Response {
	return Response{Result: ResultConnected, Device: &device}
}

func StatusResponse(status Status) Response {
	return Response{Result: ResultStatus, Status: &status}
}

// Broadcast is a flattened tagged union over every broadcast variant
// (§6.1), discriminated by Type.
type Broadcast struct {
	Type             string            `json:"type"`
	Devices          []DiscoveredDevice `json:"devices,omitempty"`
	Timestamp        uint64            `json:"timestamp,omitempty"`
	DeviceID         string            `json:"device_id,omitempty"`
	CharacteristicID string            `json:"characteristic_id,omitempty"`
	Value            ByteArray         `json:"value,omitempty"`
	Status           *Status           `json:"status,omitempty"`
}

const (
	BroadcastDiscoveredDevices   = "discovered-devices"
	BroadcastCharacteristicValue = "characteristic-value"
	BroadcastDisconnected        = "disconnected"
	BroadcastStatusChanged       = "status-changed"
)

func DiscoveredDevicesBroadcast(devices []DiscoveredDevice) Broadcast {
	return Broadcast{Type: BroadcastDiscoveredDevices, Devices: devices}
}

func CharacteristicValueBroadcast(deviceID, characteristicID string, timestampMs uint64, value []byte) Broadcast {
	return Broadcast{
		Type:             BroadcastCharacteristicValue,
		DeviceID:         deviceID,
		CharacteristicID: characteristicID,
		Timestamp:        timestampMs,
		Value:            value,
	}
}

func DisconnectedBroadcast(deviceID string) Broadcast {
	return Broadcast{Type: BroadcastDisconnected, DeviceID: deviceID}
}

func StatusChangedBroadcast(status Status) Broadcast {
	return Broadcast{Type: BroadcastStatusChanged, Status: &status}
}

// Status mirrors the external update subsystem's status values (§6.1);
// the core only forwards these, it never produces them itself.
type Status struct {
	Type     string `json:"type"`
	Progress int    `json:"progress,omitempty"`
	Version  string `json:"version,omitempty"`
}

const (
	StatusCheckingForUpdates = "checking-for-updates"
	StatusDownloadingUpdate  = "downloading-update"
	StatusRunning            = "running"
)

// DiscoveredDevice is the wire shape of bleapi.DiscoveredDevice (§3).
type DiscoveredDevice struct {
	ID               string            `json:"id"`
	Name             *string           `json:"name,omitempty"`
	Address          *string           `json:"address,omitempty"`
	RSSI             *int              `json:"rssi,omitempty"`
	ManufacturerData map[string]string `json:"manufacturer_data,omitempty"`
}

// CharacteristicDescriptor is the wire shape of bleapi.CharacteristicDescriptor.
type CharacteristicDescriptor struct {
	UUID                 string `json:"uuid"`
	Read                 bool   `json:"read"`
	Write                bool   `json:"write"`
	WriteWithoutResponse bool   `json:"write_without_response"`
	Notify               bool   `json:"notify"`
}

// ServiceDescriptor is the wire shape of bleapi.ServiceDescriptor.
type ServiceDescriptor struct {
	UUID            string                     `json:"uuid"`
	Characteristics []CharacteristicDescriptor `json:"characteristics"`
}

// DeviceData is the wire shape of bleapi.DeviceData, returned on a
// successful connect (§3).
type DeviceData struct {
	ID               string              `json:"id"`
	Name             *string             `json:"name,omitempty"`
	Address          *string             `json:"address,omitempty"`
	ManufacturerData map[string]string   `json:"manufacturer_data,omitempty"`
	Services         []ServiceDescriptor `json:"services"`
}
