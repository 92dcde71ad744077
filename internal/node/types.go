// Package node defines the message shapes and topic layout shared by the
// daemon and the tools. Field names match what the collection backend
// already consumes.
package node

// Reading is one instantaneous sensor capture. The timestamp is milliseconds
// of node uptime, matching the firmware the backend was built against.
type Reading struct {
	Current   float64 // amperes
	Voltage   float64 // volts
	Power     float64 // watts
	Timestamp int64   // ms since process start
}

// LinkInfo tags every outbound message with the observable identity of the
// wireless link, or explicit disconnected markers.
type LinkInfo struct {
	WifiConnected bool   `json:"wifi_connected"`
	WifiSSID      string `json:"wifi_ssid"`
	WifiRSSI      int    `json:"wifi_rssi"`
	WifiIP        string `json:"wifi_ip"`
}

type Telemetry struct {
	DeviceID  string  `json:"device_id"`
	Timestamp int64   `json:"timestamp"`
	Current   float64 `json:"current"`
	Voltage   float64 `json:"voltage"`
	Power     float64 `json:"power"`
	LinkInfo
}

// Status carries the relay states. It doubles as the command acknowledgment,
// where Result is set to "ok".
type Status struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
	RelayCh1  bool   `json:"relay_ch1"`
	RelayCh2  bool   `json:"relay_ch2"`
	Result    string `json:"status,omitempty"`
	LinkInfo
}

// Topics is the per-device topic triple.
type Topics struct {
	Sensor  string
	Command string
	Status  string
}

func TopicsFor(prefix, deviceID string) Topics {
	return Topics{
		Sensor:  prefix + "/sensor/" + deviceID,
		Command: prefix + "/command/" + deviceID,
		Status:  prefix + "/status/" + deviceID,
	}
}
