package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

/* =========================
   Types
   ========================= */

type NodeConfig struct {
	DeviceID    string         `json:"deviceId"`
	TopicPrefix string         `json:"topicPrefix"`
	Wireless    WirelessConfig `json:"wireless"`
	Broker      BrokerConfig   `json:"broker"`
	Bus         BusConfig      `json:"bus"`
	Sensor      SensorConfig   `json:"sensor"`
	Relays      RelayConfig    `json:"relays"`
	Timing      TimingConfig   `json:"timing"`
}

type WirelessConfig struct {
	Interface      string `json:"interface"`
	SSID           string `json:"ssid"`
	Password       string `json:"password"`
	ReassocCommand string `json:"reassocCommand,omitempty"` // overrides the wpa_cli default
	AssocPollCount int    `json:"assocPollCount"`           // association status polls per repair
	AssocPollMs    int    `json:"assocPollMs"`              // pause between polls
}

type BrokerConfig struct {
	URL              string `json:"url"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	ClientIDPrefix   string `json:"clientIdPrefix"`
	ConnectAttempts  int    `json:"connectAttempts"` // connect tries per repair
	ConnectPauseMs   int    `json:"connectPauseMs"`  // pause between tries
	PublishTimeoutMs int    `json:"publishTimeoutMs"`
	InboundBuffer    int    `json:"inboundBuffer"` // queued inbound commands
}

// BusConfig describes the Modbus field bus carrying the sensor bridge and
// the relay module.
type BusConfig struct {
	Type      string `json:"type"` // "rtu" | "tcp"
	TCPAddr   string `json:"tcpAddr"`
	Port      string `json:"port"`
	Baud      int    `json:"baud"`
	DataBits  int    `json:"dataBits"`
	StopBits  int    `json:"stopBits"`
	Parity    string `json:"parity"`
	TimeoutMs int    `json:"timeoutMs"`
	Debug     bool   `json:"debug"`
}

type SensorConfig struct {
	UnitID       uint8  `json:"unitId"`
	RegisterBase uint16 `json:"registerBase"`
	Calibration  string `json:"calibration"` // "32V_2A" | "32V_1A" | "16V_400mA"
}

type RelayConfig struct {
	UnitID  uint8  `json:"unitId"`
	Ch1Coil uint16 `json:"ch1Coil"`
	Ch2Coil uint16 `json:"ch2Coil"`
}

type TimingConfig struct {
	SampleIntervalMs       int `json:"sampleIntervalMs"`
	PublishIntervalMs      int `json:"publishIntervalMs"`
	LinkCheckIntervalMs    int `json:"linkCheckIntervalMs"`
	SessionCheckIntervalMs int `json:"sessionCheckIntervalMs"`
	YieldMs                int `json:"yieldMs"`
}

/* =========================
   Duration helpers
   ========================= */

func (w WirelessConfig) AssocPoll() time.Duration {
	return time.Duration(w.AssocPollMs) * time.Millisecond
}
func (b BrokerConfig) ConnectPause() time.Duration {
	return time.Duration(b.ConnectPauseMs) * time.Millisecond
}
func (b BrokerConfig) PublishTimeout() time.Duration {
	return time.Duration(b.PublishTimeoutMs) * time.Millisecond
}
func (b BusConfig) Timeout() time.Duration { return time.Duration(b.TimeoutMs) * time.Millisecond }

func (t TimingConfig) SampleInterval() time.Duration {
	return time.Duration(t.SampleIntervalMs) * time.Millisecond
}
func (t TimingConfig) PublishInterval() time.Duration {
	return time.Duration(t.PublishIntervalMs) * time.Millisecond
}
func (t TimingConfig) LinkCheckInterval() time.Duration {
	return time.Duration(t.LinkCheckIntervalMs) * time.Millisecond
}
func (t TimingConfig) SessionCheckInterval() time.Duration {
	return time.Duration(t.SessionCheckIntervalMs) * time.Millisecond
}
func (t TimingConfig) Yield() time.Duration { return time.Duration(t.YieldMs) * time.Millisecond }

/* =========================
   Strict load + validate
   ========================= */

func LoadNodeConfig(path string) (*NodeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseNodeConfig(raw)
}

func LoadNodeConfigFromReader(r io.Reader) (*NodeConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseNodeConfig(raw)
}

func parseNodeConfig(raw []byte) (*NodeConfig, error) {
	clean := stripJSONComments(raw)

	dec := json.NewDecoder(strings.NewReader(string(clean)))
	dec.DisallowUnknownFields()

	var cfg NodeConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *NodeConfig) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.DeviceID) == "" {
		errs.add("deviceId is required")
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "nilm"
	}

	/* Wireless */
	if strings.TrimSpace(c.Wireless.Interface) == "" {
		errs.add("wireless.interface is required")
	}
	if strings.TrimSpace(c.Wireless.SSID) == "" {
		errs.add("wireless.ssid is required")
	}
	if c.Wireless.AssocPollCount <= 0 {
		c.Wireless.AssocPollCount = 30
	}
	if c.Wireless.AssocPollMs <= 0 {
		c.Wireless.AssocPollMs = 500
	}

	/* Broker */
	if strings.TrimSpace(c.Broker.URL) == "" {
		errs.add("broker.url is required (e.g., tcp://localhost:1883)")
	}
	if c.Broker.ClientIDPrefix == "" {
		c.Broker.ClientIDPrefix = c.DeviceID
	}
	if c.Broker.ConnectAttempts <= 0 {
		c.Broker.ConnectAttempts = 5
	}
	if c.Broker.ConnectPauseMs <= 0 {
		c.Broker.ConnectPauseMs = 2000
	}
	if c.Broker.PublishTimeoutMs <= 0 {
		c.Broker.PublishTimeoutMs = 5000
	}
	if c.Broker.InboundBuffer <= 0 {
		c.Broker.InboundBuffer = 16
	}

	/* Bus */
	switch strings.ToLower(c.Bus.Type) {
	case "tcp":
		if strings.TrimSpace(c.Bus.TCPAddr) == "" {
			errs.add("bus.tcpAddr is required for type=tcp")
		}
	case "rtu":
		if strings.TrimSpace(c.Bus.Port) == "" {
			errs.add("bus.port is required for type=rtu")
		}
		if c.Bus.Baud <= 0 {
			errs.add("bus.baud must be > 0 for type=rtu")
		}
		if c.Bus.DataBits == 0 {
			c.Bus.DataBits = 8
		}
		if c.Bus.StopBits == 0 {
			c.Bus.StopBits = 1
		}
		if c.Bus.Parity == "" {
			c.Bus.Parity = "N"
		}
		if !slices.Contains([]string{"N", "E", "O"}, strings.ToUpper(c.Bus.Parity)) {
			errs.add("bus.parity must be one of N,E,O")
		}
	default:
		errs.add("bus.type must be 'rtu' or 'tcp'")
	}
	if c.Bus.TimeoutMs <= 0 {
		c.Bus.TimeoutMs = 150
	}

	/* Sensor */
	if c.Sensor.UnitID == 0 || c.Sensor.UnitID > 247 {
		errs.add("sensor.unitId must be 1..247")
	}
	switch c.Sensor.Calibration {
	case "":
		c.Sensor.Calibration = "32V_2A"
	case "32V_2A", "32V_1A", "16V_400mA":
	default:
		errs.addf("sensor.calibration must be one of 32V_2A, 32V_1A, 16V_400mA (got %q)", c.Sensor.Calibration)
	}

	/* Relays */
	if c.Relays.UnitID == 0 || c.Relays.UnitID > 247 {
		errs.add("relays.unitId must be 1..247")
	}
	if c.Relays.Ch1Coil == c.Relays.Ch2Coil {
		errs.addf("relays.ch1Coil and relays.ch2Coil must differ (both %d)", c.Relays.Ch1Coil)
	}

	/* Timing */
	if c.Timing.SampleIntervalMs <= 0 {
		c.Timing.SampleIntervalMs = 100
	}
	if c.Timing.PublishIntervalMs <= 0 {
		c.Timing.PublishIntervalMs = 1000
	}
	if c.Timing.LinkCheckIntervalMs <= 0 {
		c.Timing.LinkCheckIntervalMs = 10000
	}
	if c.Timing.SessionCheckIntervalMs <= 0 {
		c.Timing.SessionCheckIntervalMs = 10000
	}
	if c.Timing.YieldMs <= 0 {
		c.Timing.YieldMs = 10
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

/* =========================
   Comment stripping + utils
   ========================= */

// stripJSONComments removes // and /* */ comments outside string literals.
// String content passes through untouched, so values like "tcp://host:1883"
// survive intact.
func stripJSONComments(in []byte) []byte {
	out := make([]byte, 0, len(in))
	inString := false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(in) {
				i++
				out = append(out, in[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(in) && in[i+1] == '/':
			for i < len(in) && in[i] != '\n' {
				i++
			}
			if i < len(in) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			i += 2
			for i+1 < len(in) && !(in[i] == '*' && in[i+1] == '/') {
				i++
			}
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
