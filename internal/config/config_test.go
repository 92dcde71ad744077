package config

import (
	"strings"
	"testing"
)

const validConfig = `{
	// node identity
	"deviceId": "nilm-node-1",
	"wireless": {"interface": "wlan0", "ssid": "lab-net", "password": "secret"},
	"broker": {"url": "tcp://broker.local:1883"},
	"bus": {"type": "tcp", "tcpAddr": "io-module:1502"},
	"sensor": {"unitId": 10, "registerBase": 0, "calibration": "32V_2A"},
	"relays": {"unitId": 11, "ch1Coil": 0, "ch2Coil": 1},
	"timing": {}
}`

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadNodeConfigFromReader(strings.NewReader(validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TopicPrefix != "nilm" {
		t.Errorf("topicPrefix = %q, want nilm", cfg.TopicPrefix)
	}
	if cfg.Timing.SampleIntervalMs != 100 || cfg.Timing.PublishIntervalMs != 1000 {
		t.Errorf("timing defaults = %+v", cfg.Timing)
	}
	if cfg.Timing.LinkCheckIntervalMs != 10000 || cfg.Timing.SessionCheckIntervalMs != 10000 {
		t.Errorf("check interval defaults = %+v", cfg.Timing)
	}
	if cfg.Broker.ConnectAttempts != 5 || cfg.Broker.ConnectPauseMs != 2000 {
		t.Errorf("broker retry defaults = %+v", cfg.Broker)
	}
	if cfg.Wireless.AssocPollCount != 30 || cfg.Wireless.AssocPollMs != 500 {
		t.Errorf("assoc poll defaults = %+v", cfg.Wireless)
	}
	if cfg.Broker.ClientIDPrefix != "nilm-node-1" {
		t.Errorf("clientIdPrefix default = %q", cfg.Broker.ClientIDPrefix)
	}
	if cfg.Bus.TimeoutMs != 150 {
		t.Errorf("bus timeout default = %d", cfg.Bus.TimeoutMs)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *NodeConfig)
		wantErr string
	}{
		{"missing device id", func(c *NodeConfig) { c.DeviceID = " " }, "deviceId"},
		{"missing ssid", func(c *NodeConfig) { c.Wireless.SSID = "" }, "wireless.ssid"},
		{"missing broker url", func(c *NodeConfig) { c.Broker.URL = "" }, "broker.url"},
		{"bad bus type", func(c *NodeConfig) { c.Bus.Type = "canbus" }, "bus.type"},
		{"rtu without port", func(c *NodeConfig) { c.Bus.Type = "rtu"; c.Bus.Baud = 9600 }, "bus.port"},
		{"bad calibration", func(c *NodeConfig) { c.Sensor.Calibration = "64V_8A" }, "sensor.calibration"},
		{"sensor unit out of range", func(c *NodeConfig) { c.Sensor.UnitID = 0 }, "sensor.unitId"},
		{"clashing relay coils", func(c *NodeConfig) { c.Relays.Ch2Coil = c.Relays.Ch1Coil }, "ch1Coil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadNodeConfigFromReader(strings.NewReader(validConfig))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	bad := strings.Replace(validConfig, `"timing": {}`, `"timing": {}, "extra": 1`, 1)
	if _, err := LoadNodeConfigFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("config with unknown field accepted")
	}
}

func TestCommentStripping(t *testing.T) {
	withComments := "/* leading block */\n" + validConfig
	if _, err := LoadNodeConfigFromReader(strings.NewReader(withComments)); err != nil {
		t.Fatalf("commented config rejected: %v", err)
	}
}

func TestCommentStrippingLeavesStringsAlone(t *testing.T) {
	// The broker URL carries "//"; the password carries comment markers and
	// an escaped quote. None of it is a comment.
	raw := strings.Replace(validConfig,
		`"broker": {"url": "tcp://broker.local:1883"},`,
		`"broker": {"url": "tcp://broker.local:1883", "password": "p//a/*b*/\"c"}, // trailing`, 1)
	cfg, err := LoadNodeConfigFromReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker.URL != "tcp://broker.local:1883" {
		t.Errorf("url = %q", cfg.Broker.URL)
	}
	if cfg.Broker.Password != `p//a/*b*/"c` {
		t.Errorf("password = %q", cfg.Broker.Password)
	}
}

func TestStripJSONComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "{ // note\n\"a\": 1 }", "{ \n\"a\": 1 }"},
		{"block comment", `{ /* note */ "a": 1 }`, `{  "a": 1 }`},
		{"slashes in string", `{"a": "tcp://x"}`, `{"a": "tcp://x"}`},
		{"markers in string", `{"a": "//x /*y*/"}`, `{"a": "//x /*y*/"}`},
		{"unterminated block", `{"a": 1} /* trailing`, `{"a": 1} `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(stripJSONComments([]byte(tt.in))); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRTUDefaults(t *testing.T) {
	rtu := strings.Replace(validConfig,
		`"bus": {"type": "tcp", "tcpAddr": "io-module:1502"}`,
		`"bus": {"type": "rtu", "port": "/dev/ttyUSB0", "baud": 9600}`, 1)
	cfg, err := LoadNodeConfigFromReader(strings.NewReader(rtu))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.DataBits != 8 || cfg.Bus.StopBits != 1 || cfg.Bus.Parity != "N" {
		t.Errorf("rtu serial defaults = %+v", cfg.Bus)
	}
}
