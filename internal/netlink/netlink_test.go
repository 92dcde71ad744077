package netlink

import (
	"strings"
	"testing"
)

const wirelessSample = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
 wlan1: 0000   70.  -40.  -256        0      0      0      0      0        0
`

func TestParseWirelessLevel(t *testing.T) {
	level, ok := parseWirelessLevel([]byte(wirelessSample), "wlan0")
	if !ok {
		t.Fatal("wlan0 not found")
	}
	if level != -56 {
		t.Errorf("level = %d, want -56", level)
	}

	level, ok = parseWirelessLevel([]byte(wirelessSample), "wlan1")
	if !ok || level != -40 {
		t.Errorf("wlan1 level = %d, %v, want -40, true", level, ok)
	}
}

func TestParseWirelessLevelMissingInterface(t *testing.T) {
	if _, ok := parseWirelessLevel([]byte(wirelessSample), "eth0"); ok {
		t.Error("found level for interface not in table")
	}
}

func TestLinkStatusString(t *testing.T) {
	tests := []struct {
		s    LinkStatus
		want string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestReassocCommandDefault(t *testing.T) {
	tests := []struct {
		name     string
		override string
		want     string
	}{
		{"empty", "", "wpa_cli -i wlan0 reassociate"},
		{"whitespace only", "   \t ", "wpa_cli -i wlan0 reassociate"},
		{"custom", "iw dev wlan0 connect lab-net", "iw dev wlan0 connect lab-net"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewWireless("wlan0", "lab-net", tt.override)
			if got := strings.Join(l.reassocCmd, " "); got != tt.want {
				t.Errorf("reassocCmd = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSSIDBlankWhenDown(t *testing.T) {
	// An interface name that cannot exist keeps the link disconnected.
	l := NewWireless("definitely-not-an-iface0", "lab-net", "")
	if got := l.SSID(); got != "" {
		t.Errorf("SSID() on down link = %q, want empty", got)
	}
	if got := l.Status(); got != Disconnected {
		t.Errorf("Status() = %v, want Disconnected", got)
	}
}
