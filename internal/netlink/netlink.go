// Package netlink watches the wireless association beneath the broker
// session. Status is polled, never pushed.
package netlink

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type LinkStatus int

const (
	Disconnected LinkStatus = iota
	Connecting
	Connected
)

func (s LinkStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Link is the wireless association surface the supervisor drives.
type Link interface {
	Status() LinkStatus
	BeginAssociation(ssid, password string) error
	LocalAddress() string
	SignalStrength() int
	SSID() string
}

// WirelessLink reads association state from the kernel: interface flags and
// the IPv4 address decide the status, /proc/net/wireless provides the signal
// level. Reassociation is delegated to the supplicant CLI.
type WirelessLink struct {
	iface        string
	ssid         string
	reassocCmd   []string
	wirelessPath string
}

func NewWireless(iface, ssid, reassocCommand string) *WirelessLink {
	// Fields also rejects whitespace-only overrides.
	cmd := strings.Fields(reassocCommand)
	if len(cmd) == 0 {
		cmd = []string{"wpa_cli", "-i", iface, "reassociate"}
	}
	return &WirelessLink{
		iface:        iface,
		ssid:         ssid,
		reassocCmd:   cmd,
		wirelessPath: "/proc/net/wireless",
	}
}

func (l *WirelessLink) Status() LinkStatus {
	ifi, err := net.InterfaceByName(l.iface)
	if err != nil || ifi.Flags&net.FlagUp == 0 {
		return Disconnected
	}
	if l.ipv4Of(ifi) == "" {
		return Connecting
	}
	return Connected
}

// BeginAssociation kicks the supplicant. Association progress is observed
// afterwards by polling Status; credentials live in the supplicant config,
// the arguments are kept for reporting only.
func (l *WirelessLink) BeginAssociation(ssid, password string) error {
	_ = password
	l.ssid = ssid
	cmd := exec.Command(l.reassocCmd[0], l.reassocCmd[1:]...)
	return cmd.Run()
}

func (l *WirelessLink) LocalAddress() string {
	ifi, err := net.InterfaceByName(l.iface)
	if err != nil {
		return ""
	}
	return l.ipv4Of(ifi)
}

func (l *WirelessLink) ipv4Of(ifi *net.Interface) string {
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			if v4 := ipn.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

// SignalStrength returns the link level in dBm, or 0 when unavailable.
func (l *WirelessLink) SignalStrength() int {
	data, err := os.ReadFile(l.wirelessPath)
	if err != nil {
		return 0
	}
	level, ok := parseWirelessLevel(data, l.iface)
	if !ok {
		return 0
	}
	return level
}

func (l *WirelessLink) SSID() string {
	if l.Status() != Connected {
		return ""
	}
	return l.ssid
}

// parseWirelessLevel extracts the signal level column of /proc/net/wireless
// for the named interface.
//
//	Inter-| sta-|   Quality        |   Discarded packets
//	 face | tus | link level noise |  nwid  crypt   frag
//	wlan0: 0000   54.  -56.  -256
func parseWirelessLevel(data []byte, iface string) (int, bool) {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasPrefix(fields[0], iface+":") {
			continue
		}
		level := strings.TrimSuffix(fields[3], ".")
		v, err := strconv.ParseFloat(level, 64)
		if err != nil {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
