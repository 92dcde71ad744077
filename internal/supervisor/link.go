package supervisor

import (
	"github.com/nilmgrid/powernode/internal/logging"
	"github.com/nilmgrid/powernode/internal/netlink"
	"github.com/nilmgrid/powernode/internal/retry"
)

// linkRepair is the wireless association state machine. One Tick per
// scheduled health check; the attempt budget is reset on every invocation,
// so the node keeps retrying forever at the health-check cadence while each
// individual repair stays bounded.
type linkRepair struct {
	link     netlink.Link
	ssid     string
	password string
	budget   retry.Budget
	state    netlink.LinkStatus
}

// Tick observes the link and, when it is down, requests reassociation and
// polls for the result within the budget. It returns the state transition
// for the caller to log; logging is an observer here, never control flow.
func (r *linkRepair) Tick() (from, to netlink.LinkStatus) {
	from = r.state
	if r.link.Status() == netlink.Connected {
		r.state = netlink.Connected
		return from, r.state
	}

	r.state = netlink.Connecting
	logging.Info("link down, reassociating", "ssid", r.ssid)
	if err := r.link.BeginAssociation(r.ssid, r.password); err != nil {
		logging.Warn("association request failed", "ssid", r.ssid, "error", err)
		r.state = netlink.Disconnected
		return from, r.state
	}

	associated := r.budget.Do(func(int) bool {
		return r.link.Status() == netlink.Connected
	})
	r.state = nextLinkState(associated)
	if !associated {
		logging.Warn("association polls exhausted, giving up for now",
			"ssid", r.ssid, "polls", r.budget.Attempts)
	}
	return from, r.state
}

// nextLinkState is the pure transition out of Connecting.
func nextLinkState(associated bool) netlink.LinkStatus {
	if associated {
		return netlink.Connected
	}
	return netlink.Disconnected
}
