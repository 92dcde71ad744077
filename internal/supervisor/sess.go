package supervisor

import (
	"fmt"
	"math/rand"

	"github.com/nilmgrid/powernode/internal/logging"
	"github.com/nilmgrid/powernode/internal/retry"
)

// sessionRepair owns the broker connect loop. Like the link machine, its
// attempt budget resets on every scheduled invocation. A fresh random client
// id suffix per attempt avoids takeover fights with a half-dead predecessor
// session on the broker.
type sessionRepair struct {
	session        Session
	clientIDPrefix string
	username       string
	password       string
	budget         retry.Budget
	randHex        func() string
}

// Tick attempts to connect within the budget and reports success.
func (r *sessionRepair) Tick() bool {
	suffix := r.randHex
	if suffix == nil {
		suffix = func() string { return fmt.Sprintf("%04x", rand.Intn(0x10000)) }
	}
	return r.budget.Do(func(attempt int) bool {
		clientID := r.clientIDPrefix + "-" + suffix()
		err := r.session.Connect(clientID, r.username, r.password)
		if err != nil {
			logging.Warn("session connect failed",
				"attempt", attempt+1,
				"of", r.budget.Attempts,
				"clientId", clientID,
				"error", err,
			)
			return false
		}
		logging.Info("session connected", "clientId", clientID)
		return true
	})
}
