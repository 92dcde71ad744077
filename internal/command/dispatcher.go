// Package command turns inbound relay command payloads into actuator
// directives.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/nilmgrid/powernode/internal/logging"
)

// MaxPayloadSize bounds accepted command payloads.
const MaxPayloadSize = 512

// Actuators is the mutable output surface a command drives.
type Actuators interface {
	Set(channel int, on bool) error
	Toggle(channel int) error
	Get(channel int) bool
	AllOff() error
	AllOn() error
}

// incoming is the loose JSON shape of a relay command. Explicit sets carry a
// boolean; toggle and all-off/all-on act on key presence alone, whatever the
// value. Unknown keys are ignored.
type incoming struct {
	SetCh1    *bool           `json:"relay_ch1"`
	SetCh2    *bool           `json:"relay_ch2"`
	ToggleCh1 json.RawMessage `json:"toggle_ch1"`
	ToggleCh2 json.RawMessage `json:"toggle_ch2"`
	AllOff    json.RawMessage `json:"all_off"`
	AllOn     json.RawMessage `json:"all_on"`
}

type Dispatcher struct {
	relays Actuators
}

func NewDispatcher(relays Actuators) *Dispatcher {
	return &Dispatcher{relays: relays}
}

// Dispatch parses one command payload and applies every recognized directive
// in fixed order: set ch1, set ch2, toggle ch1, toggle ch2, all off, all on.
// Later steps win when one message carries contradictory instructions; the
// order is part of the observable contract with existing senders. The
// resulting channel states are returned for the acknowledgment. A malformed
// payload returns an error with no actuator touched.
func (d *Dispatcher) Dispatch(payload []byte) (ch1, ch2 bool, err error) {
	if len(payload) > MaxPayloadSize {
		return false, false, fmt.Errorf("payload too large (%d bytes)", len(payload))
	}
	var cmd incoming
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return false, false, fmt.Errorf("parse command: %w", err)
	}

	if cmd.SetCh1 != nil {
		d.apply(d.relays.Set(1, *cmd.SetCh1))
	}
	if cmd.SetCh2 != nil {
		d.apply(d.relays.Set(2, *cmd.SetCh2))
	}
	if cmd.ToggleCh1 != nil {
		d.apply(d.relays.Toggle(1))
	}
	if cmd.ToggleCh2 != nil {
		d.apply(d.relays.Toggle(2))
	}
	if cmd.AllOff != nil {
		d.apply(d.relays.AllOff())
	}
	if cmd.AllOn != nil {
		d.apply(d.relays.AllOn())
	}

	return d.relays.Get(1), d.relays.Get(2), nil
}

// apply logs actuation failures without aborting the remaining directives;
// the bank's state already reflects only the writes that reached the wire.
func (d *Dispatcher) apply(err error) {
	if err != nil {
		logging.Warn("directive failed", "error", err)
	}
}
