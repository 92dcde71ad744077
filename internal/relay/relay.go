// Package relay holds the two switched output channels. Every mutation
// issues the physical coil write before the in-memory flag moves, so the
// tracked state never claims an actuation that was not put on the wire.
package relay

import (
	"fmt"

	"github.com/nilmgrid/powernode/internal/logging"
)

// CoilBank is the physical output surface (a subset of regbus.IOModule).
type CoilBank interface {
	WriteCoil(addr uint16, on bool) error
}

type Bank struct {
	coils    CoilBank
	ch1Coil  uint16
	ch2Coil  uint16
	ch1State bool
	ch2State bool
}

func NewBank(coils CoilBank, ch1Coil, ch2Coil uint16) *Bank {
	return &Bank{coils: coils, ch1Coil: ch1Coil, ch2Coil: ch2Coil}
}

// Init drives both channels off.
func (b *Bank) Init() error {
	if err := b.Set(1, false); err != nil {
		return err
	}
	return b.Set(2, false)
}

func (b *Bank) coilFor(channel int) (uint16, error) {
	switch channel {
	case 1:
		return b.ch1Coil, nil
	case 2:
		return b.ch2Coil, nil
	}
	return 0, fmt.Errorf("relay: no channel %d", channel)
}

func (b *Bank) Set(channel int, on bool) error {
	coil, err := b.coilFor(channel)
	if err != nil {
		return err
	}
	if err := b.coils.WriteCoil(coil, on); err != nil {
		return fmt.Errorf("relay: write channel %d: %w", channel, err)
	}
	if channel == 1 {
		b.ch1State = on
	} else {
		b.ch2State = on
	}
	logging.Debug("relay set", "channel", channel, "on", on)
	return nil
}

func (b *Bank) Toggle(channel int) error {
	return b.Set(channel, !b.Get(channel))
}

func (b *Bank) Get(channel int) bool {
	if channel == 1 {
		return b.ch1State
	}
	return b.ch2State
}

// AllOff forces both channels off. No write is skipped when a channel is
// already off; the coil is driven again.
func (b *Bank) AllOff() error {
	if err := b.Set(1, false); err != nil {
		return err
	}
	return b.Set(2, false)
}

func (b *Bank) AllOn() error {
	if err := b.Set(1, true); err != nil {
		return err
	}
	return b.Set(2, true)
}
