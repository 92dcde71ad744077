// Package ina219 drives a TI INA219 current/power monitor through a 16-bit
// register bus.
package ina219

import (
	"errors"
	"fmt"

	"github.com/nilmgrid/powernode/internal/regbus"
)

// Register addresses.
const (
	regConfig       = 0x00
	regShuntVoltage = 0x01
	regBusVoltage   = 0x02
	regPower        = 0x03
	regCurrent      = 0x04
	regCalibration  = 0x05
)

// Configuration register bits.
const (
	configReset uint16 = 0x8000

	configBusRange16V uint16 = 0x0000
	configBusRange32V uint16 = 0x2000

	configGain1_40mV  uint16 = 0x0000
	configGain8_320mV uint16 = 0x1800

	configBusADC12Bit   uint16 = 0x0180
	configShuntADC12Bit uint16 = 0x0018

	configModeShuntBusContinuous uint16 = 0x0007
)

// ErrNotPresent means the device did not respond plausibly to the reset
// probe (config register read back as all ones or all zeros).
var ErrNotPresent = errors.New("ina219: device not present")

// Profile selects the calibration of the current and power registers.
type Profile int

const (
	Profile32V2A Profile = iota
	Profile32V1A
	Profile16V400mA
)

func ProfileFromString(s string) (Profile, error) {
	switch s {
	case "32V_2A":
		return Profile32V2A, nil
	case "32V_1A":
		return Profile32V1A, nil
	case "16V_400mA":
		return Profile16V400mA, nil
	}
	return 0, fmt.Errorf("ina219: unknown calibration profile %q", s)
}

type calibration struct {
	calValue   uint16
	currentLSB float64 // mA per bit
	powerLSB   float64 // mW per bit
	configWord uint16
}

var profiles = map[Profile]calibration{
	Profile32V2A: {
		calValue:   4096,
		currentLSB: 0.1,
		powerLSB:   0.2,
		configWord: configBusRange32V | configGain8_320mV | configBusADC12Bit |
			configShuntADC12Bit | configModeShuntBusContinuous,
	},
	Profile32V1A: {
		calValue:   10240,
		currentLSB: 0.05,
		powerLSB:   0.1,
		configWord: configBusRange32V | configGain8_320mV | configBusADC12Bit |
			configShuntADC12Bit | configModeShuntBusContinuous,
	},
	Profile16V400mA: {
		calValue:   8192,
		currentLSB: 0.01,
		powerLSB:   0.02,
		configWord: configBusRange16V | configGain1_40mV | configBusADC12Bit |
			configShuntADC12Bit | configModeShuntBusContinuous,
	},
}

// Device is a stateless register-fetch driver; every read goes to the bus.
type Device struct {
	bus regbus.RegisterBus
	cal calibration
}

func New(bus regbus.RegisterBus, p Profile) *Device {
	return &Device{bus: bus, cal: profiles[p]}
}

// Init resets the device, probes for its presence, and applies the selected
// calibration profile. ErrNotPresent is returned when the config register
// reads back implausibly after reset.
func (d *Device) Init() error {
	if err := d.bus.WriteRegister(regConfig, configReset); err != nil {
		return fmt.Errorf("ina219: reset: %w", err)
	}
	cfg, err := d.bus.ReadRegister(regConfig)
	if err != nil {
		return fmt.Errorf("ina219: probe: %w", err)
	}
	if cfg == 0xFFFF || cfg == 0x0000 {
		return ErrNotPresent
	}
	if err := d.bus.WriteRegister(regConfig, d.cal.configWord); err != nil {
		return fmt.Errorf("ina219: write config: %w", err)
	}
	if err := d.bus.WriteRegister(regCalibration, d.cal.calValue); err != nil {
		return fmt.Errorf("ina219: write calibration: %w", err)
	}
	return nil
}

// ReadCurrent returns the load current in amperes.
func (d *Device) ReadCurrent() (float64, error) {
	raw, err := d.bus.ReadRegister(regCurrent)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * d.cal.currentLSB / 1000.0, nil
}

// ReadVoltage returns the bus voltage in volts.
func (d *Device) ReadVoltage() (float64, error) {
	raw, err := d.bus.ReadRegister(regBusVoltage)
	if err != nil {
		return 0, err
	}
	// Bottom 3 bits are flags; each count is 4mV.
	return float64((raw>>3)*4) / 1000.0, nil
}

// ReadPower returns the load power in watts.
func (d *Device) ReadPower() (float64, error) {
	raw, err := d.bus.ReadRegister(regPower)
	if err != nil {
		return 0, err
	}
	return float64(raw) * d.cal.powerLSB / 1000.0, nil
}

// ReadShuntVoltage returns the shunt drop in millivolts.
func (d *Device) ReadShuntVoltage() (float64, error) {
	raw, err := d.bus.ReadRegister(regShuntVoltage)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * 0.01, nil
}
