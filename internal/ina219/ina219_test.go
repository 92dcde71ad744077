package ina219

import (
	"errors"
	"math"
	"testing"
)

// fakeBus is an in-memory register window. Writing the reset bit loads the
// post-reset config value so the presence probe behaves like real silicon.
type fakeBus struct {
	regs       map[uint8]uint16
	resetValue uint16
	writes     []struct {
		addr  uint8
		value uint16
	}
	failReads bool
}

func newFakeBus(resetValue uint16) *fakeBus {
	return &fakeBus{regs: map[uint8]uint16{}, resetValue: resetValue}
}

func (f *fakeBus) ReadRegister(addr uint8) (uint16, error) {
	if f.failReads {
		return 0, errors.New("bus read failed")
	}
	return f.regs[addr], nil
}

func (f *fakeBus) WriteRegister(addr uint8, value uint16) error {
	f.writes = append(f.writes, struct {
		addr  uint8
		value uint16
	}{addr, value})
	if addr == regConfig && value == configReset {
		f.regs[regConfig] = f.resetValue
		return nil
	}
	f.regs[addr] = value
	return nil
}

func TestInitAppliesProfile(t *testing.T) {
	tests := []struct {
		name       string
		profile    Profile
		wantConfig uint16
		wantCal    uint16
	}{
		{"32V_2A", Profile32V2A, 0x399F, 4096},
		{"32V_1A", Profile32V1A, 0x399F, 10240},
		{"16V_400mA", Profile16V400mA, 0x019F, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus(0x399F)
			d := New(bus, tt.profile)
			if err := d.Init(); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if got := bus.regs[regConfig]; got != tt.wantConfig {
				t.Errorf("config register = %#04x, want %#04x", got, tt.wantConfig)
			}
			if got := bus.regs[regCalibration]; got != tt.wantCal {
				t.Errorf("calibration register = %d, want %d", got, tt.wantCal)
			}
		})
	}
}

func TestInitDetectsAbsentDevice(t *testing.T) {
	for _, readback := range []uint16{0xFFFF, 0x0000} {
		bus := newFakeBus(readback)
		d := New(bus, Profile32V2A)
		if err := d.Init(); !errors.Is(err, ErrNotPresent) {
			t.Errorf("readback %#04x: Init err = %v, want ErrNotPresent", readback, err)
		}
	}
}

func TestReadVoltage(t *testing.T) {
	bus := newFakeBus(0x399F)
	d := New(bus, Profile32V2A)
	// 3000 counts of 4mV, shifted past the 3 flag bits = 12.000 V.
	bus.regs[regBusVoltage] = 3000 << 3

	v, err := d.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if math.Abs(v-12.0) > 1e-9 {
		t.Errorf("voltage = %v, want 12.0", v)
	}
}

func TestReadCurrentSigned(t *testing.T) {
	bus := newFakeBus(0x399F)
	d := New(bus, Profile32V2A)

	bus.regs[regCurrent] = 12500 // 1250 mA at 0.1 mA/bit
	i, err := d.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if math.Abs(i-1.25) > 1e-9 {
		t.Errorf("current = %v, want 1.25", i)
	}

	// Negative current (charge direction) comes back two's complement.
	bus.regs[regCurrent] = uint16(0x10000 - 500)
	i, err = d.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if math.Abs(i-(-0.05)) > 1e-9 {
		t.Errorf("current = %v, want -0.05", i)
	}
}

func TestReadPowerPerProfile(t *testing.T) {
	tests := []struct {
		profile Profile
		raw     uint16
		want    float64
	}{
		{Profile32V2A, 7500, 1.5},     // 0.2 mW/bit
		{Profile32V1A, 7500, 0.75},    // 0.1 mW/bit
		{Profile16V400mA, 7500, 0.15}, // 0.02 mW/bit
	}
	for _, tt := range tests {
		bus := newFakeBus(0x399F)
		d := New(bus, tt.profile)
		bus.regs[regPower] = tt.raw
		p, err := d.ReadPower()
		if err != nil {
			t.Fatalf("ReadPower: %v", err)
		}
		if math.Abs(p-tt.want) > 1e-9 {
			t.Errorf("profile %v: power = %v, want %v", tt.profile, p, tt.want)
		}
	}
}

func TestProfileFromString(t *testing.T) {
	if _, err := ProfileFromString("48V_10A"); err == nil {
		t.Error("unknown profile accepted")
	}
	p, err := ProfileFromString("16V_400mA")
	if err != nil || p != Profile16V400mA {
		t.Errorf("ProfileFromString(16V_400mA) = %v, %v", p, err)
	}
}
