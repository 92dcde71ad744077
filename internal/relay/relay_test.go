package relay

import (
	"errors"
	"testing"
)

type coilWrite struct {
	addr uint16
	on   bool
}

type fakeCoils struct {
	writes []coilWrite
	fail   bool
}

func (f *fakeCoils) WriteCoil(addr uint16, on bool) error {
	if f.fail {
		return errors.New("bus down")
	}
	f.writes = append(f.writes, coilWrite{addr, on})
	return nil
}

func TestSetWritesCoilThenState(t *testing.T) {
	coils := &fakeCoils{}
	b := NewBank(coils, 0, 1)

	if err := b.Set(1, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !b.Get(1) {
		t.Error("channel 1 state not updated")
	}
	if len(coils.writes) != 1 || coils.writes[0] != (coilWrite{0, true}) {
		t.Errorf("writes = %v, want [{0 true}]", coils.writes)
	}
}

func TestFailedWriteLeavesStateUntouched(t *testing.T) {
	coils := &fakeCoils{fail: true}
	b := NewBank(coils, 0, 1)

	if err := b.Set(2, true); err == nil {
		t.Fatal("Set on failing bus returned nil error")
	}
	if b.Get(2) {
		t.Error("state claims ON after failed physical write")
	}
}

func TestToggle(t *testing.T) {
	coils := &fakeCoils{}
	b := NewBank(coils, 4, 5)

	if err := b.Toggle(1); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !b.Get(1) {
		t.Error("toggle from off should land on")
	}
	if err := b.Toggle(1); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if b.Get(1) {
		t.Error("toggle from on should land off")
	}
}

func TestAllOffIsIdempotentButAlwaysWrites(t *testing.T) {
	coils := &fakeCoils{}
	b := NewBank(coils, 0, 1)

	if err := b.AllOff(); err != nil {
		t.Fatalf("AllOff: %v", err)
	}
	if err := b.AllOff(); err != nil {
		t.Fatalf("AllOff: %v", err)
	}
	if b.Get(1) || b.Get(2) {
		t.Error("channels not both off")
	}
	// Two calls, two channels each: four writes, no dedup.
	if len(coils.writes) != 4 {
		t.Errorf("%d coil writes, want 4", len(coils.writes))
	}
}

func TestAllOn(t *testing.T) {
	coils := &fakeCoils{}
	b := NewBank(coils, 0, 1)

	if err := b.AllOn(); err != nil {
		t.Fatalf("AllOn: %v", err)
	}
	if !b.Get(1) || !b.Get(2) {
		t.Error("channels not both on")
	}
}

func TestUnknownChannel(t *testing.T) {
	b := NewBank(&fakeCoils{}, 0, 1)
	if err := b.Set(3, true); err == nil {
		t.Error("Set(3) accepted an unknown channel")
	}
}
