package spen

import (
	"errors"
	"testing"
)

func TestDecodeButtonEvent(t *testing.T) {
	cases := []struct {
		name   string
		values []float32
		want   ButtonAction
	}{
		{"zero is down", []float32{7, 0}, ButtonDown},
		{"one is up", []float32{7, 1}, ButtonUp},
		{"negative is up", []float32{0, -3}, ButtonUp},
		{"index zero ignored", []float32{0, 0}, ButtonDown},
	}
	for _, tc := range cases {
		ev, err := DecodeButtonEvent(NewEventRecord(42, tc.values...))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if ev.Action != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, ev.Action)
		}
		if ev.Timestamp != 42 {
			t.Fatalf("%s: expected timestamp 42, got %d", tc.name, ev.Timestamp)
		}
	}
}

func TestDecodeAirMotionEvent(t *testing.T) {
	ev, err := DecodeAirMotionEvent(NewEventRecord(1000, 1.5, -2.0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DeltaX != 1.5 || ev.DeltaY != -2.0 || ev.Timestamp != 1000 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDecodeShortRecord(t *testing.T) {
	for _, values := range [][]float32{nil, {1}} {
		rec := NewEventRecord(1, values...)
		if _, err := DecodeButtonEvent(rec); !errors.Is(err, ErrDecode) {
			t.Fatalf("button with %d values: expected ErrDecode, got %v", len(values), err)
		}
		if _, err := DecodeAirMotionEvent(rec); !errors.Is(err, ErrDecode) {
			t.Fatalf("air motion with %d values: expected ErrDecode, got %v", len(values), err)
		}
	}
}

func TestDecodeDispatchesOnType(t *testing.T) {
	rec := NewEventRecord(5, 3, 4)

	ev, err := Decode(UnitTypeAirMotion, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ev.(AirMotionEvent); !ok {
		t.Fatalf("expected AirMotionEvent, got %T", ev)
	}

	ev, err = Decode(UnitTypeButton, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, ok := ev.(ButtonEvent); !ok || b.Action != ButtonUp {
		t.Fatalf("expected ButtonEvent up, got %#v", ev)
	}

	if _, err := Decode(UnitType(9), rec); !errors.Is(err, ErrUnknownUnitType) {
		t.Fatalf("expected ErrUnknownUnitType, got %v", err)
	}
}

func TestEventRecordIsImmutable(t *testing.T) {
	values := []float32{1, 2}
	rec := NewEventRecord(1, values...)
	values[0] = 99

	got := rec.Values()
	if got[0] != 1 {
		t.Fatalf("record changed through constructor slice: %v", got)
	}
	got[1] = 99
	if rec.Values()[1] != 2 {
		t.Fatalf("record changed through accessor slice")
	}
}

func TestParseUnitType(t *testing.T) {
	for _, ut := range UnitTypes {
		got, err := ParseUnitType(ut.String())
		if err != nil || got != ut {
			t.Fatalf("round trip of %s failed: %v %v", ut, got, err)
		}
	}
	if _, err := ParseUnitType("eraser"); !errors.Is(err, ErrUnknownUnitType) {
		t.Fatalf("expected ErrUnknownUnitType, got %v", err)
	}
}
