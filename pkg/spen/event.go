package spen

import (
	"fmt"
	"strings"
)

// UnitType identifies the physical input stream a Unit represents.
type UnitType uint8

const (
	UnitTypeButton UnitType = iota
	UnitTypeAirMotion

	unitTypeCount
)

// UnitTypes lists every known unit type in ordinal order.
var UnitTypes = []UnitType{UnitTypeButton, UnitTypeAirMotion}

// String returns the wire identifier of the unit type.
func (t UnitType) String() string {
	switch t {
	case UnitTypeButton:
		return "button"
	case UnitTypeAirMotion:
		return "air_motion"
	default:
		return fmt.Sprintf("unit(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known unit types.
func (t UnitType) Valid() bool {
	return t < unitTypeCount
}

// ParseUnitType maps a wire identifier back to a UnitType.
func ParseUnitType(s string) (UnitType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "button":
		return UnitTypeButton, nil
	case "air_motion", "airmotion":
		return UnitTypeAirMotion, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnitType, s)
	}
}

// minValues is the record length every unit type currently requires.
const minValues = 2

// EventRecord is the raw record delivered by the service: a capture timestamp and a
// type-dependent list of values.
type EventRecord struct {
	timestamp int64
	values    []float32
}

// NewEventRecord builds a record, copying values so the record stays immutable.
func NewEventRecord(timestamp int64, values ...float32) EventRecord {
	v := make([]float32, len(values))
	copy(v, values)
	return EventRecord{timestamp: timestamp, values: v}
}

// Timestamp returns the monotonic capture time.
func (r EventRecord) Timestamp() int64 { return r.timestamp }

// Values returns a copy of the record values.
func (r EventRecord) Values() []float32 {
	v := make([]float32, len(r.values))
	copy(v, r.values)
	return v
}

// Len returns the number of values carried by the record.
func (r EventRecord) Len() int { return len(r.values) }

// Event is a decoded record, either a ButtonEvent or an AirMotionEvent.
type Event interface {
	Type() UnitType
	Time() int64
}

// ButtonAction is the state transition reported by a button event.
type ButtonAction uint8

const (
	ButtonDown ButtonAction = iota
	ButtonUp
)

func (a ButtonAction) String() string {
	if a == ButtonDown {
		return "down"
	}
	return "up"
}

// ButtonEvent reports a press or release of the pen button.
type ButtonEvent struct {
	Timestamp int64
	Action    ButtonAction
}

func (e ButtonEvent) Type() UnitType { return UnitTypeButton }
func (e ButtonEvent) Time() int64    { return e.Timestamp }

// AirMotionEvent reports a pen movement delta while hovering.
type AirMotionEvent struct {
	Timestamp int64
	DeltaX    float32
	DeltaY    float32
}

func (e AirMotionEvent) Type() UnitType { return UnitTypeAirMotion }
func (e AirMotionEvent) Time() int64    { return e.Timestamp }

func checkLen(t UnitType, rec EventRecord) error {
	if len(rec.values) < minValues {
		return fmt.Errorf("%w: %s needs %d values, got %d", ErrDecode, t, minValues, len(rec.values))
	}
	return nil
}

// DecodeButtonEvent decodes a button record. values[0] is reserved; the action is taken
// from values[1], DOWN when it is zero and UP otherwise.
func DecodeButtonEvent(rec EventRecord) (ButtonEvent, error) {
	if err := checkLen(UnitTypeButton, rec); err != nil {
		return ButtonEvent{}, err
	}
	action := ButtonUp
	if rec.values[1] == 0 {
		action = ButtonDown
	}
	return ButtonEvent{Timestamp: rec.timestamp, Action: action}, nil
}

// DecodeAirMotionEvent decodes an air-motion record into its x and y deltas.
func DecodeAirMotionEvent(rec EventRecord) (AirMotionEvent, error) {
	if err := checkLen(UnitTypeAirMotion, rec); err != nil {
		return AirMotionEvent{}, err
	}
	return AirMotionEvent{
		Timestamp: rec.timestamp,
		DeltaX:    rec.values[0],
		DeltaY:    rec.values[1],
	}, nil
}

// Decode applies the decoding that belongs to unit type t.
func Decode(t UnitType, rec EventRecord) (Event, error) {
	switch t {
	case UnitTypeButton:
		ev, err := DecodeButtonEvent(rec)
		if err != nil {
			return nil, err
		}
		return ev, nil
	case UnitTypeAirMotion:
		ev, err := DecodeAirMotionEvent(rec)
		if err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnitType, uint8(t))
	}
}
