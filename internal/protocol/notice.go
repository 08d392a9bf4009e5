package protocol

import (
	"time"

	"spenremote/pkg/spen"
)

// EventNotice is the JSON form of a decoded pen event handed to downstream consumers
// (websocket stream, MQTT, state cache).
type EventNotice struct {
	Unit      string   `json:"unit"`
	Timestamp int64    `json:"timestamp"`
	Action    string   `json:"action,omitempty"`
	DeltaX    *float32 `json:"delta_x,omitempty"`
	DeltaY    *float32 `json:"delta_y,omitempty"`
}

// NoticeFor converts a decoded event into its JSON form.
func NoticeFor(ev spen.Event) EventNotice {
	n := EventNotice{Unit: ev.Type().String(), Timestamp: ev.Time()}
	switch e := ev.(type) {
	case spen.ButtonEvent:
		n.Action = e.Action.String()
	case spen.AirMotionEvent:
		dx, dy := e.DeltaX, e.DeltaY
		n.DeltaX, n.DeltaY = &dx, &dy
	}
	return n
}

// StateNotice reports a session state transition.
type StateNotice struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// NewStateNotice stamps state with the current time.
func NewStateNotice(state spen.ConnectionState) StateNotice {
	return StateNotice{State: state.String(), At: time.Now().UTC()}
}

// RecordFor rebuilds the canonical record of a decoded event, the form carried by UDP
// frames. Button records use 0 in the reserved slot.
func RecordFor(ev spen.Event) (spen.UnitType, spen.EventRecord) {
	switch e := ev.(type) {
	case spen.ButtonEvent:
		var state float32
		if e.Action == spen.ButtonUp {
			state = 1
		}
		return spen.UnitTypeButton, spen.NewEventRecord(e.Timestamp, 0, state)
	case spen.AirMotionEvent:
		return spen.UnitTypeAirMotion, spen.NewEventRecord(e.Timestamp, e.DeltaX, e.DeltaY)
	}
	return ev.Type(), spen.NewEventRecord(ev.Time())
}
