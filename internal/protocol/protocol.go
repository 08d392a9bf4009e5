// Package protocol defines the messages exchanged with the pen service and the binary
// frames pushed to local UDP subscribers.
package protocol

import "encoding/json"

// MessageType defines the type of a service channel message
type MessageType string

const (
	// TypeBind is sent by the shim right after the websocket opens
	TypeBind MessageType = "bind"

	// TypeBindAck is the service's answer to TypeBind
	TypeBindAck MessageType = "bind_ack"

	// TypeRegister asks the service to start streaming a unit type
	TypeRegister MessageType = "register"

	// TypeUnregister asks the service to stop streaming a unit type
	TypeUnregister MessageType = "unregister"

	// TypeRegisterResult reports the outcome of TypeRegister / TypeUnregister
	TypeRegisterResult MessageType = "register_result"

	// TypeEvent carries one raw event record
	TypeEvent MessageType = "event"

	// TypePenEvent carries a decoded EventNotice to stream clients
	TypePenEvent MessageType = "pen_event"

	// TypeState carries a StateNotice to stream clients
	TypeState MessageType = "state"
)

// ErrorPermissionDenied is the bind_ack error code for a caller the service refuses
const ErrorPermissionDenied = "permission_denied"

// Message is the generic container for all service channel messages
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BindPayload is the payload for TypeBind
type BindPayload struct {
	ProtocolVersion string `json:"protocol_version"`
	BinderType      int    `json:"binder_type"`
	PackageName     string `json:"package_name"`
	RequestID       string `json:"request_id"`
}

// BindAckPayload is the payload for TypeBindAck
type BindAckPayload struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// RegisterPayload is the payload for TypeRegister and TypeUnregister
type RegisterPayload struct {
	UnitType string `json:"unit_type"`
}

// RegisterResultPayload is the payload for TypeRegisterResult
type RegisterResultPayload struct {
	UnitType string `json:"unit_type"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// EventPayload is the payload for TypeEvent
type EventPayload struct {
	UnitType  string    `json:"unit_type"`
	Timestamp int64     `json:"timestamp"`
	Values    []float32 `json:"values"`
}

// NewMessage wraps payload into a Message of type t.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: raw}, nil
}

// Decode unmarshals the message payload into dest.
func (m Message) Decode(dest interface{}) error {
	return json.Unmarshal(m.Payload, dest)
}
