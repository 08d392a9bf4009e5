package publish

import (
	"encoding/json"
	"log/slog"
	"strings"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

// Publisher maps pen events and state changes onto MQTT topics under a prefix:
//
//	<prefix>/event/button
//	<prefix>/event/air_motion
//	<prefix>/state            (retained)
type Publisher struct {
	client ClientAPI
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing through client.
func NewPublisher(client ClientAPI, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
		logger: logger.With("component", "mqtt_publisher"),
	}
}

// Name identifies the publisher in metrics and logs.
func (p *Publisher) Name() string { return "mqtt" }

// EventTopic returns the topic events of unit type t are published on.
func (p *Publisher) EventTopic(t spen.UnitType) string {
	return p.prefix + "/event/" + t.String()
}

// StateTopic returns the retained state topic.
func (p *Publisher) StateTopic() string {
	return p.prefix + "/state"
}

// PublishEvent publishes one decoded event.
func (p *Publisher) PublishEvent(ev spen.Event) error {
	data, err := json.Marshal(protocol.NoticeFor(ev))
	if err != nil {
		return err
	}
	return p.client.PublishWith(p.EventTopic(ev.Type()), data, false)
}

// PublishState publishes state as the retained session state.
func (p *Publisher) PublishState(state spen.ConnectionState) error {
	data, err := StatePayload(state)
	if err != nil {
		return err
	}
	if err := p.client.PublishWith(p.StateTopic(), data, true); err != nil {
		p.logger.Warn("state publish failed", "state", state.String(), "error", err)
		return err
	}
	return nil
}

// StatePayload encodes state as published on the state topic.
func StatePayload(state spen.ConnectionState) ([]byte, error) {
	return json.Marshal(protocol.NewStateNotice(state))
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}
