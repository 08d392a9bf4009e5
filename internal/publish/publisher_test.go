package publish

import (
	"encoding/json"
	"errors"
	"testing"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeClient struct {
	msgs   []published
	err    error
	closed bool
}

func (f *fakeClient) PublishWith(topic string, payload []byte, retain bool) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload, retain})
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func TestPublishEventTopics(t *testing.T) {
	fc := &fakeClient{}
	p := NewPublisher(fc, "home/pen/", nil)

	if err := p.PublishEvent(spen.ButtonEvent{Timestamp: 1, Action: spen.ButtonDown}); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	if err := p.PublishEvent(spen.AirMotionEvent{Timestamp: 1000, DeltaX: 1.5, DeltaY: -2}); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	if len(fc.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(fc.msgs))
	}
	if fc.msgs[0].topic != "home/pen/event/button" || fc.msgs[0].retain {
		t.Errorf("button message = %+v", fc.msgs[0])
	}
	if fc.msgs[1].topic != "home/pen/event/air_motion" {
		t.Errorf("air motion topic = %q", fc.msgs[1].topic)
	}

	var n protocol.EventNotice
	if err := json.Unmarshal(fc.msgs[1].payload, &n); err != nil {
		t.Fatal(err)
	}
	if n.Timestamp != 1000 || n.DeltaX == nil || *n.DeltaX != 1.5 || *n.DeltaY != -2 {
		t.Errorf("unexpected payload %s", fc.msgs[1].payload)
	}
}

func TestPublishStateIsRetained(t *testing.T) {
	fc := &fakeClient{}
	p := NewPublisher(fc, "spenremote", nil)

	if err := p.PublishState(spen.StateConnected); err != nil {
		t.Fatalf("PublishState: %v", err)
	}
	msg := fc.msgs[0]
	if msg.topic != "spenremote/state" || !msg.retain {
		t.Errorf("state message = %+v", msg)
	}
	var n protocol.StateNotice
	if err := json.Unmarshal(msg.payload, &n); err != nil || n.State != "connected" {
		t.Errorf("state payload %s (%v)", msg.payload, err)
	}
}

func TestPublishErrors(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	p := NewPublisher(fc, "x", nil)

	if err := p.PublishEvent(spen.ButtonEvent{}); err == nil {
		t.Error("expected event publish error")
	}
	if err := p.PublishState(spen.StateDisconnected); err == nil {
		t.Error("expected state publish error")
	}

	p.Close()
	if !fc.closed {
		t.Error("Close not forwarded")
	}
}

func TestDialRejectsScheme(t *testing.T) {
	if _, err := Dial(ClientOptions{BrokerURL: "http://broker:1883"}); err == nil {
		t.Fatal("expected error for http scheme")
	}
}
