package bridge

import (
	"context"
	"time"

	"spenremote/internal/network"
	"spenremote/internal/protocol"
	"spenremote/internal/store"
	"spenremote/pkg/spen"
)

// UDPSink forwards events to UDP subscribers as canonical records.
type UDPSink struct {
	Sender *network.UDPSender
}

func (s UDPSink) Name() string { return "udp" }

func (s UDPSink) PublishEvent(ev spen.Event) error {
	t, rec := protocol.RecordFor(ev)
	s.Sender.Publish(t, rec)
	return nil
}

func (s UDPSink) PublishState(spen.ConnectionState) error { return nil }

// CacheSink writes events and state to the Redis state cache.
type CacheSink struct {
	Cache   *store.StateCache
	Timeout time.Duration
}

func (s CacheSink) Name() string { return "redis" }

func (s CacheSink) context() (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (s CacheSink) PublishEvent(ev spen.Event) error {
	ctx, cancel := s.context()
	defer cancel()
	return s.Cache.SetLastEvent(ctx, ev)
}

func (s CacheSink) PublishState(state spen.ConnectionState) error {
	ctx, cancel := s.context()
	defer cancel()
	return s.Cache.SetState(ctx, state)
}
