// Package bridge drives a pen session and fans its events out to the configured sinks.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spenremote/internal/metrics"
	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

// ErrConnectTimeout is returned by Connect when no outcome arrived in time. A bind the
// service refused for lack of permission ends this way.
var ErrConnectTimeout = errors.New("bridge: no connect result")

// maxReconnectDelay caps the backoff between failed reconnect attempts.
const maxReconnectDelay = time.Minute

// Sink receives every decoded event and state change.
type Sink interface {
	Name() string
	PublishEvent(ev spen.Event) error
	PublishState(state spen.ConnectionState) error
}

// Session is the part of spen.Session the bridge drives.
type Session interface {
	Connect(cb spen.ConnectResultCallback)
	Disconnect()
	SetStateChangeListener(l spen.ConnectionStateListener)
	IsConnected() bool
	Manager() *spen.UnitManager
	IsFeatureEnabled(f spen.Feature) bool
	SupportedFeatures() []string
}

var _ Session = (*spen.Session)(nil)

// Options configure a Bridge.
type Options struct {
	Sinks []Sink

	// ReconnectDelay is the wait before reconnecting after an unexpected disconnect. Failed
	// attempts are retried with the delay doubled each time, up to a minute. Zero disables
	// reconnecting.
	ReconnectDelay time.Duration

	// ConnectTimeout bounds reconnect attempts. Defaults to 15s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Status is a snapshot of the bridge.
type Status struct {
	Connected bool     `json:"connected"`
	Bound     bool     `json:"bound"`
	State     string   `json:"state"`
	Features  []string `json:"features"`
	Units     []string `json:"units"`
	Events    uint64   `json:"events"`
}

// FeatureSet reports the device capabilities.
type FeatureSet struct {
	Supported []string `json:"supported"`
	Button    bool     `json:"button"`
	AirMotion bool     `json:"air_motion"`
}

// Bridge coordinates one Session with its sinks.
type Bridge struct {
	session Session
	logger  *slog.Logger

	reconnectDelay time.Duration
	connectTimeout time.Duration

	mu        sync.Mutex
	sinks     []Sink
	state     spen.ConnectionState
	units     []spen.UnitType
	last      map[spen.UnitType]protocol.EventNotice
	events    uint64
	reconnect *time.Timer
	retryGen  uint64 // bumped whenever a pending reconnect is cancelled
	attempts  int
	closed    bool
	onState   []func(spen.ConnectionState)
}

// New creates a Bridge and installs it as the session's state listener.
func New(session Session, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b := &Bridge{
		session:        session,
		logger:         logger.With("component", "bridge"),
		reconnectDelay: opts.ReconnectDelay,
		connectTimeout: timeout,
		sinks:          append([]Sink(nil), opts.Sinks...),
		state:          spen.StateDisconnected,
		last:           make(map[spen.UnitType]protocol.EventNotice),
	}
	session.SetStateChangeListener(b)
	return b
}

// AddSink attaches another sink.
func (b *Bridge) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// OnStateChange registers fn to run after every state change.
func (b *Bridge) OnStateChange(fn func(spen.ConnectionState)) {
	b.mu.Lock()
	b.onState = append(b.onState, fn)
	b.mu.Unlock()
}

// Connect connects the session and subscribes to every enabled unit. It returns when the
// session reports an outcome or ctx ends.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	b.stopReconnectLocked()
	b.mu.Unlock()

	return b.connect(ctx)
}

func (b *Bridge) connect(ctx context.Context) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("bridge: closed")
	}

	result := make(chan error, 1)
	b.session.Connect(spen.ConnectResultFuncs{
		Success: func(m *spen.UnitManager) {
			b.attach(m)
			result <- nil
		},
		Failure: func(err error) { result <- err },
	})

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
	}
	metrics.ObserveConnect(err)
	if err != nil {
		b.logger.Warn("connect failed", "error", err)
	}
	return err
}

// attach subscribes to every unit the device advertises.
func (b *Bridge) attach(m *spen.UnitManager) {
	var attached []spen.UnitType
	for _, t := range spen.UnitTypes {
		if !b.session.IsFeatureEnabled(featureFor(t)) {
			continue
		}
		u, err := m.GetUnit(t)
		if err != nil {
			b.logger.Warn("unit unavailable", "unit", t.String(), "error", err)
			continue
		}
		if err := m.RegisterListener(u, spen.EventListenerFunc(b.dispatch)); err != nil {
			b.logger.Warn("listener registration failed", "unit", t.String(), "error", err)
			continue
		}
		attached = append(attached, t)
	}

	b.mu.Lock()
	b.units = attached
	b.mu.Unlock()
	b.logger.Info("units attached", "count", len(attached))
}

func featureFor(t spen.UnitType) spen.Feature {
	if t == spen.UnitTypeAirMotion {
		return spen.FeatureAirMotion
	}
	return spen.FeatureButton
}

// Disconnect disconnects the session and cancels any pending reconnect.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.stopReconnectLocked()
	b.mu.Unlock()
	b.session.Disconnect()
}

// Close disconnects and refuses further connects.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Disconnect()
}

// OnChange implements spen.ConnectionStateListener.
func (b *Bridge) OnChange(state spen.ConnectionState) {
	b.logger.Info("session state changed", "state", state.String())
	metrics.SetConnectionState(state)

	b.mu.Lock()
	b.state = state
	if state == spen.StateConnected {
		b.attempts = 0
	} else {
		b.units = nil
	}
	sinks := append([]Sink(nil), b.sinks...)
	subs := make([]func(spen.ConnectionState), len(b.onState))
	copy(subs, b.onState)
	if state == spen.StateDisconnectedUnknownReason && b.reconnectDelay > 0 && !b.closed {
		b.attempts = 0
		b.scheduleReconnectLocked()
	}
	b.mu.Unlock()

	for _, s := range sinks {
		start := time.Now()
		err := s.PublishState(state)
		metrics.ObservePublish(s.Name(), start, err)
		if err != nil {
			b.logger.Warn("state delivery failed", "sink", s.Name(), "error", err)
		}
	}
	for _, fn := range subs {
		fn(state)
	}
}

func (b *Bridge) scheduleReconnectLocked() {
	b.stopReconnectLocked()
	gen := b.retryGen
	delay := b.backoffLocked()
	b.attempts++
	b.logger.Info("reconnect scheduled", "delay", delay, "attempt", b.attempts)
	b.reconnect = time.AfterFunc(delay, func() { b.retry(gen) })
}

// backoffLocked doubles the reconnect delay per failed attempt up to maxReconnectDelay.
func (b *Bridge) backoffLocked() time.Duration {
	limit := maxReconnectDelay
	if b.reconnectDelay > limit {
		limit = b.reconnectDelay
	}
	d := b.reconnectDelay
	for i := 0; i < b.attempts && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

// retry runs one reconnect attempt and schedules the next one if it fails and nothing
// cancelled the reconnect meanwhile.
func (b *Bridge) retry(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.retryGen {
		b.mu.Unlock()
		return
	}
	b.reconnect = nil
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.connectTimeout)
	err := b.connect(ctx)
	cancel()
	if err == nil {
		return
	}
	b.logger.Warn("reconnect failed", "error", err)

	b.mu.Lock()
	if !b.closed && gen == b.retryGen && b.reconnect == nil {
		b.scheduleReconnectLocked()
	}
	b.mu.Unlock()
}

func (b *Bridge) stopReconnectLocked() {
	if b.reconnect != nil {
		b.reconnect.Stop()
		b.reconnect = nil
	}
	b.retryGen++
}

func (b *Bridge) dispatch(ev spen.Event) {
	metrics.ObserveEvent(ev.Type())

	b.mu.Lock()
	b.events++
	b.last[ev.Type()] = protocol.NoticeFor(ev)
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.Unlock()

	for _, s := range sinks {
		start := time.Now()
		err := s.PublishEvent(ev)
		metrics.ObservePublish(s.Name(), start, err)
		if err != nil {
			b.logger.Debug("event delivery failed", "sink", s.Name(), "error", err)
		}
	}
}

// LastEvent returns the most recent event of unit type t seen by the bridge.
func (b *Bridge) LastEvent(t spen.UnitType) (protocol.EventNotice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.last[t]
	return n, ok
}

// Status returns a snapshot of the bridge.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	state := b.state
	units := make([]string, 0, len(b.units))
	for _, t := range b.units {
		units = append(units, t.String())
	}
	events := b.events
	b.mu.Unlock()

	features := b.session.SupportedFeatures()
	if features == nil {
		features = []string{}
	}
	return Status{
		Connected: b.session.IsConnected(),
		Bound:     b.session.Manager() != nil,
		State:     state.String(),
		Features:  features,
		Units:     units,
		Events:    events,
	}
}

// Features reports the device capabilities.
func (b *Bridge) Features() FeatureSet {
	supported := b.session.SupportedFeatures()
	if supported == nil {
		supported = []string{}
	}
	return FeatureSet{
		Supported: supported,
		Button:    b.session.IsFeatureEnabled(spen.FeatureButton),
		AirMotion: b.session.IsFeatureEnabled(spen.FeatureAirMotion),
	}
}
