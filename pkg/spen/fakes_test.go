package spen

import (
	"errors"
	"sync"
)

type fakePlatform struct {
	brand        string
	manufacturer string
	packages     map[string]bool
	features     map[string]bool
}

func eligiblePlatform() *fakePlatform {
	return &fakePlatform{
		brand:        "Samsung",
		manufacturer: "samsung",
		packages:     map[string]bool{ServicePackage: true},
		features:     map[string]bool{FeatureBluetoothLE: true},
	}
}

func (p *fakePlatform) Brand() string                      { return p.brand }
func (p *fakePlatform) Manufacturer() string               { return p.manufacturer }
func (p *fakePlatform) IsPackageInstalled(pkg string) bool { return p.packages[pkg] }
func (p *fakePlatform) HasSystemFeature(name string) bool  { return p.features[name] }

type countingQuery struct {
	mu    sync.Mutex
	calls int
	raw   string
	err   error
}

func (q *countingQuery) QueryCapabilities() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.raw, q.err
}

func (q *countingQuery) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type fakeTransport struct {
	mu        sync.Mutex
	binds     []BindParams
	conns     []ServiceConnection
	unbinds   int
	bindErr   error
	ackUnbind bool
}

func (t *fakeTransport) Bind(p BindParams, c ServiceConnection) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.binds = append(t.binds, p)
	if t.bindErr != nil {
		return t.bindErr
	}
	t.conns = append(t.conns, c)
	return nil
}

func (t *fakeTransport) Unbind(c ServiceConnection) error {
	t.mu.Lock()
	t.unbinds++
	ack := t.ackUnbind
	t.mu.Unlock()
	if ack {
		c.OnServiceDisconnected()
	}
	return nil
}

func (t *fakeTransport) bindCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.binds)
}

func (t *fakeTransport) last() ServiceConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakeService struct {
	mu          sync.Mutex
	callbacks   map[UnitType]Callback
	registers   map[UnitType]int
	unregisters map[UnitType]int
	registerErr error
}

func newFakeService() *fakeService {
	return &fakeService{
		callbacks:   map[UnitType]Callback{},
		registers:   map[UnitType]int{},
		unregisters: map[UnitType]int{},
	}
}

func (s *fakeService) RegisterCallback(t UnitType, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[t]++
	if s.registerErr != nil {
		return s.registerErr
	}
	s.callbacks[t] = cb
	return nil
}

func (s *fakeService) UnregisterCallback(t UnitType, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisters[t]++
	if s.callbacks[t] != cb {
		return errors.New("callback not registered")
	}
	delete(s.callbacks, t)
	return nil
}

func (s *fakeService) emit(t UnitType, rec EventRecord) {
	s.mu.Lock()
	cb := s.callbacks[t]
	s.mu.Unlock()
	if cb != nil {
		cb.OnEvent(rec)
	}
}

func (s *fakeService) registerCount(t UnitType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[t]
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) OnEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// trace records callback and state notifications in arrival order.
type trace struct {
	mu      sync.Mutex
	entries []string
	manager *UnitManager
	errs    []error
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.entries = append(tr.entries, s)
	tr.mu.Unlock()
}

func (tr *trace) OnSuccess(m *UnitManager) {
	tr.mu.Lock()
	tr.manager = m
	tr.mu.Unlock()
	tr.add("success")
}

func (tr *trace) OnFailure(err error) {
	tr.mu.Lock()
	tr.errs = append(tr.errs, err)
	tr.mu.Unlock()
	tr.add("failure")
}

func (tr *trace) OnChange(state ConnectionState) {
	tr.add("state:" + state.String())
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.entries...)
}

func (tr *trace) lastErr() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.errs) == 0 {
		return nil
	}
	return tr.errs[len(tr.errs)-1]
}
