package spen

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// gatedService blocks RegisterCallback until release is closed.
type gatedService struct {
	*fakeService
	entered chan struct{}
	release chan struct{}
}

func newGatedService() *gatedService {
	return &gatedService{
		fakeService: newFakeService(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (s *gatedService) RegisterCallback(t UnitType, cb Callback) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.fakeService.RegisterCallback(t, cb)
}

func (u *Unit) boundTo() Service {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.service
}

func (s *fakeService) registered(t UnitType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbacks[t] != nil
}

func TestEvictedUnitIsReleased(t *testing.T) {
	old := newFakeService()
	m := boundManager(old)
	u, _ := m.GetUnit(UnitTypeButton)
	sink := &eventSink{}
	if err := m.RegisterListener(u, sink); err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}

	m.invalidate(newFakeService())

	if u.boundTo() != nil || u.isRegistered() {
		t.Fatalf("evicted unit still bound")
	}
	late := &eventSink{}
	if err := m.RegisterListener(u, late); !errors.Is(err, ErrServiceNotConnected) {
		t.Fatalf("expected ErrServiceNotConnected, got %v", err)
	}
	if got := old.registerCount(UnitTypeButton); got != 1 {
		t.Fatalf("old service saw %d registrations, want 1", got)
	}

	old.emit(UnitTypeButton, NewEventRecord(1, 0, 0))
	if len(sink.all()) != 0 || len(late.all()) != 0 {
		t.Fatalf("evicted unit delivered an event")
	}
}

func TestUnregisterDoesNotWaitForRegister(t *testing.T) {
	svc := newGatedService()
	m := boundManager(svc)
	u, _ := m.GetUnit(UnitTypeButton)

	done := make(chan error, 1)
	go func() { done <- m.RegisterListener(u, &eventSink{}) }()
	<-svc.entered

	unregistered := make(chan struct{})
	go func() {
		m.UnregisterListener(u)
		close(unregistered)
	}()
	select {
	case <-unregistered:
	case <-time.After(time.Second):
		t.Fatal("UnregisterListener blocked behind a pending registration")
	}

	close(svc.release)
	if err := <-done; err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}
	if u.isRegistered() || svc.registered(UnitTypeButton) {
		t.Fatalf("registration should have been withdrawn")
	}
}

func TestListenerSetDuringPendingRegistrationKeepsIt(t *testing.T) {
	svc := newGatedService()
	m := boundManager(svc)
	u, _ := m.GetUnit(UnitTypeButton)

	done := make(chan error, 1)
	go func() { done <- m.RegisterListener(u, &eventSink{}) }()
	<-svc.entered

	m.UnregisterListener(u)
	sink := &eventSink{}
	if err := m.RegisterListener(u, sink); err != nil {
		t.Fatalf("second RegisterListener: %v", err)
	}

	close(svc.release)
	if err := <-done; err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}
	if !u.isRegistered() {
		t.Fatalf("unit should stay registered for the new listener")
	}
	if got := svc.registerCount(UnitTypeButton); got != 1 {
		t.Fatalf("registerCount = %d, want 1", got)
	}
	svc.emit(UnitTypeButton, NewEventRecord(5, 0, 1))
	if len(sink.all()) != 1 {
		t.Fatalf("new listener got %d events, want 1", len(sink.all()))
	}
}

func TestInvalidateRacesWithGetUnit(t *testing.T) {
	m := newUnitManager(slog.Default())
	m.invalidate(newFakeService())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []*Unit
	)
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, ut := range UnitTypes {
					u, err := m.GetUnit(ut)
					if err != nil {
						continue
					}
					_ = m.RegisterListener(u, &eventSink{})
					mu.Lock()
					seen = append(seen, u)
					mu.Unlock()
				}
			}
		}()
	}

	var last *fakeService
	for i := 0; i <= 200; i++ {
		if i%5 == 4 {
			m.invalidate(nil)
			continue
		}
		last = newFakeService()
		m.invalidate(last)
	}
	close(stop)
	wg.Wait()

	current := map[*Unit]bool{}
	for _, u := range m.cached() {
		current[u] = true
		if u.boundTo() != Service(last) {
			t.Fatalf("cached unit bound to a stale service")
		}
	}
	for _, u := range seen {
		if !current[u] && u.boundTo() != nil {
			t.Fatalf("evicted %s unit still bound to a service", u.Type())
		}
	}
}
