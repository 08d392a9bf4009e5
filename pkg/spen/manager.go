package spen

import (
	"log/slog"
	"sync"
)

// UnitManager caches at most one Unit per unit type for the current binding. It is only
// handed out by Session once the service is bound.
type UnitManager struct {
	logger *slog.Logger

	mu      sync.Mutex
	service Service
	units   [unitTypeCount]*Unit
}

func newUnitManager(logger *slog.Logger) *UnitManager {
	return &UnitManager{logger: logger}
}

// GetUnit returns the Unit for t, creating it on first use. Repeated calls within one
// binding return the same Unit.
func (m *UnitManager) GetUnit(t UnitType) (*Unit, error) {
	if !t.Valid() {
		return nil, ErrUnknownUnitType
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.service == nil {
		return nil, ErrServiceNotConnected
	}
	if u := m.units[t]; u != nil {
		return u, nil
	}
	u := newUnit(t, m.logger)
	u.bind(m.service)
	m.units[t] = u
	return u, nil
}

// RegisterListener makes l the Unit's listener and registers the Unit's adapter with the
// service if it is not registered yet. Only ErrServiceNotConnected is returned; remote
// failures are logged.
func (m *UnitManager) RegisterListener(u *Unit, l EventListener) error {
	u.setListener(l)
	return u.register()
}

// UnregisterListener removes the Unit's adapter from the service and clears its listener.
func (m *UnitManager) UnregisterListener(u *Unit) {
	u.unregister()
}

// ClearAllListeners unregisters every cached Unit but keeps them cached.
func (m *UnitManager) ClearAllListeners() {
	for _, u := range m.cached() {
		u.unregister()
	}
}

// invalidate binds the manager to svc and evicts every cached Unit. Evicted Units are
// released under m.mu so none of them reaches the old service afterwards.
func (m *UnitManager) invalidate(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u != nil {
			u.release()
		}
	}
	m.service = svc
	m.units = [unitTypeCount]*Unit{}
}

func (m *UnitManager) cached() []*Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Unit
	for _, u := range m.units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

func (m *UnitManager) bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service != nil
}
