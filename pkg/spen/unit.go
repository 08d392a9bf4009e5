package spen

import (
	"log/slog"
	"sync"
)

// Unit bridges one unit type's remote event stream to a single local listener slot.
// Units are created by UnitManager.GetUnit and live for one binding epoch.
type Unit struct {
	typ     UnitType
	logger  *slog.Logger
	adapter *unitAdapter

	mu          sync.Mutex
	service     Service
	registered  bool
	registering bool
	gen         uint64 // bumped by unregister and release

	listenerMu sync.RWMutex
	listener   EventListener
}

// unitAdapter is the callback registered with the service. It is registered at most
// once per binding and always forwards to the Unit's current listener.
type unitAdapter struct {
	unit *Unit
}

func (a *unitAdapter) OnEvent(rec EventRecord) {
	a.unit.dispatch(rec)
}

func newUnit(t UnitType, logger *slog.Logger) *Unit {
	u := &Unit{typ: t, logger: logger.With("unit", t.String())}
	u.adapter = &unitAdapter{unit: u}
	return u
}

// Type returns the unit type this Unit represents.
func (u *Unit) Type() UnitType { return u.typ }

func (u *Unit) bind(svc Service) {
	u.mu.Lock()
	u.service = svc
	u.mu.Unlock()
}

func (u *Unit) setListener(l EventListener) {
	u.listenerMu.Lock()
	u.listener = l
	u.listenerMu.Unlock()
}

func (u *Unit) currentListener() EventListener {
	u.listenerMu.RLock()
	defer u.listenerMu.RUnlock()
	return u.listener
}

// register makes sure the adapter is registered with the service. A second call only
// relies on the listener swap done by setListener. Remote failures are logged and leave
// the adapter unregistered so a later call retries.
//
// Remote calls run without u.mu. While one is in flight the Unit is marked registering
// and concurrent calls return at once; if an unregister or release lands meanwhile, the
// result is reconciled against the listener present when the call returns.
func (u *Unit) register() error {
	u.mu.Lock()
	if u.service == nil {
		u.mu.Unlock()
		return ErrServiceNotConnected
	}
	if u.registered || u.registering {
		u.mu.Unlock()
		return nil
	}
	u.registering = true

	for {
		svc, gen := u.service, u.gen
		u.mu.Unlock()
		err := svc.RegisterCallback(u.typ, u.adapter)
		u.mu.Lock()

		if u.gen == gen {
			u.registering = false
			if err != nil {
				u.mu.Unlock()
				u.logger.Error("register callback failed", "error", err)
				return nil
			}
			u.registered = true
			u.mu.Unlock()
			u.logger.Debug("callback registered")
			return nil
		}

		if err != nil || u.service != svc {
			u.registering = false
			u.mu.Unlock()
			return nil
		}
		if u.currentListener() != nil {
			// A new listener arrived after the unregister; keep the registration.
			u.registering = false
			u.registered = true
			u.mu.Unlock()
			return nil
		}

		u.mu.Unlock()
		if err := svc.UnregisterCallback(u.typ, u.adapter); err != nil {
			u.logger.Error("unregister callback failed", "error", err)
		}
		u.mu.Lock()
		if u.service != svc || u.currentListener() == nil {
			u.registering = false
			u.mu.Unlock()
			return nil
		}
	}
}

func (u *Unit) unregister() {
	u.mu.Lock()
	svc := u.service
	was := u.registered
	u.registered = false
	u.gen++
	u.mu.Unlock()

	if was && svc != nil {
		if err := svc.UnregisterCallback(u.typ, u.adapter); err != nil {
			u.logger.Error("unregister callback failed", "error", err)
		}
	}
	u.setListener(nil)
}

// release detaches the Unit from its binding. Its service is gone, so nothing is
// unregistered remotely and later register calls fail with ErrServiceNotConnected.
func (u *Unit) release() {
	u.mu.Lock()
	u.service = nil
	u.registered = false
	u.gen++
	u.mu.Unlock()

	u.setListener(nil)
}

func (u *Unit) isRegistered() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.registered
}

func (u *Unit) dispatch(rec EventRecord) {
	u.mu.Lock()
	live := u.service != nil
	u.mu.Unlock()
	if !live {
		return
	}
	l := u.currentListener()
	if l == nil {
		return
	}
	ev, err := Decode(u.typ, rec)
	if err != nil {
		u.logger.Error("dropping event", "error", err)
		return
	}
	l.OnEvent(ev)
}
