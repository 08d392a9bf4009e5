package spen

// ConnectionState is delivered to the ConnectionStateListener on every transition.
type ConnectionState uint8

const (
	StateConnected ConnectionState = iota
	StateDisconnected
	StateDisconnectedUnknownReason
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDisconnectedUnknownReason:
		return "disconnected_unknown_reason"
	default:
		return "unknown"
	}
}

// ConnectResultCallback receives the outcome of Session.Connect. Either method may be
// called on any goroutine.
type ConnectResultCallback interface {
	OnSuccess(m *UnitManager)
	OnFailure(err error)
}

// ConnectResultFuncs adapts a pair of functions to ConnectResultCallback. Nil fields are skipped.
type ConnectResultFuncs struct {
	Success func(m *UnitManager)
	Failure func(err error)
}

func (f ConnectResultFuncs) OnSuccess(m *UnitManager) {
	if f.Success != nil {
		f.Success(m)
	}
}

func (f ConnectResultFuncs) OnFailure(err error) {
	if f.Failure != nil {
		f.Failure(err)
	}
}

// ConnectionStateListener is notified when the session connects or disconnects.
type ConnectionStateListener interface {
	OnChange(state ConnectionState)
}

// ConnectionStateListenerFunc adapts a function to ConnectionStateListener.
type ConnectionStateListenerFunc func(state ConnectionState)

// OnChange calls the underlying function.
func (f ConnectionStateListenerFunc) OnChange(state ConnectionState) { f(state) }

// EventListener receives decoded events for one Unit. It runs on the goroutine the
// transport used to deliver the record.
type EventListener interface {
	OnEvent(ev Event)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(ev Event)

// OnEvent calls the underlying function.
func (f EventListenerFunc) OnEvent(ev Event) { f(ev) }
