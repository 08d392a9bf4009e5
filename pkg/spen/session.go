package spen

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Options configure a Session.
type Options struct {
	// Transport binds to the service. Required.
	Transport Transport

	// Platform answers eligibility questions. A nil Platform makes every Connect fail
	// with ErrUnsupportedDevice.
	Platform Platform

	// Capabilities backs IsFeatureEnabled and the feature eligibility check.
	Capabilities CapabilityQuery

	// PackageName identifies the caller to the service.
	PackageName string

	Logger *slog.Logger
}

// Session owns the binding to the pen service. It validates the device, binds through
// the Transport, and exposes the UnitManager while a service handle is bound.
//
// Connect and Disconnect may be called from any goroutine. Result callbacks, state
// notifications and events arrive on whatever goroutine the Transport uses.
type Session struct {
	transport Transport
	platform  Platform
	probe     *FeatureProbe
	manager   *UnitManager
	pkg       string
	logger    *slog.Logger

	mu            sync.Mutex
	connected     bool
	service       Service
	conn          *connection
	stateListener ConnectionStateListener
}

// connection is the ServiceConnection handed to the Transport for one Connect call.
type connection struct {
	session  *Session
	cb       ConnectResultCallback
	released bool // guarded by session.mu
}

func (c *connection) OnServiceConnected(svc Service) { c.session.onConnected(c, svc) }
func (c *connection) OnServiceDisconnected()         { c.session.onDisconnected(c) }

// NewSession creates a disconnected Session.
func NewSession(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, errors.New("spen: transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "spen")
	return &Session{
		transport: opts.Transport,
		platform:  opts.Platform,
		probe:     NewFeatureProbe(opts.Capabilities, logger),
		manager:   newUnitManager(logger),
		pkg:       opts.PackageName,
		logger:    logger,
	}, nil
}

// Connect validates the device and starts an asynchronous bind. The outcome is reported
// to cb. A bind refused for lack of permission is logged and reported to nobody.
// Calling Connect while a service is bound reports success again with the current manager.
func (s *Session) Connect(cb ConnectResultCallback) {
	if cb == nil {
		cb = ConnectResultFuncs{}
	}

	if err := s.validate(); err != nil {
		s.logger.Warn("device not eligible", "error", err)
		cb.OnFailure(err)
		return
	}

	c := &connection{session: s, cb: cb}

	s.mu.Lock()
	if s.connected && s.service != nil {
		s.mu.Unlock()
		cb.OnSuccess(s.manager)
		return
	}
	s.conn = c
	s.mu.Unlock()

	params := BindParams{
		ProtocolVersion: ProtocolVersion,
		BinderType:      BinderType,
		PackageName:     s.pkg,
		RequestID:       uuid.NewString(),
	}
	s.logger.Info("binding to service", "package", ServicePackage, "request_id", params.RequestID)

	if err := s.transport.Bind(params, c); err != nil {
		s.mu.Lock()
		if s.conn == c {
			s.conn = nil
		}
		s.mu.Unlock()

		if errors.Is(err, ErrPermissionDenied) {
			s.logger.Error("bind rejected", "error", err)
			return
		}
		s.logger.Error("bind failed", "error", err)
		cb.OnFailure(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
		return
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

// Disconnect releases every listener while the transport is still alive, unbinds and
// reports StateDisconnected. It does nothing when the session is not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	c := s.conn
	if c != nil {
		c.released = true
	}
	s.connected = false
	listener := s.stateListener
	s.mu.Unlock()

	s.manager.ClearAllListeners()
	if c != nil {
		if err := s.transport.Unbind(c); err != nil {
			s.logger.Warn("unbind failed", "error", err)
		}
	}
	s.logger.Info("disconnected")

	if listener != nil {
		listener.OnChange(StateDisconnected)
	}
}

// SetStateChangeListener replaces the connection state listener. Nil removes it.
func (s *Session) SetStateChangeListener(l ConnectionStateListener) {
	s.mu.Lock()
	s.stateListener = l
	s.mu.Unlock()
}

// IsConnected reports whether a bind has been issued and not torn down. It is set when
// the bind is acknowledged, before the service handle arrives, and is not reset if the
// handle turns out to be unusable.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Manager returns the UnitManager while a service handle is bound, nil otherwise.
func (s *Session) Manager() *UnitManager {
	if !s.manager.bound() {
		return nil
	}
	return s.manager
}

// IsFeatureEnabled reports whether the device advertises f. It does not gate GetUnit or
// RegisterListener.
func (s *Session) IsFeatureEnabled(f Feature) bool {
	return s.probe.IsEnabled(f)
}

// SupportedFeatures returns the raw capability identifiers reported by the device.
func (s *Session) SupportedFeatures() []string {
	return s.probe.Supported()
}

func (s *Session) validate() error {
	p := s.platform
	if p == nil {
		return fmt.Errorf("%w: platform unknown", ErrUnsupportedDevice)
	}
	brand, manufacturer := p.Brand(), p.Manufacturer()
	if !strings.EqualFold(brand, VendorName) || !strings.EqualFold(manufacturer, VendorName) {
		return fmt.Errorf("%w: brand %q manufacturer %q", ErrUnsupportedDevice, brand, manufacturer)
	}
	if !p.IsPackageInstalled(ServicePackage) {
		return fmt.Errorf("%w: %s not installed", ErrUnsupportedDevice, ServicePackage)
	}
	if !p.HasSystemFeature(FeatureBluetoothLE) {
		return fmt.Errorf("%w: %s missing", ErrUnsupportedDevice, FeatureBluetoothLE)
	}
	if !s.probe.IsEnabled(FeatureButton) && !s.probe.IsEnabled(FeatureAirMotion) {
		return fmt.Errorf("%w: no pen features enabled", ErrUnsupportedDevice)
	}
	return nil
}

func (s *Session) onConnected(c *connection, svc Service) {
	s.mu.Lock()
	if c != s.conn || c.released {
		s.mu.Unlock()
		s.logger.Debug("ignoring stale service connection")
		return
	}
	if svc == nil {
		s.mu.Unlock()
		s.logger.Error("service connected without a handle")
		c.cb.OnFailure(ErrConnectionFailed)
		return
	}
	s.service = svc
	s.manager.invalidate(svc)
	listener := s.stateListener
	s.mu.Unlock()

	s.logger.Info("service connected")
	c.cb.OnSuccess(s.manager)
	if listener != nil {
		listener.OnChange(StateConnected)
	}
}

func (s *Session) onDisconnected(c *connection) {
	s.mu.Lock()
	if c != s.conn {
		s.mu.Unlock()
		return
	}
	s.service = nil
	s.manager.invalidate(nil)
	s.conn = nil
	if c.released {
		s.mu.Unlock()
		s.logger.Debug("unbind acknowledged")
		return
	}
	s.connected = false
	listener := s.stateListener
	s.mu.Unlock()

	s.logger.Warn("service disconnected unexpectedly")
	if listener != nil {
		listener.OnChange(StateDisconnectedUnknownReason)
	}
}
