// Package network provides the websocket transport to the pen service and the UDP
// fan-out used to push records to local subscribers.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	resultWait   = 5 * time.Second
	maxFrameSize = 4096
)

var (
	errNotBound  = errors.New("ws: connection is not bound")
	errLinkClose = errors.New("ws: link closed")
)

// WSTransport binds to the pen service over a websocket. Each Bind opens its own link;
// the link reports its service handle and its loss through the ServiceConnection.
type WSTransport struct {
	addr   string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu    sync.Mutex
	links map[spen.ServiceConnection]*wsLink
}

// NewWSTransport creates a transport dialing the service at addr (e.g. "ws://127.0.0.1:7001/pen").
func NewWSTransport(addr string, logger *slog.Logger) (*WSTransport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("ws: invalid service address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		addr:   u.String(),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "ws_transport"),
		links:  make(map[spen.ServiceConnection]*wsLink),
	}, nil
}

// Bind starts a link in the background and returns immediately. A service that refuses
// the caller with permission_denied is logged and reported to nobody.
func (t *WSTransport) Bind(params spen.BindParams, sc spen.ServiceConnection) error {
	t.mu.Lock()
	if _, exists := t.links[sc]; exists {
		t.mu.Unlock()
		return errors.New("ws: connection already bound")
	}
	l := &wsLink{
		transport: t,
		sc:        sc,
		params:    params,
		send:      make(chan protocol.Message, 64),
		done:      make(chan struct{}),
		callbacks: make(map[spen.UnitType]spen.Callback),
		pending:   make(map[spen.UnitType]chan protocol.RegisterResultPayload),
		logger:    t.logger.With("request_id", params.RequestID),
	}
	t.links[sc] = l
	t.mu.Unlock()

	go l.run()
	return nil
}

// Unbind closes the link bound to sc. Its read loop acknowledges through
// OnServiceDisconnected.
func (t *WSTransport) Unbind(sc spen.ServiceConnection) error {
	t.mu.Lock()
	l, ok := t.links[sc]
	t.mu.Unlock()
	if !ok {
		return errNotBound
	}
	l.close()
	return nil
}

func (t *WSTransport) forget(l *wsLink) {
	t.mu.Lock()
	if t.links[l.sc] == l {
		delete(t.links, l.sc)
	}
	t.mu.Unlock()
}

// wsLink is one websocket session to the service. It implements spen.Service.
type wsLink struct {
	transport *WSTransport
	sc        spen.ServiceConnection
	params    spen.BindParams
	logger    *slog.Logger

	send      chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	conn      *websocket.Conn
	callbacks map[spen.UnitType]spen.Callback
	pending   map[spen.UnitType]chan protocol.RegisterResultPayload
}

func (l *wsLink) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.mu.Unlock()
	})
}

func (l *wsLink) run() {
	defer l.transport.forget(l)

	l.logger.Info("connecting to service", "addr", l.transport.addr)
	conn, _, err := l.transport.dialer.Dial(l.transport.addr, nil)
	if err != nil {
		l.logger.Error("service dial failed", "error", err)
		l.close()
		l.sc.OnServiceConnected(nil)
		return
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	select {
	case <-l.done:
		conn.Close()
		return
	default:
	}

	if !l.handshake(conn) {
		l.close()
		return
	}

	// Both pumps run before the handle is reported so that a callback registering units
	// from OnServiceConnected sees its results.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		l.writePump(conn)
	}()
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		l.readPump(conn)
	}()

	l.logger.Info("bound to service")
	l.sc.OnServiceConnected(l)

	<-readDone
	l.close()
	<-pumpDone

	l.logger.Info("service link closed")
	l.sc.OnServiceDisconnected()
}

// handshake sends the bind request and waits for the acknowledgment. Failures are
// reported to the ServiceConnection; success is left to the caller.
func (l *wsLink) handshake(conn *websocket.Conn) bool {
	bind, err := protocol.NewMessage(protocol.TypeBind, protocol.BindPayload{
		ProtocolVersion: l.params.ProtocolVersion,
		BinderType:      l.params.BinderType,
		PackageName:     l.params.PackageName,
		RequestID:       l.params.RequestID,
	})
	if err != nil {
		l.logger.Error("bind marshal failed", "error", err)
		l.sc.OnServiceConnected(nil)
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(bind); err != nil {
		l.logger.Error("bind write failed", "error", err)
		l.sc.OnServiceConnected(nil)
		return false
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != protocol.TypeBindAck {
		l.logger.Error("bind acknowledgment missing", "error", err, "type", msg.Type)
		l.sc.OnServiceConnected(nil)
		return false
	}

	var ack protocol.BindAckPayload
	if err := msg.Decode(&ack); err != nil {
		l.logger.Error("invalid bind acknowledgment", "error", err)
		l.sc.OnServiceConnected(nil)
		return false
	}
	if !ack.OK {
		if ack.Error == protocol.ErrorPermissionDenied {
			l.logger.Error("service refused bind", "error", spen.ErrPermissionDenied)
			return false
		}
		l.logger.Error("service rejected bind", "reason", ack.Error)
		l.sc.OnServiceConnected(nil)
		return false
	}

	return true
}

func (l *wsLink) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.logger.Warn("service read error", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn("invalid service message", "error", err)
			continue
		}
		l.handleMessage(msg)
	}
}

func (l *wsLink) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-l.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				l.logger.Warn("service write error", "error", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-l.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (l *wsLink) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeEvent:
		var payload protocol.EventPayload
		if err := msg.Decode(&payload); err != nil {
			l.logger.Warn("invalid event payload", "error", err)
			return
		}
		ut, err := spen.ParseUnitType(payload.UnitType)
		if err != nil {
			l.logger.Warn("event for unknown unit", "error", err)
			return
		}
		l.mu.Lock()
		cb := l.callbacks[ut]
		l.mu.Unlock()
		if cb != nil {
			cb.OnEvent(spen.NewEventRecord(payload.Timestamp, payload.Values...))
		}

	case protocol.TypeRegisterResult:
		var payload protocol.RegisterResultPayload
		if err := msg.Decode(&payload); err != nil {
			l.logger.Warn("invalid register result", "error", err)
			return
		}
		ut, err := spen.ParseUnitType(payload.UnitType)
		if err != nil {
			return
		}
		l.mu.Lock()
		ch := l.pending[ut]
		delete(l.pending, ut)
		l.mu.Unlock()
		if ch != nil {
			ch <- payload
		}

	default:
		l.logger.Debug("ignoring service message", "type", msg.Type)
	}
}

// call sends a register or unregister request and waits for the service's answer.
func (l *wsLink) call(t protocol.MessageType, ut spen.UnitType) error {
	msg, err := protocol.NewMessage(t, protocol.RegisterPayload{UnitType: ut.String()})
	if err != nil {
		return err
	}

	ch := make(chan protocol.RegisterResultPayload, 1)
	l.mu.Lock()
	l.pending[ut] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.pending[ut] == ch {
			delete(l.pending, ut)
		}
		l.mu.Unlock()
	}()

	select {
	case l.send <- msg:
	case <-l.done:
		return errLinkClose
	}

	select {
	case res := <-ch:
		if !res.OK {
			return fmt.Errorf("ws: %s %s refused: %s", t, ut, res.Error)
		}
		return nil
	case <-l.done:
		return errLinkClose
	case <-time.After(resultWait):
		return fmt.Errorf("ws: %s %s timed out", t, ut)
	}
}

// RegisterCallback implements spen.Service.
func (l *wsLink) RegisterCallback(ut spen.UnitType, cb spen.Callback) error {
	l.mu.Lock()
	l.callbacks[ut] = cb
	l.mu.Unlock()

	if err := l.call(protocol.TypeRegister, ut); err != nil {
		l.mu.Lock()
		if l.callbacks[ut] == cb {
			delete(l.callbacks, ut)
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// UnregisterCallback implements spen.Service.
func (l *wsLink) UnregisterCallback(ut spen.UnitType, cb spen.Callback) error {
	l.mu.Lock()
	if l.callbacks[ut] == cb {
		delete(l.callbacks, ut)
	}
	l.mu.Unlock()

	return l.call(protocol.TypeUnregister, ut)
}
