package network

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

const (
	subscriberTimeout = 30 * time.Second
	cleanupInterval   = 10 * time.Second
)

// UDPSender pushes decoded pen records to every subscriber that registered over UDP.
// Subscribers keep their slot alive with heartbeats.
type UDPSender struct {
	addr   string
	logger *slog.Logger

	conn   *net.UDPConn
	subs   map[string]*udpSubscriber
	subsMu sync.RWMutex
	seq    atomic.Uint32
	done   chan struct{}
	stop   sync.Once

	// OnSubscribersChanged, when set, is called with the subscriber count after it changes.
	OnSubscribersChanged func(n int)
}

type udpSubscriber struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

// NewUDPSender creates a sender that will listen on addr (e.g. ":7002").
func NewUDPSender(addr string, logger *slog.Logger) *UDPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPSender{
		addr:   addr,
		logger: logger.With("component", "udp_sender"),
		subs:   make(map[string]*udpSubscriber),
		done:   make(chan struct{}),
	}
}

// Start binds the socket and begins accepting registrations.
func (s *UDPSender) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	s.conn = conn
	conn.SetWriteBuffer(1 << 20)

	s.logger.Info("listening", "addr", conn.LocalAddr().String())

	go s.readLoop()
	go s.cleanupLoop()
	return nil
}

// LocalAddr returns the bound address, nil before Start.
func (s *UDPSender) LocalAddr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *UDPSender) readLoop() {
	buf := make([]byte, 64)
	for {
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			continue
		}

		switch pkt.Type {
		case protocol.UDPPacketRegister:
			s.touch(remote)
			ack, _ := protocol.EncodeUDPPacket(&protocol.UDPPacket{
				Type:      protocol.UDPPacketAck,
				Timestamp: time.Now().UnixMilli(),
			})
			s.conn.WriteToUDP(ack, remote)

		case protocol.UDPPacketHeartbeat:
			s.touch(remote)
		}
	}
}

func (s *UDPSender) touch(remote *net.UDPAddr) {
	key := remote.String()
	s.subsMu.Lock()
	_, exists := s.subs[key]
	s.subs[key] = &udpSubscriber{addr: remote, lastSeen: time.Now()}
	n := len(s.subs)
	s.subsMu.Unlock()

	if !exists {
		s.logger.Info("subscriber registered", "addr", key)
		s.notify(n)
	}
}

func (s *UDPSender) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.expire(time.Now())
		case <-s.done:
			return
		}
	}
}

// expire drops subscribers not heard from since now-subscriberTimeout.
func (s *UDPSender) expire(now time.Time) {
	s.subsMu.Lock()
	removed := 0
	for key, sub := range s.subs {
		if now.Sub(sub.lastSeen) > subscriberTimeout {
			s.logger.Info("removing stale subscriber", "addr", key)
			delete(s.subs, key)
			removed++
		}
	}
	n := len(s.subs)
	s.subsMu.Unlock()

	if removed > 0 {
		s.notify(n)
	}
}

func (s *UDPSender) notify(n int) {
	if s.OnSubscribersChanged != nil {
		s.OnSubscribersChanged(n)
	}
}

// Publish sends rec to all subscribers. Button records are sent three times since a
// lost release would leave the button stuck; receivers drop the copies by sequence.
func (s *UDPSender) Publish(t spen.UnitType, rec spen.EventRecord) {
	pt, ok := protocol.PacketTypeFor(t)
	if !ok || s.conn == nil {
		return
	}

	data, err := protocol.EncodeUDPPacket(&protocol.UDPPacket{
		Type:      pt,
		Seq:       s.seq.Add(1),
		Timestamp: rec.Timestamp(),
		Values:    rec.Values(),
	})
	if err != nil {
		s.logger.Warn("encode failed", "unit", t.String(), "error", err)
		return
	}

	redundancy := 1
	if t == spen.UnitTypeButton {
		redundancy = 3
	}
	s.broadcast(data, redundancy)
}

func (s *UDPSender) broadcast(data []byte, redundancy int) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for _, sub := range s.subs {
		for i := 0; i < redundancy; i++ {
			s.conn.WriteToUDP(data, sub.addr)
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (s *UDPSender) Subscribers() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

// Stop closes the socket.
func (s *UDPSender) Stop() {
	s.stop.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
