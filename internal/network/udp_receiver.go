package network

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

const heartbeatInterval = 5 * time.Second

// UDPReceiver subscribes to a UDPSender and hands every record it receives to OnRecord.
type UDPReceiver struct {
	bridgeAddr string
	logger     *slog.Logger
	conn       *net.UDPConn
	done       chan struct{}
	stop       sync.Once

	// OnRecord is called from the receive goroutine for each distinct record.
	OnRecord func(t spen.UnitType, rec spen.EventRecord)

	dedup seqDedup
}

// seqDedup remembers the last sequence numbers seen so redundant copies are dropped.
type seqDedup struct {
	ring [512]uint32
	pos  int
	seen map[uint32]struct{}
}

func newSeqDedup() seqDedup {
	return seqDedup{seen: make(map[uint32]struct{}, 512)}
}

func (d *seqDedup) isDuplicate(seq uint32) bool {
	if _, ok := d.seen[seq]; ok {
		return true
	}
	if old := d.ring[d.pos]; old != 0 {
		delete(d.seen, old)
	}
	d.ring[d.pos] = seq
	d.seen[seq] = struct{}{}
	d.pos = (d.pos + 1) % len(d.ring)
	return false
}

// NewUDPReceiver creates a receiver for the sender at bridgeAddr ("host:port").
func NewUDPReceiver(bridgeAddr string, logger *slog.Logger) *UDPReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPReceiver{
		bridgeAddr: bridgeAddr,
		logger:     logger.With("component", "udp_receiver"),
		done:       make(chan struct{}),
		dedup:      newSeqDedup(),
	}
}

// Start registers with the sender and waits up to timeout for its acknowledgment before
// starting the receive and heartbeat loops.
func (r *UDPReceiver) Start(timeout time.Duration) error {
	bridge, err := net.ResolveUDPAddr("udp", r.bridgeAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return err
	}
	r.conn = conn
	conn.SetReadBuffer(1 << 20)

	if err := r.register(bridge, timeout); err != nil {
		conn.Close()
		return err
	}
	conn.SetReadDeadline(time.Time{})

	r.logger.Info("subscribed", "bridge", r.bridgeAddr, "local", conn.LocalAddr().String())

	go r.heartbeatLoop(bridge)
	go r.readLoop()
	return nil
}

func (r *UDPReceiver) register(bridge *net.UDPAddr, timeout time.Duration) error {
	const attempts = 3
	buf := make([]byte, 64)
	for i := 0; i < attempts; i++ {
		r.sendControl(protocol.UDPPacketRegister, bridge)

		r.conn.SetReadDeadline(time.Now().Add(timeout / attempts))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err == nil && pkt.Type == protocol.UDPPacketAck {
			return nil
		}
	}
	return errors.New("udp: no acknowledgment from bridge")
}

func (r *UDPReceiver) heartbeatLoop(bridge *net.UDPAddr) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sendControl(protocol.UDPPacketHeartbeat, bridge)
		case <-r.done:
			return
		}
	}
}

func (r *UDPReceiver) sendControl(pktType uint8, addr *net.UDPAddr) {
	data, err := protocol.EncodeUDPPacket(&protocol.UDPPacket{
		Type:      pktType,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	r.conn.WriteToUDP(data, addr)
}

func (r *UDPReceiver) readLoop() {
	buf := make([]byte, 512)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
				continue
			}
		}

		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			r.logger.Debug("dropping packet", "error", err)
			continue
		}
		t, ok := pkt.UnitType()
		if !ok {
			continue
		}
		if r.dedup.isDuplicate(pkt.Seq) {
			continue
		}
		if r.OnRecord != nil {
			r.OnRecord(t, pkt.Record())
		}
	}
}

// Stop closes the socket.
func (r *UDPReceiver) Stop() {
	r.stop.Do(func() {
		close(r.done)
		if r.conn != nil {
			r.conn.Close()
		}
	})
}
