package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"spenremote/pkg/spen"
)

// UDP Packet types
const (
	UDPPacketButton    uint8 = 0x01
	UDPPacketAirMotion uint8 = 0x02
	UDPPacketRegister  uint8 = 0x10
	UDPPacketHeartbeat uint8 = 0x11
	UDPPacketAck       uint8 = 0x12 // Bridge -> subscriber: confirms the registration
)

// Header: [type(1)] [seq(4)] [timestamp(8)] = 13 bytes
const UDPHeaderSize = 13

// maxValues bounds the value count so a frame fits one small datagram.
const maxValues = 32

// UDPPacket is a binary-encoded event record for local UDP subscribers.
//
// Wire format per type:
//
//	Button    (0x01): header + count(uint8) + count*float32
//	AirMotion (0x02): header + count(uint8) + count*float32
//	Register  (0x10): header only
//	Heartbeat (0x11): header only
//	Ack       (0x12): header only
type UDPPacket struct {
	Type      uint8
	Seq       uint32
	Timestamp int64
	Values    []float32
}

// PacketTypeFor returns the packet type carrying records of unit type t.
func PacketTypeFor(t spen.UnitType) (uint8, bool) {
	switch t {
	case spen.UnitTypeButton:
		return UDPPacketButton, true
	case spen.UnitTypeAirMotion:
		return UDPPacketAirMotion, true
	}
	return 0, false
}

// UnitType returns the unit type of an event packet.
func (p *UDPPacket) UnitType() (spen.UnitType, bool) {
	switch p.Type {
	case UDPPacketButton:
		return spen.UnitTypeButton, true
	case UDPPacketAirMotion:
		return spen.UnitTypeAirMotion, true
	}
	return 0, false
}

// Record converts an event packet back into an event record.
func (p *UDPPacket) Record() spen.EventRecord {
	return spen.NewEventRecord(p.Timestamp, p.Values...)
}

func isEvent(t uint8) bool {
	return t == UDPPacketButton || t == UDPPacketAirMotion
}

// EncodeUDPPacket serializes a UDPPacket to wire format.
func EncodeUDPPacket(pkt *UDPPacket) ([]byte, error) {
	size := UDPHeaderSize
	if isEvent(pkt.Type) {
		if len(pkt.Values) > maxValues {
			return nil, errors.New("udp: too many values")
		}
		size += 1 + 4*len(pkt.Values)
	}

	buf := make([]byte, size)
	buf[0] = pkt.Type
	binary.BigEndian.PutUint32(buf[1:5], pkt.Seq)
	binary.BigEndian.PutUint64(buf[5:13], uint64(pkt.Timestamp))

	if isEvent(pkt.Type) {
		payload := buf[UDPHeaderSize:]
		payload[0] = uint8(len(pkt.Values))
		for i, v := range pkt.Values {
			binary.BigEndian.PutUint32(payload[1+4*i:5+4*i], math.Float32bits(v))
		}
	}

	return buf, nil
}

// DecodeUDPPacket deserializes wire bytes into a UDPPacket.
func DecodeUDPPacket(data []byte) (*UDPPacket, error) {
	if len(data) < UDPHeaderSize {
		return nil, errors.New("udp: packet too short")
	}

	pkt := &UDPPacket{
		Type:      data[0],
		Seq:       binary.BigEndian.Uint32(data[1:5]),
		Timestamp: int64(binary.BigEndian.Uint64(data[5:13])),
	}

	payload := data[UDPHeaderSize:]
	switch pkt.Type {
	case UDPPacketButton, UDPPacketAirMotion:
		if len(payload) < 1 {
			return nil, errors.New("udp: event payload too short")
		}
		count := int(payload[0])
		if len(payload) < 1+4*count {
			return nil, errors.New("udp: event values truncated")
		}
		pkt.Values = make([]float32, count)
		for i := range pkt.Values {
			pkt.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[1+4*i : 5+4*i]))
		}
	case UDPPacketRegister, UDPPacketHeartbeat, UDPPacketAck:
		// no payload
	default:
		return nil, errors.New("udp: unknown packet type")
	}

	return pkt, nil
}
