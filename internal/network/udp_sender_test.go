package network

import (
	"testing"
	"time"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"
)

type delivered struct {
	unit spen.UnitType
	rec  spen.EventRecord
}

func startPair(t *testing.T) (*UDPSender, *UDPReceiver, chan delivered) {
	t.Helper()

	sender := NewUDPSender("127.0.0.1:0", nil)
	if err := sender.Start(); err != nil {
		t.Fatalf("sender Start: %v", err)
	}
	t.Cleanup(sender.Stop)

	got := make(chan delivered, 8)
	recv := NewUDPReceiver(sender.LocalAddr().String(), nil)
	recv.OnRecord = func(u spen.UnitType, rec spen.EventRecord) { got <- delivered{u, rec} }
	if err := recv.Start(3 * time.Second); err != nil {
		t.Fatalf("receiver Start: %v", err)
	}
	t.Cleanup(recv.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for sender.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return sender, recv, got
}

func TestUDPFanOutDeliversRecords(t *testing.T) {
	sender, _, got := startPair(t)

	sender.Publish(spen.UnitTypeAirMotion, spen.NewEventRecord(1000, 1.5, -2.0))

	select {
	case d := <-got:
		v := d.rec.Values()
		if d.unit != spen.UnitTypeAirMotion || d.rec.Timestamp() != 1000 || v[0] != 1.5 || v[1] != -2.0 {
			t.Errorf("unexpected delivery: %v %d %v", d.unit, d.rec.Timestamp(), v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestUDPFanOutDropsRedundantButtonCopies(t *testing.T) {
	sender, _, got := startPair(t)

	sender.Publish(spen.UnitTypeButton, spen.NewEventRecord(5, 0, 0))

	select {
	case d := <-got:
		if d.unit != spen.UnitTypeButton {
			t.Errorf("unit = %v, want button", d.unit)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}

	select {
	case d := <-got:
		t.Fatalf("duplicate delivered: %+v", d)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUDPSenderExpiresStaleSubscribers(t *testing.T) {
	sender, _, _ := startPair(t)

	var counts []int
	sender.OnSubscribersChanged = func(n int) { counts = append(counts, n) }
	sender.expire(time.Now().Add(2 * subscriberTimeout))

	if sender.Subscribers() != 0 {
		t.Fatalf("Subscribers = %d, want 0", sender.Subscribers())
	}
	if len(counts) != 1 || counts[0] != 0 {
		t.Errorf("OnSubscribersChanged calls = %v, want [0]", counts)
	}
}

func TestUDPReceiverWithoutBridge(t *testing.T) {
	sender := NewUDPSender("127.0.0.1:0", nil)
	if err := sender.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := sender.LocalAddr().String()
	sender.Stop()

	recv := NewUDPReceiver(addr, nil)
	if err := recv.Start(300 * time.Millisecond); err == nil {
		recv.Stop()
		t.Fatal("expected error without a bridge")
	}
}

func TestSeqDedup(t *testing.T) {
	d := newSeqDedup()
	if d.isDuplicate(7) {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.isDuplicate(7) {
		t.Fatal("second sighting not reported as duplicate")
	}
	for i := uint32(100); i < 100+uint32(len(d.ring)); i++ {
		d.isDuplicate(i)
	}
	if d.isDuplicate(7) {
		t.Fatal("evicted sequence still reported as duplicate")
	}
}

func TestPublishIgnoresUnknownUnit(t *testing.T) {
	sender, _, got := startPair(t)
	sender.Publish(spen.UnitType(9), spen.NewEventRecord(1, 0, 0))

	select {
	case d := <-got:
		t.Fatalf("unexpected delivery %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
	if _, ok := protocol.PacketTypeFor(spen.UnitType(9)); ok {
		t.Fatal("PacketTypeFor accepted unknown unit")
	}
}
