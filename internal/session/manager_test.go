package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/transport"
)

func testProfile(id, name string) ProfileFunc {
	return func(string) models.UserProfile {
		return models.UserProfile{ID: id, Name: name}
	}
}

// newPair wires two managers over one in-process fabric and initializes both.
func newPair(t *testing.T) (*Manager, *Manager) {
	t.Helper()
	net := transport.NewPipeNet()
	a := NewManager(net.Transport(), zerolog.Nop())
	b := NewManager(net.Transport(), zerolog.Nop())

	if err := a.Initialize(context.Background(), "alice", testProfile("alice", "Alice")); err != nil {
		t.Fatal(err)
	}
	if err := b.Initialize(context.Background(), "bob", testProfile("bob", "Bob")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Disconnect)
	t.Cleanup(b.Disconnect)
	return a, b
}

func waitEvent(t *testing.T, m *Manager, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestConnectOpensSessionAndHandshakes(t *testing.T) {
	a, b := newPair(t)

	a.Connect(context.Background(), "bob")

	ev := waitEvent(t, a, EventOpen)
	if ev.PeerID != "bob" {
		t.Fatalf("expected open event for bob, got %q", ev.PeerID)
	}
	if !a.IsConnected("bob") {
		t.Fatal("alice should see bob as connected")
	}

	// Bob receives alice's handshake, uninterpreted.
	ev = waitEvent(t, b, EventPacket)
	if ev.PeerID != "alice" || ev.Packet.Kind != models.PacketHandshake {
		t.Fatalf("expected handshake from alice, got %+v", ev)
	}
	if ev.Packet.SenderProfile.Name != "Alice" {
		t.Fatalf("handshake should carry the sender profile, got %+v", ev.Packet.SenderProfile)
	}
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	a, _ := newPair(t)

	a.Connect(context.Background(), "bob")
	waitEvent(t, a, EventOpen)

	a.Connect(context.Background(), "bob")
	a.Connect(context.Background(), "bob")

	if n := a.ActiveSessions(); n != 1 {
		t.Fatalf("expected 1 session for bob, got %d", n)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	a, _ := newPair(t)
	if err := a.Initialize(context.Background(), "alice", testProfile("alice", "Alice")); err != nil {
		t.Fatalf("second initialize should be a no-op, got %v", err)
	}
}

func TestSendWhileOpenDelivers(t *testing.T) {
	a, b := newPair(t)
	a.Connect(context.Background(), "bob")
	waitEvent(t, a, EventOpen)

	pkt, err := models.NewMessagePacket(models.UserProfile{ID: "alice"}, models.MessagePayload{
		Text:        "hello",
		ContentType: models.ContentText,
		PersonaName: "Work",
	})
	if err != nil {
		t.Fatal(err)
	}
	a.Send(context.Background(), "bob", pkt)

	for {
		ev := waitEvent(t, b, EventPacket)
		if ev.Packet.Kind != models.PacketMessage {
			continue // skip the handshake
		}
		payload, err := ev.Packet.DecodeMessage()
		if err != nil {
			t.Fatal(err)
		}
		if payload.Text != "hello" || payload.PersonaName != "Work" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
		return
	}
}

func TestSendWithoutSessionDropsAndReconnects(t *testing.T) {
	a, _ := newPair(t)

	pkt, _ := models.NewMessagePacket(models.UserProfile{ID: "alice"}, models.MessagePayload{Text: "lost"})
	a.Send(context.Background(), "bob", pkt)

	// The packet is gone, but a session comes up as best-effort recovery.
	waitEvent(t, a, EventOpen)
	if !a.IsConnected("bob") {
		t.Fatal("send should have triggered a reconnect")
	}
}

func TestDialFailureClearsSession(t *testing.T) {
	net := transport.NewPipeNet()
	a := NewManager(net.Transport(), zerolog.Nop())
	if err := a.Initialize(context.Background(), "alice", testProfile("alice", "Alice")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Disconnect)

	a.Connect(context.Background(), "ghost")

	deadline := time.After(2 * time.Second)
	for a.ActiveSessions() != 0 {
		select {
		case <-deadline:
			t.Fatal("failed dial should clear the session entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if a.State("ghost") != StateNone {
		t.Fatalf("expected no session, got %v", a.State("ghost"))
	}
}

func TestPeerCloseEmitsClosedAndClearsSession(t *testing.T) {
	a, b := newPair(t)
	a.Connect(context.Background(), "bob")
	waitEvent(t, a, EventOpen)
	waitEvent(t, b, EventOpen)

	b.Disconnect()

	ev := waitEvent(t, a, EventClosed)
	if ev.PeerID != "bob" {
		t.Fatalf("expected closed event for bob, got %q", ev.PeerID)
	}
	if a.IsConnected("bob") {
		t.Fatal("session should be gone after remote hang-up")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	a, _ := newPair(t)
	a.Disconnect()
	a.Disconnect()
}
