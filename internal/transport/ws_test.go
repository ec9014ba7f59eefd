package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// startWS opens a websocket endpoint on an ephemeral port and registers its
// listen address in the shared resolver map.
func startWS(t *testing.T, peers StaticResolver, localID string) (*WS, <-chan Conn) {
	t.Helper()
	ws := NewWS("127.0.0.1:0", peers, zerolog.Nop())
	inbound := make(chan Conn, 4)
	if err := ws.Open(context.Background(), localID, func(c Conn) { inbound <- c }); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	peers[localID] = ws.Addr()
	return ws, inbound
}

func recvConn(t *testing.T, ch <-chan Conn) Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound conn")
		return nil
	}
}

func TestWSDialAndExchange(t *testing.T) {
	peers := StaticResolver{}
	alice, _ := startWS(t, peers, "alice")
	_, bobInbound := startWS(t, peers, "bob")

	conn, err := alice.Dial(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if conn.PeerID() != "bob" {
		t.Fatalf("dialer should see the remote id, got %q", conn.PeerID())
	}

	bobConn := recvConn(t, bobInbound)
	defer bobConn.Close()
	if bobConn.PeerID() != "alice" {
		t.Fatalf("acceptor should learn the dialer id from the header, got %q", bobConn.PeerID())
	}

	pkt, err := models.NewMessagePacket(models.UserProfile{ID: "alice"}, models.MessagePayload{Text: "over the wire"})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Send(pkt); err != nil {
		t.Fatal(err)
	}

	got, err := bobConn.Recv()
	if err != nil {
		t.Fatal(err)
	}
	payload, err := got.DecodeMessage()
	if err != nil {
		t.Fatal(err)
	}
	if payload.Text != "over the wire" || payload.ContentType != models.ContentText {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// Replies flow back on the same conn.
	reply, err := models.NewMessagePacket(models.UserProfile{ID: "bob"}, models.MessagePayload{Text: "ack"})
	if err != nil {
		t.Fatal(err)
	}
	if err := bobConn.Send(reply); err != nil {
		t.Fatal(err)
	}
	if got, err := conn.Recv(); err != nil || got.Kind != models.PacketMessage {
		t.Fatalf("reply not received: %v %+v", err, got)
	}
}

func TestWSDialUnknownPeer(t *testing.T) {
	peers := StaticResolver{}
	alice, _ := startWS(t, peers, "alice")

	if _, err := alice.Dial(context.Background(), "stranger"); err == nil {
		t.Fatal("dialing an unresolvable peer must fail")
	}
}

func TestWSRecvAfterRemoteClose(t *testing.T) {
	peers := StaticResolver{}
	alice, _ := startWS(t, peers, "alice")
	_, bobInbound := startWS(t, peers, "bob")

	conn, err := alice.Dial(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	bobConn := recvConn(t, bobInbound)

	_ = conn.Close()
	_, err = bobConn.Recv()
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("recv after remote hang-up should wrap ErrClosed, got %v", err)
	}
	if err.Error() == ErrClosed.Error() {
		t.Fatal("recv error should carry the underlying websocket cause")
	}

	// Writes to the dead conn fail the same way once the deadline fires.
	pkt, perr := models.NewHandshakePacket(models.UserProfile{ID: "bob"})
	if perr != nil {
		t.Fatal(perr)
	}
	deadline := time.After(2 * writeWait)
	for {
		if serr := bobConn.Send(pkt); serr != nil {
			if !errors.Is(serr, ErrClosed) {
				t.Fatalf("send after remote hang-up should wrap ErrClosed, got %v", serr)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("send to a hung-up conn never failed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWSCloseIdempotent(t *testing.T) {
	peers := StaticResolver{}
	ws, _ := startWS(t, peers, "alice")
	if err := ws.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ws.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPipeExchangeAndClose(t *testing.T) {
	net := NewPipeNet()
	a := net.Transport()
	b := net.Transport()

	if err := a.Open(context.Background(), "alice", func(Conn) {}); err != nil {
		t.Fatal(err)
	}
	inbound := make(chan Conn, 1)
	if err := b.Open(context.Background(), "bob", func(c Conn) { inbound <- c }); err != nil {
		t.Fatal(err)
	}

	conn, err := a.Dial(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	far := <-inbound

	pkt, _ := models.NewHandshakePacket(models.UserProfile{ID: "alice"})
	if err := conn.Send(pkt); err != nil {
		t.Fatal(err)
	}
	if got, err := far.Recv(); err != nil || got.Kind != models.PacketHandshake {
		t.Fatalf("pipe recv: %v %+v", err, got)
	}

	// Closing either end hangs up both. The buffered channel may still have
	// space, so repeat: every send after hang-up must fail.
	_ = far.Close()
	for i := 0; i < 5; i++ {
		if err := conn.Send(pkt); !errors.Is(err, ErrClosed) {
			t.Fatalf("send %d on closed pipe: %v", i, err)
		}
	}
	_ = conn.Close()
}

func TestPipeEndpointIDsAreExclusive(t *testing.T) {
	net := NewPipeNet()
	a := net.Transport()
	b := net.Transport()

	if err := a.Open(context.Background(), "alice", func(Conn) {}); err != nil {
		t.Fatal(err)
	}
	if err := b.Open(context.Background(), "alice", func(Conn) {}); err == nil {
		t.Fatal("second endpoint with the same id must be rejected")
	}
}
