// Package transport carries opaque packets between peer endpoints. The
// session layer treats it as a swappable collaborator: it never interprets
// message semantics, only moves envelopes.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// ErrClosed is returned by Conn operations after either end hangs up.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a single bidirectional packet stream to one peer.
type Conn interface {
	// PeerID returns the normalized endpoint identifier of the remote side.
	PeerID() string
	// Send transmits one packet. Fire-and-forget; FIFO within the conn.
	Send(pkt *models.Packet) error
	// Recv blocks for the next inbound packet, returning ErrClosed (or a
	// wrapped transport error) once the stream ends.
	Recv() (*models.Packet, error)
	Close() error
}

// Transport owns a local endpoint: it accepts inbound conns and dials
// outbound ones.
type Transport interface {
	// Open registers the local endpoint and starts delivering inbound conns
	// to accept. Calling Open twice is an error; idempotence lives in the
	// session manager.
	Open(ctx context.Context, localID string, accept func(Conn)) error
	// Dial opens an outbound conn to the peer with the given id.
	Dial(ctx context.Context, peerID string) (Conn, error)
	Close() error
}

// Resolver maps a contact id to a dialable transport address.
type Resolver interface {
	Resolve(peerID string) (string, error)
}

// StaticResolver resolves peers from a fixed directory, the shape produced by
// config.Load from PEER_DIRECTORY.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (r StaticResolver) Resolve(peerID string) (string, error) {
	addr, ok := r[peerID]
	if !ok {
		return "", fmt.Errorf("transport: no address known for peer %q", peerID)
	}
	return addr, nil
}
