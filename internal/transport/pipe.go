package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// PipeNet is an in-process transport fabric: every endpoint lives in the same
// process and conns are channel pairs. It exists so the session and dispatch
// layers can be exercised without sockets.
type PipeNet struct {
	mu        sync.Mutex
	endpoints map[string]*PipeTransport
}

// NewPipeNet creates an empty fabric.
func NewPipeNet() *PipeNet {
	return &PipeNet{endpoints: map[string]*PipeTransport{}}
}

// Transport returns a new unopened endpoint on this fabric.
func (n *PipeNet) Transport() *PipeTransport {
	return &PipeTransport{net: n}
}

// PipeTransport implements Transport over the fabric.
type PipeTransport struct {
	net *PipeNet

	mu      sync.Mutex
	localID string
	accept  func(Conn)
	open    bool
}

// Open implements Transport.
func (t *PipeTransport) Open(_ context.Context, localID string, accept func(Conn)) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return fmt.Errorf("pipe: endpoint %q already open", t.localID)
	}
	localID = models.NormalizeID(localID)
	if _, taken := t.net.endpoints[localID]; taken {
		return fmt.Errorf("pipe: endpoint id %q already registered", localID)
	}
	t.localID = localID
	t.accept = accept
	t.open = true
	t.net.endpoints[localID] = t
	return nil
}

// Dial implements Transport.
func (t *PipeTransport) Dial(_ context.Context, peerID string) (Conn, error) {
	peerID = models.NormalizeID(peerID)

	t.net.mu.Lock()
	remote, ok := t.net.endpoints[peerID]
	t.net.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pipe: peer %q unreachable", peerID)
	}

	remote.mu.Lock()
	accept := remote.accept
	open := remote.open
	remote.mu.Unlock()
	if !open {
		return nil, fmt.Errorf("pipe: peer %q unreachable", peerID)
	}

	done := make(chan struct{})
	closeOnce := &sync.Once{}
	aToB := make(chan *models.Packet, 16)
	bToA := make(chan *models.Packet, 16)

	local := &pipeConn{peer: peerID, in: bToA, out: aToB, done: done, once: closeOnce}
	far := &pipeConn{peer: t.localID, in: aToB, out: bToA, done: done, once: closeOnce}

	go accept(far)
	return local, nil
}

// Close implements Transport.
func (t *PipeTransport) Close() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		delete(t.net.endpoints, t.localID)
		t.open = false
	}
	return nil
}

type pipeConn struct {
	peer string
	in   chan *models.Packet
	out  chan *models.Packet
	done chan struct{}
	once *sync.Once // shared by both ends; either side's Close hangs up the pair
}

func (c *pipeConn) PeerID() string { return c.peer }

func (c *pipeConn) Send(pkt *models.Packet) error {
	// Check done first: the buffered out channel may still have space after
	// hang-up, and a two-way select would pick between them at random.
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- pkt:
		return nil
	}
}

func (c *pipeConn) Recv() (*models.Packet, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	case pkt := <-c.in:
		return pkt, nil
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
