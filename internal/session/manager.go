// Package session maintains one logical connection per remote contact. The
// manager is deliberately dumb about message semantics: it performs the
// handshake, tracks per-peer session state, and hands every inbound packet to
// a single consumer untouched. Routing intelligence lives elsewhere.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/metrics"
	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/transport"
)

// State is the local view of a peer session. It says nothing about confirmed
// liveness.
type State string

const (
	StateNone       State = "none"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

// EventKind tags manager events.
type EventKind int

const (
	// EventOpen fires after a session reached open and the handshake was sent.
	EventOpen EventKind = iota
	// EventPacket carries one inbound packet, uninterpreted.
	EventPacket
	// EventClosed fires when a session ends, by hang-up or transport error.
	EventClosed
)

// Event is delivered to the single consumer returned by Events. Serializing
// all session activity through one channel is what keeps per-contact message
// ordering intact.
type Event struct {
	Kind   EventKind
	PeerID string
	Packet *models.Packet
}

// ProfileFunc supplies the handshake profile for a given peer, letting the
// caller apply mood visibility per recipient.
type ProfileFunc func(peerID string) models.UserProfile

// Manager owns the peer transport and at most one session per contact id.
type Manager struct {
	tr     transport.Transport
	log    zerolog.Logger
	events chan Event
	done   chan struct{}
	stop   sync.Once

	mu          sync.Mutex
	initialized bool
	localID     string
	profile     ProfileFunc
	sessions    map[string]*peerSession
}

type peerSession struct {
	state State
	conn  transport.Conn
}

// NewManager creates a manager over the given transport.
func NewManager(tr transport.Transport, logger zerolog.Logger) *Manager {
	return &Manager{
		tr:       tr,
		log:      logger.With().Str("component", "session").Logger(),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		sessions: map[string]*peerSession{},
	}
}

// Events returns the single-consumer event stream.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Initialize registers the local endpoint and starts accepting inbound
// sessions. A second call while already initialized is a no-op.
func (m *Manager) Initialize(ctx context.Context, localID string, profile ProfileFunc) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.localID = models.NormalizeID(localID)
	m.profile = profile
	m.initialized = true
	m.mu.Unlock()

	if err := m.tr.Open(ctx, m.localID, func(conn transport.Conn) {
		m.adopt(conn, "inbound")
	}); err != nil {
		m.mu.Lock()
		m.initialized = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// Connect opens an outbound session unless one is already open or connecting.
// Dialing happens off the caller's goroutine.
func (m *Manager) Connect(ctx context.Context, peerID string) {
	peerID = models.NormalizeID(peerID)

	m.mu.Lock()
	if !m.initialized || peerID == "" || peerID == m.localID {
		m.mu.Unlock()
		return
	}
	if s, ok := m.sessions[peerID]; ok && (s.state == StateOpen || s.state == StateConnecting) {
		m.mu.Unlock()
		return
	}
	m.sessions[peerID] = &peerSession{state: StateConnecting}
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	go func() {
		conn, err := m.tr.Dial(ctx, peerID)
		if err != nil {
			m.mu.Lock()
			delete(m.sessions, peerID)
			m.mu.Unlock()
			metrics.SessionsActive.Dec()
			m.log.Warn().Err(err).Str("peer", peerID).Msg("dial failed")
			return
		}
		m.adopt(conn, "outbound")
	}()
}

// adopt installs a conn as the peer's open session, sends the handshake and
// signals open. Used by both inbound accepts and successful dials.
func (m *Manager) adopt(conn transport.Conn, direction string) {
	peerID := conn.PeerID()

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	prev, existed := m.sessions[peerID]
	m.sessions[peerID] = &peerSession{state: StateOpen, conn: conn}
	profile := m.profile
	m.mu.Unlock()

	if existed && prev.conn != nil {
		// At most one logical channel per contact: the newer conn wins.
		_ = prev.conn.Close()
	}
	if !existed {
		metrics.SessionsActive.Inc()
	}
	metrics.SessionsOpened.WithLabelValues(direction).Inc()

	// Handshake carries the local profile, mood filtered per recipient.
	if pkt, err := models.NewHandshakePacket(profile(peerID)); err == nil {
		if err := conn.Send(pkt); err != nil {
			m.log.Error().Err(err).Str("peer", peerID).Msg("handshake send failed")
		} else {
			metrics.HandshakesSent.Inc()
		}
	}

	m.log.Info().Str("peer", peerID).Str("direction", direction).Msg("session open")
	m.emit(Event{Kind: EventOpen, PeerID: peerID})

	go m.readLoop(peerID, conn)
}

func (m *Manager) readLoop(peerID string, conn transport.Conn) {
	for {
		pkt, err := conn.Recv()
		if err != nil {
			break
		}
		m.emit(Event{Kind: EventPacket, PeerID: peerID, Packet: pkt})
	}

	m.mu.Lock()
	s, ok := m.sessions[peerID]
	if ok && s.conn == conn {
		delete(m.sessions, peerID)
	} else {
		// This conn was already replaced; nothing to report.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	metrics.SessionsActive.Dec()
	_ = conn.Close()
	m.log.Info().Str("peer", peerID).Msg("session closed")
	m.emit(Event{Kind: EventClosed, PeerID: peerID})
}

// Send transmits a packet if the peer's session is open. Otherwise the packet
// is dropped and a reconnect is kicked off: at-most-once, no retry queue.
func (m *Manager) Send(ctx context.Context, peerID string, pkt *models.Packet) {
	peerID = models.NormalizeID(peerID)

	m.mu.Lock()
	s, ok := m.sessions[peerID]
	if ok && s.state == StateOpen {
		conn := s.conn
		m.mu.Unlock()
		if err := conn.Send(pkt); err != nil {
			m.log.Error().Err(err).Str("peer", peerID).Msg("send failed")
		}
		return
	}
	m.mu.Unlock()

	metrics.PacketsDropped.Inc()
	m.log.Warn().Str("peer", peerID).Msg("session not open, dropping packet and reconnecting")
	m.Connect(ctx, peerID)
}

// IsConnected reports whether the local view of the peer's session is open.
func (m *Manager) IsConnected(peerID string) bool {
	return m.State(peerID) == StateOpen
}

// State returns the local session state for a peer.
func (m *Manager) State(peerID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[models.NormalizeID(peerID)]
	if !ok {
		return StateNone
	}
	return s.state
}

// ActiveSessions returns the number of sessions currently open or connecting.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Disconnect tears down the local endpoint and all sessions. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = false
	conns := make([]transport.Conn, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	m.sessions = map[string]*peerSession{}
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	_ = m.tr.Close()
	m.stop.Do(func() { close(m.done) })
	metrics.SessionsActive.Set(0)
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}
