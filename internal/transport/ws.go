package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// PeerHeader carries the dialer's endpoint identifier on the upgrade request.
const PeerHeader = "X-Polychat-Peer"

// WS is the websocket transport. The local endpoint is an HTTP listener with
// a single upgrade route; outbound conns are dialed through a Resolver.
type WS struct {
	addr     string
	resolver Resolver
	log      zerolog.Logger

	mu      sync.Mutex
	localID string
	ln      net.Listener
	srv     *http.Server
	closed  bool
}

// NewWS creates a websocket transport listening on addr.
func NewWS(addr string, resolver Resolver, logger zerolog.Logger) *WS {
	return &WS{
		addr:     addr,
		resolver: resolver,
		log:      logger.With().Str("component", "transport").Logger(),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are other nodes, not browsers; no origin policy applies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Open implements Transport. It binds the listener and serves upgrade
// requests until Close.
func (t *WS) Open(ctx context.Context, localID string, accept func(Conn)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return ErrClosed
	}

	t.localID = models.NormalizeID(localID)

	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(t.log))
	r.Use(chimw.Recoverer)

	r.Get("/peer", func(w http.ResponseWriter, req *http.Request) {
		t.handlePeer(w, req, accept)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.ln = ln
	t.srv = &http.Server{
		Handler:      r,
		ReadTimeout:  0, // websocket conns are long-lived
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := t.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.log.Error().Err(err).Msg("transport listener failed")
		}
	}()

	t.log.Info().Str("addr", ln.Addr().String()).Str("local_id", t.localID).Msg("transport listening")
	return nil
}

func (t *WS) handlePeer(w http.ResponseWriter, req *http.Request, accept func(Conn)) {
	peerID := models.NormalizeID(req.Header.Get(PeerHeader))
	if peerID == "" {
		peerID = models.NormalizeID(req.URL.Query().Get("peer"))
	}
	if peerID == "" {
		http.Error(w, "missing peer identifier", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		t.log.Error().Err(err).Str("peer", peerID).Msg("upgrade failed")
		return
	}

	accept(newWSConn(peerID, ws))
}

// Dial implements Transport.
func (t *WS) Dial(ctx context.Context, peerID string) (Conn, error) {
	peerID = models.NormalizeID(peerID)
	addr, err := t.resolver.Resolve(peerID)
	if err != nil {
		return nil, err
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/peer"}
	header := http.Header{}
	header.Set(PeerHeader, t.localID)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return newWSConn(peerID, ws), nil
}

// Addr returns the bound listener address, useful when addr was ":0".
func (t *WS) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

// Close implements Transport. Idempotent.
func (t *WS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.srv == nil {
		t.closed = true
		return nil
	}
	t.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.srv.Shutdown(ctx)
}

// wsConn adapts a gorilla websocket connection to the Conn interface.
type wsConn struct {
	peerID  string
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

func newWSConn(peerID string, ws *websocket.Conn) *wsConn {
	return &wsConn{peerID: peerID, ws: ws}
}

func (c *wsConn) PeerID() string { return c.peerID }

// writeWait bounds each write so one stalled peer stream cannot block the
// single event loop driving all sessions.
const writeWait = 5 * time.Second

func (c *wsConn) Send(pkt *models.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(pkt); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *wsConn) Recv() (*models.Packet, error) {
	var pkt models.Packet
	if err := c.ws.ReadJSON(&pkt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return &pkt, nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
