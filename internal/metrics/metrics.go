package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polychat_sessions_opened_total",
			Help: "Total peer sessions reaching the open state",
		},
		[]string{"direction"}, // "inbound" or "outbound"
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polychat_sessions_active",
			Help: "Peer sessions currently open or connecting",
		},
	)

	HandshakesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polychat_handshakes_sent_total",
			Help: "Total handshake packets emitted on session open",
		},
	)

	PacketsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polychat_packets_dropped_total",
			Help: "Outbound packets dropped because no session was open",
		},
	)

	// Routing metrics
	PacketsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polychat_packets_routed_total",
			Help: "Inbound packets applied by the router",
		},
		[]string{"kind"},
	)

	UnknownPackets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polychat_unknown_packets_total",
			Help: "Inbound packets with an unrecognized kind, ignored",
		},
	)

	ContactsAutoCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polychat_contacts_auto_created_total",
			Help: "Contacts synthesized from handshakes or orphan messages",
		},
	)

	// Message metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polychat_messages_sent_total",
			Help: "Messages appended locally",
		},
		[]string{"role"},
	)

	AgentReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polychat_agent_replies_total",
			Help: "Scripted responder replies",
		},
		[]string{"result"}, // "ok" or "fallback"
	)

	// Transport metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polychat_http_requests_total",
			Help: "Total HTTP requests on the transport listener",
		},
		[]string{"method", "path", "status"},
	)
)
