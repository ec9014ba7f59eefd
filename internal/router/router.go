// Package router turns inbound session events into roster mutations. It is
// the only consumer of the wire packet semantics: the session layer below it
// moves envelopes, the roster above it holds state.
package router

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/metrics"
	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/roster"
)

// Router applies inbound packets to the roster. Malformed or unknown input
// from remote peers is never an error; it is logged, counted and dropped.
type Router struct {
	roster *roster.Roster
	log    zerolog.Logger
}

// New creates a router over the given roster.
func New(r *roster.Roster, logger zerolog.Logger) *Router {
	return &Router{
		roster: r,
		log:    logger.With().Str("component", "router").Logger(),
	}
}

// HandleOpen marks a contact online once its session reached open.
func (r *Router) HandleOpen(peerID string) {
	r.roster.SetOnline(peerID, true)
}

// HandleClosed marks a contact offline after its session ended.
func (r *Router) HandleClosed(peerID string) {
	r.roster.SetOnline(peerID, false)
}

// HandlePacket routes one inbound packet from peerID.
func (r *Router) HandlePacket(peerID string, pkt *models.Packet) {
	switch pkt.Kind {
	case models.PacketHandshake:
		r.handleHandshake(peerID, pkt)
	case models.PacketMessage:
		r.handleMessage(peerID, pkt)
	case models.PacketStatus:
		r.handleStatus(peerID, pkt)
	default:
		// Forward-compatible no-op.
		metrics.UnknownPackets.Inc()
		r.log.Debug().Str("peer", peerID).Str("kind", string(pkt.Kind)).Msg("ignoring unknown packet kind")
		return
	}
	metrics.PacketsRouted.WithLabelValues(string(pkt.Kind)).Inc()
}

// handleHandshake marks a known contact online, refreshing its cached display
// fields, or auto-adds a new contact from the sender profile.
func (r *Router) handleHandshake(peerID string, pkt *models.Packet) {
	if c := r.roster.Contact(peerID); c != nil {
		r.roster.SetOnline(peerID, true)
		r.roster.UpdateProfile(peerID, pkt.SenderProfile)
		return
	}

	c, _ := r.roster.RouteOrCreate(peerID, pkt.SenderProfile, "")
	r.roster.SetMood(peerID, pkt.SenderProfile.Mood)
	metrics.ContactsAutoCreated.Inc()
	r.log.Info().Str("peer", peerID).Str("name", c.DisplayName).Msg("contact auto-added on handshake")
}

// handleMessage appends an inbound message to the persona the sender declared,
// synthesizing the contact first if the handshake never arrived.
func (r *Router) handleMessage(peerID string, pkt *models.Packet) {
	payload, err := pkt.DecodeMessage()
	if err != nil {
		r.log.Warn().Err(err).Str("peer", peerID).Msg("dropping malformed message payload")
		return
	}

	known := r.roster.Contact(peerID) != nil
	contact, persona := r.roster.RouteOrCreate(peerID, pkt.SenderProfile, payload.PersonaName)
	if !known {
		metrics.ContactsAutoCreated.Inc()
		r.log.Info().Str("peer", peerID).Msg("contact synthesized for orphan message")
	}

	msg := models.Message{
		ID:            models.NewMessageID(),
		Role:          models.RoleRemotePeer,
		ContentType:   payload.ContentType,
		Payload:       payload.Text,
		SenderPersona: payload.PersonaName,
		SentAt:        time.Now().UnixMilli(),
		ReplyTo:       payload.ReplyTo,
	}
	if err := r.roster.AppendMessage(contact.ID, persona.ID, msg); err != nil {
		// RouteOrCreate just resolved both; this indicates a bug, not bad input.
		r.log.Error().Err(err).Str("peer", peerID).Msg("append after route failed")
		return
	}
	metrics.MessagesSent.WithLabelValues(string(models.RoleRemotePeer)).Inc()
}

// handleStatus refreshes mood and presence for a known contact. Status from
// strangers is ignored; a handshake or message creates the record first.
func (r *Router) handleStatus(peerID string, pkt *models.Packet) {
	payload, err := pkt.DecodeStatus()
	if err != nil {
		r.log.Warn().Err(err).Str("peer", peerID).Msg("dropping malformed status payload")
		return
	}
	if r.roster.Contact(peerID) == nil {
		return
	}
	r.roster.SetOnline(peerID, payload.Online)
	r.roster.SetMood(peerID, payload.Mood)
}
