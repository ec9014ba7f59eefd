// Package dispatch is the single entry point for user intents and the
// sequential boundary every mutation crosses. One goroutine owns the roster:
// session events and facade calls are funneled into the same queue, which is
// what preserves per-contact message ordering without locks in the store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/metrics"
	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/roster"
	"github.com/normyan0809/Chat-in-different-roles/internal/router"
	"github.com/normyan0809/Chat-in-different-roles/internal/session"
)

// ErrStopped is returned by facade calls once the dispatcher loop has exited.
var ErrStopped = errors.New("dispatcher stopped")

// ErrNoActiveChat is returned when no contact or persona is selected.
var ErrNoActiveChat = errors.New("no active contact or persona")

// Responder generates scripted replies for the built-in agent contact.
type Responder interface {
	Generate(ctx context.Context, personaDescription string, transcript []models.Message, newMessage models.Message, mood *models.Mood) (string, error)
	DescribePersona(ctx context.Context, title string) (string, error)
}

// Saver persists the per-user state document after each mutation batch.
type Saver interface {
	SaveState(ctx context.Context, userID string, st *models.State) error
}

// PeerSessions is the slice of the session manager the dispatcher drives.
type PeerSessions interface {
	Connect(ctx context.Context, peerID string)
	Send(ctx context.Context, peerID string, pkt *models.Packet)
}

// FallbackReply is shown when the responder fails; AI errors never surface.
const FallbackReply = "I'm having trouble connecting right now. Let's try again in a moment."

// Dispatcher owns UI state (selected contact, active persona per contact) and
// coordinates roster mutations with transport and responder side effects.
type Dispatcher struct {
	log      zerolog.Logger
	roster   *roster.Roster
	router   *router.Router
	sessions PeerSessions
	agent    Responder
	saver    Saver
	events   <-chan session.Event

	profileMu sync.RWMutex
	profile   models.UserProfile

	intents chan func()
	stopped chan struct{}
	stop    sync.Once

	selectedContact string
	activePersona   map[string]string // contact id -> persona id
}

// New wires a dispatcher. Run must be started before facade calls are made.
func New(
	profile models.UserProfile,
	rs *roster.Roster,
	rt *router.Router,
	sessions PeerSessions,
	agent Responder,
	saver Saver,
	events <-chan session.Event,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		log:           logger.With().Str("component", "dispatch").Logger(),
		roster:        rs,
		router:        rt,
		sessions:      sessions,
		agent:         agent,
		saver:         saver,
		events:        events,
		profile:       profile,
		intents:       make(chan func(), 64),
		stopped:       make(chan struct{}),
		activePersona: map[string]string{},
	}
}

// Run consumes session events and facade intents until ctx is done. It is the
// only goroutine that touches the roster.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop.Do(func() { close(d.stopped) })

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.handleEvent(ctx, ev)
		case fn := <-d.intents:
			fn()
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev session.Event) {
	switch ev.Kind {
	case session.EventOpen:
		d.router.HandleOpen(ev.PeerID)
	case session.EventPacket:
		d.router.HandlePacket(ev.PeerID, ev.Packet)
	case session.EventClosed:
		d.router.HandleClosed(ev.PeerID)
	}
	d.save(ctx)
}

// do runs fn on the loop and waits for its result.
func (d *Dispatcher) do(fn func() error) error {
	done := make(chan error, 1)
	select {
	case d.intents <- func() { done <- fn() }:
	case <-d.stopped:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-d.stopped:
		return ErrStopped
	}
}

// post enqueues fn without waiting. Used by completions arriving from
// responder goroutines.
func (d *Dispatcher) post(fn func()) {
	select {
	case d.intents <- fn:
	case <-d.stopped:
	}
}

func (d *Dispatcher) save(ctx context.Context) {
	st := &models.State{Profile: d.Profile(), Contacts: d.roster.Contacts()}
	if err := d.saver.SaveState(ctx, d.roster.SelfID(), st); err != nil {
		d.log.Error().Err(err).Msg("state save failed")
	}
}

// Profile returns the local profile, safe to call from any goroutine.
func (d *Dispatcher) Profile() models.UserProfile {
	d.profileMu.RLock()
	defer d.profileMu.RUnlock()
	return d.profile
}

// HandshakeProfile supplies the session manager's handshake payload, applying
// the mood visibility policy per recipient.
func (d *Dispatcher) HandshakeProfile(peerID string) models.UserProfile {
	return d.Profile().ForContact(peerID)
}

// Contacts returns a snapshot of the contact set.
func (d *Dispatcher) Contacts() ([]models.Contact, error) {
	var out []models.Contact
	err := d.do(func() error {
		out = d.roster.Contacts()
		return nil
	})
	return out, err
}

// SelectContact makes a contact active and warms up its peer channel.
func (d *Dispatcher) SelectContact(ctx context.Context, contactID string) error {
	var warm string
	err := d.do(func() error {
		c := d.roster.Contact(contactID)
		if c == nil {
			return fmt.Errorf("%w: %s", roster.ErrUnknownContact, contactID)
		}
		d.selectedContact = c.ID
		if _, ok := d.activePersona[c.ID]; !ok {
			d.activePersona[c.ID] = c.Personas[0].ID
		}
		if !c.IsAgent {
			warm = c.ID
		}
		return nil
	})
	if err == nil && warm != "" {
		d.sessions.Connect(ctx, warm)
	}
	return err
}

// SelectPersona switches the active persona for a contact.
func (d *Dispatcher) SelectPersona(contactID, personaID string) error {
	return d.do(func() error {
		c := d.roster.Contact(contactID)
		if c == nil {
			return fmt.Errorf("%w: %s", roster.ErrUnknownContact, contactID)
		}
		for _, p := range c.Personas {
			if p.ID == personaID {
				d.activePersona[c.ID] = personaID
				return nil
			}
		}
		return fmt.Errorf("%w: %s", roster.ErrUnknownPersona, personaID)
	})
}

// AddContact registers a peer contact, selects it and dials it immediately.
func (d *Dispatcher) AddContact(ctx context.Context, id, displayName, avatarRef string) (models.Contact, error) {
	var out models.Contact
	err := d.do(func() error {
		c, err := d.roster.AddContact(id, displayName, avatarRef)
		if err != nil {
			return err
		}
		out = c
		d.selectedContact = c.ID
		d.activePersona[c.ID] = c.Personas[0].ID
		d.save(ctx)
		return nil
	})
	if err != nil {
		return models.Contact{}, err
	}
	d.sessions.Connect(ctx, out.ID)
	return out, nil
}

// AddPersona appends a conversation context to a contact. When no description
// is given, the agent contact gets a generated one and peers a plain default.
func (d *Dispatcher) AddPersona(ctx context.Context, contactID, name, description, colorTag string) (models.Persona, error) {
	if description == "" {
		var isAgent bool
		if err := d.do(func() error {
			c := d.roster.Contact(contactID)
			if c == nil {
				return fmt.Errorf("%w: %s", roster.ErrUnknownContact, contactID)
			}
			isAgent = c.IsAgent
			return nil
		}); err != nil {
			return models.Persona{}, err
		}

		if isAgent && d.agent != nil {
			generated, err := d.agent.DescribePersona(ctx, name)
			if err != nil {
				d.log.Warn().Err(err).Str("persona", name).Msg("persona description generation failed")
				generated = fmt.Sprintf("You are acting as: %s. Stay in character.", name)
			}
			description = generated
		} else {
			description = fmt.Sprintf("Chat context: %s", name)
		}
	}

	var out models.Persona
	err := d.do(func() error {
		p, err := d.roster.AddPersona(contactID, name, description, colorTag)
		if err != nil {
			return err
		}
		out = p
		d.activePersona[models.NormalizeID(contactID)] = p.ID
		d.save(ctx)
		return nil
	})
	if err != nil {
		return models.Persona{}, err
	}
	return out, nil
}

// DeletePersona removes a persona, keeping the active selection valid.
func (d *Dispatcher) DeletePersona(ctx context.Context, contactID, personaID string) error {
	return d.do(func() error {
		if err := d.roster.DeletePersona(contactID, personaID); err != nil {
			return err
		}
		c := d.roster.Contact(contactID)
		if d.activePersona[c.ID] == personaID {
			d.activePersona[c.ID] = c.Personas[0].ID
		}
		d.save(ctx)
		return nil
	})
}

// RecallMessage flips the recalled flag on a message in the active chat.
// Local-only: the recall does not propagate to the peer.
func (d *Dispatcher) RecallMessage(ctx context.Context, messageID string) error {
	return d.do(func() error {
		contactID, personaID, err := d.active()
		if err != nil {
			return err
		}
		d.roster.MarkRecalled(contactID, personaID, messageID)
		d.save(ctx)
		return nil
	})
}

// MarkRead flips the read flag on a message in the active chat.
func (d *Dispatcher) MarkRead(ctx context.Context, messageID string) error {
	return d.do(func() error {
		contactID, personaID, err := d.active()
		if err != nil {
			return err
		}
		d.roster.MarkRead(contactID, personaID, messageID)
		d.save(ctx)
		return nil
	})
}

// SetMood updates the local status and broadcasts it to online peer contacts
// allowed to see it.
func (d *Dispatcher) SetMood(ctx context.Context, mood *models.Mood) error {
	d.profileMu.Lock()
	d.profile.Mood = mood
	profile := d.profile
	d.profileMu.Unlock()

	return d.do(func() error {
		for _, c := range d.roster.Contacts() {
			if c.IsAgent || !c.IsOnline || !mood.VisibleTo(c.ID) {
				continue
			}
			pkt, err := models.NewStatusPacket(profile.ForContact(c.ID), models.StatusPayload{
				Mood:   mood,
				Online: true,
			})
			if err != nil {
				continue
			}
			d.sessions.Send(ctx, c.ID, pkt)
		}
		d.save(ctx)
		return nil
	})
}

func (d *Dispatcher) active() (contactID, personaID string, err error) {
	if d.selectedContact == "" {
		return "", "", ErrNoActiveChat
	}
	contactID = d.selectedContact
	personaID, ok := d.activePersona[contactID]
	if !ok {
		return "", "", ErrNoActiveChat
	}
	return contactID, personaID, nil
}

// SendMessage appends a self message to the active persona (optimistic: the
// local apply always succeeds even if delivery fails) and then either hands
// the turn to the scripted responder or ships a packet to the live peer.
func (d *Dispatcher) SendMessage(ctx context.Context, text string, contentType models.ContentType, replyTo *models.Message) (models.Message, error) {
	if contentType == "" {
		contentType = models.ContentText
	}

	var (
		msg     models.Message
		contact models.Contact
		persona models.Persona
	)
	err := d.do(func() error {
		contactID, personaID, err := d.active()
		if err != nil {
			return err
		}
		c := d.roster.Contact(contactID)
		msg = models.NewMessage(models.RoleSelf, contentType, text)
		if replyTo != nil {
			senderName := c.DisplayName
			if replyTo.Role == models.RoleSelf {
				senderName = d.Profile().Name
			}
			msg.ReplyTo = replyTo.Snapshot(senderName)
		}
		if err := d.roster.AppendMessage(contactID, personaID, msg); err != nil {
			return err
		}
		metrics.MessagesSent.WithLabelValues(string(models.RoleSelf)).Inc()

		contact = *d.roster.Contact(contactID)
		for _, p := range contact.Personas {
			if p.ID == personaID {
				persona = p
				break
			}
		}
		d.save(ctx)
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	if contact.IsAgent {
		d.askAgent(ctx, contact.ID, persona, msg)
	} else {
		payload := models.MessagePayload{
			Text:        msg.Payload,
			ContentType: msg.ContentType,
			PersonaName: persona.Name, // the identity tag the peer routes on
			ReplyTo:     msg.ReplyTo,
		}
		pkt, err := models.NewMessagePacket(d.HandshakeProfile(contact.ID), payload)
		if err != nil {
			return msg, err
		}
		d.sessions.Send(ctx, contact.ID, pkt)
	}
	return msg, nil
}

// askAgent runs the responder off-loop so other contacts' events keep flowing
// while one persona waits for its reply.
func (d *Dispatcher) askAgent(ctx context.Context, contactID string, persona models.Persona, userMsg models.Message) {
	mood := d.Profile().Mood

	go func() {
		reply := FallbackReply
		if d.agent != nil {
			text, err := d.agent.Generate(ctx, persona.Description, persona.Messages, userMsg, mood)
			if err != nil {
				metrics.AgentReplies.WithLabelValues("fallback").Inc()
				d.log.Warn().Err(err).Str("contact", contactID).Msg("responder failed, using fallback")
			} else {
				metrics.AgentReplies.WithLabelValues("ok").Inc()
				reply = text
			}
		} else {
			metrics.AgentReplies.WithLabelValues("fallback").Inc()
		}

		d.post(func() {
			aiMsg := models.NewMessage(models.RoleRemoteAI, models.ContentText, reply)
			aiMsg.IsRead = true
			if err := d.roster.AppendMessage(contactID, persona.ID, aiMsg); err != nil {
				d.log.Error().Err(err).Str("contact", contactID).Msg("agent reply append failed")
				return
			}
			// The agent has "seen" the user's message once it answered.
			d.roster.MarkRead(contactID, persona.ID, userMsg.ID)
			metrics.MessagesSent.WithLabelValues(string(models.RoleRemoteAI)).Inc()
			d.save(ctx)
		})
	}()
}
