// Package roster holds the in-memory contact/persona/message model. All
// operations are pure transformations over the contact set; persistence is
// the caller's job. The roster itself is not safe for concurrent use — the
// dispatcher serializes every mutation onto one control flow.
package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// Roster owns the ordered contact set for one local user.
type Roster struct {
	selfID   string
	contacts []models.Contact
}

// New creates a roster for the given local actor ID.
func New(selfID string) *Roster {
	return &Roster{selfID: models.NormalizeID(selfID)}
}

// Load replaces the contact set with persisted state, resetting presence:
// online status is derived, never trusted from disk.
func (r *Roster) Load(contacts []models.Contact) {
	r.contacts = make([]models.Contact, len(contacts))
	for i, c := range contacts {
		cc := c.Clone()
		cc.IsOnline = c.IsAgent // the scripted agent is always reachable
		r.contacts[i] = cc
	}
}

// SelfID returns the local actor's normalized ID.
func (r *Roster) SelfID() string {
	return r.selfID
}

// Contacts returns a deep-copy snapshot of the contact set.
func (r *Roster) Contacts() []models.Contact {
	out := make([]models.Contact, len(r.contacts))
	for i, c := range r.contacts {
		out[i] = c.Clone()
	}
	return out
}

// Contact returns a deep copy of one contact, or nil if absent.
func (r *Roster) Contact(id string) *models.Contact {
	c := r.find(models.NormalizeID(id))
	if c == nil {
		return nil
	}
	cc := c.Clone()
	return &cc
}

func (r *Roster) find(id string) *models.Contact {
	for i := range r.contacts {
		if r.contacts[i].ID == id {
			return &r.contacts[i]
		}
	}
	return nil
}

func (r *Roster) persona(c *models.Contact, personaID string) *models.Persona {
	for i := range c.Personas {
		if c.Personas[i].ID == personaID {
			return &c.Personas[i]
		}
	}
	return nil
}

// AddContact appends a new contact with one default persona.
func (r *Roster) AddContact(id, displayName, avatarRef string) (models.Contact, error) {
	nid := models.NormalizeID(id)
	if nid == r.selfID {
		return models.Contact{}, ErrSelfAddition
	}
	if r.find(nid) != nil {
		return models.Contact{}, fmt.Errorf("%w: %s", ErrDuplicateContact, nid)
	}
	c := models.NewContact(nid, displayName, avatarRef, time.Now().UnixMilli())
	r.contacts = append(r.contacts, c)
	return c.Clone(), nil
}

// AddAgentContact appends the built-in scripted responder contact.
func (r *Roster) AddAgentContact(id, displayName, avatarRef string) (models.Contact, error) {
	c, err := r.AddContact(id, displayName, avatarRef)
	if err != nil {
		return models.Contact{}, err
	}
	live := r.find(c.ID)
	live.IsAgent = true
	live.IsOnline = true
	return live.Clone(), nil
}

// AddPersona appends a persona to a contact. Name uniqueness is deliberately
// not enforced; routing uses first case-insensitive match (see RouteOrCreate).
func (r *Roster) AddPersona(contactID, name, description, colorTag string) (models.Persona, error) {
	c := r.find(models.NormalizeID(contactID))
	if c == nil {
		return models.Persona{}, fmt.Errorf("%w: %s", ErrUnknownContact, contactID)
	}
	p := models.NewPersona(name, description, colorTag, time.Now().UnixMilli())
	c.Personas = append(c.Personas, p)
	return p.Clone(), nil
}

// DeletePersona removes a persona unless it is the contact's only one.
func (r *Roster) DeletePersona(contactID, personaID string) error {
	c := r.find(models.NormalizeID(contactID))
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownContact, contactID)
	}
	if len(c.Personas) == 1 {
		return ErrLastPersonaProtected
	}
	for i := range c.Personas {
		if c.Personas[i].ID == personaID {
			c.Personas = append(c.Personas[:i], c.Personas[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPersona, personaID)
}

// AppendMessage appends a message to the target persona and bumps its
// last-active time.
func (r *Roster) AppendMessage(contactID, personaID string, msg models.Message) error {
	c := r.find(models.NormalizeID(contactID))
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownContact, contactID)
	}
	p := r.persona(c, personaID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, personaID)
	}
	p.Messages = append(p.Messages, msg)
	p.LastActiveAt = time.Now().UnixMilli()
	return nil
}

// MarkRead flips the read flag. Idempotent; a no-op when the message is
// missing or already read.
func (r *Roster) MarkRead(contactID, personaID, messageID string) {
	r.flag(contactID, personaID, messageID, func(m *models.Message) { m.IsRead = true })
}

// MarkRecalled flips the recalled flag. One-directional and idempotent; the
// message keeps its metadata but its payload must no longer be rendered.
func (r *Roster) MarkRecalled(contactID, personaID, messageID string) {
	r.flag(contactID, personaID, messageID, func(m *models.Message) { m.IsRecalled = true })
}

func (r *Roster) flag(contactID, personaID, messageID string, set func(*models.Message)) {
	c := r.find(models.NormalizeID(contactID))
	if c == nil {
		return
	}
	p := r.persona(c, personaID)
	if p == nil {
		return
	}
	for i := range p.Messages {
		if p.Messages[i].ID == messageID {
			set(&p.Messages[i])
			return
		}
	}
}

// SetOnline updates a contact's derived presence. Unknown contacts are a
// no-op.
func (r *Roster) SetOnline(contactID string, online bool) {
	if c := r.find(models.NormalizeID(contactID)); c != nil {
		c.IsOnline = online
	}
}

// SetMood records a peer's broadcast status on a known contact.
func (r *Roster) SetMood(contactID string, mood *models.Mood) {
	if c := r.find(models.NormalizeID(contactID)); c != nil {
		c.Mood = mood
	}
}

// UpdateProfile refreshes the cached display fields from a handshake.
func (r *Roster) UpdateProfile(contactID string, profile models.UserProfile) {
	c := r.find(models.NormalizeID(contactID))
	if c == nil {
		return
	}
	if profile.Name != "" {
		c.DisplayName = profile.Name
	}
	if profile.Avatar != "" {
		c.AvatarRef = profile.Avatar
	}
	c.Mood = profile.Mood
}

// RouteOrCreate resolves the target persona for an inbound message. Unknown
// contacts are synthesized from the sender profile so no message is ever
// dropped for lack of a contact record. Persona resolution is a
// case-insensitive exact name match, first match wins, falling back to the
// contact's first persona.
func (r *Roster) RouteOrCreate(contactID string, sender models.UserProfile, declaredPersonaName string) (models.Contact, models.Persona) {
	nid := models.NormalizeID(contactID)
	c := r.find(nid)
	if c == nil {
		name := sender.Name
		if name == "" {
			name = nid
		}
		nc := models.NewContact(nid, name, sender.Avatar, time.Now().UnixMilli())
		nc.IsOnline = true
		r.contacts = append(r.contacts, nc)
		c = r.find(nid)
	}
	target := &c.Personas[0]
	if declaredPersonaName != "" {
		for i := range c.Personas {
			if strings.EqualFold(c.Personas[i].Name, declaredPersonaName) {
				target = &c.Personas[i]
				break
			}
		}
	}
	return c.Clone(), target.Clone()
}
