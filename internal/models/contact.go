package models

import (
	"regexp"

	"github.com/google/uuid"
)

// DefaultPersonaName is the name seeded on every new contact and the routing
// fallback for messages without a matching declared persona.
const DefaultPersonaName = "General"

var idCharset = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NormalizeID strips a user-chosen handle down to the character set the
// transport accepts as an endpoint identifier.
func NormalizeID(id string) string {
	return idCharset.ReplaceAllString(id, "")
}

// Persona is one conversation context scoped to a contact. Its name doubles
// as the wire-visible identity tag used for routing.
type Persona struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ColorTag     string    `json:"color"`
	Messages     []Message `json:"messages"`
	LastActiveAt int64     `json:"last_active"` // Unix ms
}

// Contact is a remote party, either the built-in scripted agent or a live
// peer. A contact always owns at least one persona.
type Contact struct {
	ID          string    `json:"id"` // transport endpoint identifier
	DisplayName string    `json:"name"`
	AvatarRef   string    `json:"avatar"`
	IsAgent     bool      `json:"is_agent,omitempty"`
	IsOnline    bool      `json:"is_online,omitempty"` // derived, never persisted as truth
	Mood        *Mood     `json:"mood,omitempty"`      // last broadcast status, if any
	Personas    []Persona `json:"personas"`
}

// NewPersona builds an empty persona with a fresh ID.
func NewPersona(name, description, colorTag string, now int64) Persona {
	return Persona{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		ColorTag:     colorTag,
		Messages:     []Message{},
		LastActiveAt: now,
	}
}

// NewContact builds a contact seeded with the default persona.
func NewContact(id, displayName, avatarRef string, now int64) Contact {
	return Contact{
		ID:          NormalizeID(id),
		DisplayName: displayName,
		AvatarRef:   avatarRef,
		Personas: []Persona{
			NewPersona(DefaultPersonaName, "Default chat", "blue", now),
		},
	}
}

// Clone returns a deep copy safe to hand to the presentation layer.
func (c Contact) Clone() Contact {
	out := c
	if c.Mood != nil {
		mood := *c.Mood
		out.Mood = &mood
	}
	out.Personas = make([]Persona, len(c.Personas))
	for i, p := range c.Personas {
		out.Personas[i] = p.Clone()
	}
	return out
}

// Clone returns a deep copy of the persona and its messages.
func (p Persona) Clone() Persona {
	out := p
	out.Messages = make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		out.Messages[i] = m
		if m.ReplyTo != nil {
			ref := *m.ReplyTo
			out.Messages[i].ReplyTo = &ref
		}
	}
	return out
}
