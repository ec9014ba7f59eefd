package models

import "slices"

// MoodVisibility controls who may see a broadcast status.
type MoodVisibility string

const (
	MoodPublic   MoodVisibility = "public"
	MoodPrivate  MoodVisibility = "private"
	MoodSpecific MoodVisibility = "specific" // allow-list
)

// Mood is an optional status broadcast attached to a profile.
type Mood struct {
	Content           string         `json:"content"`
	Emoji             string         `json:"emoji"`
	Timestamp         int64          `json:"ts"` // Unix ms
	Visibility        MoodVisibility `json:"visibility"`
	AllowedContactIDs []string       `json:"allowed_contact_ids,omitempty"`
}

// VisibleTo reports whether the mood may be shown to the given contact.
func (m *Mood) VisibleTo(contactID string) bool {
	if m == nil {
		return false
	}
	switch m.Visibility {
	case MoodPublic:
		return true
	case MoodSpecific:
		return slices.Contains(m.AllowedContactIDs, contactID)
	default:
		return false
	}
}

// UserProfile is the local actor's own identity. Its ID doubles as the
// transport endpoint identifier and travels on every outbound packet.
type UserProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Bio    string `json:"bio,omitempty"`
	Mood   *Mood  `json:"mood,omitempty"`
}

// ForContact returns a copy of the profile with the mood filtered by its
// visibility policy for the given recipient.
func (p UserProfile) ForContact(contactID string) UserProfile {
	out := p
	if p.Mood != nil && p.Mood.VisibleTo(contactID) {
		mood := *p.Mood
		out.Mood = &mood
	} else {
		out.Mood = nil
	}
	return out
}

// State is the per-user document handed to the persistence collaborator after
// every mutation batch: the full contact set plus the local profile.
type State struct {
	Profile  UserProfile `json:"profile"`
	Contacts []Contact   `json:"contacts"`
}
