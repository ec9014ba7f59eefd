package models

import (
	"encoding/json"
	"testing"
)

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"alice":       "alice",
		"Alice Smith": "AliceSmith",
		"p-1_2.3!":    "p123",
		"":            "",
	}
	for in, want := range cases {
		if got := NormalizeID(in); got != want {
			t.Errorf("NormalizeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMoodVisibility(t *testing.T) {
	var nilMood *Mood
	if nilMood.VisibleTo("p1") {
		t.Fatal("nil mood is visible to nobody")
	}

	public := &Mood{Content: "hi", Visibility: MoodPublic}
	if !public.VisibleTo("anyone") {
		t.Fatal("public mood should be visible to everyone")
	}

	private := &Mood{Content: "hi", Visibility: MoodPrivate}
	if private.VisibleTo("p1") {
		t.Fatal("private mood should be hidden")
	}

	specific := &Mood{Content: "hi", Visibility: MoodSpecific, AllowedContactIDs: []string{"p1"}}
	if !specific.VisibleTo("p1") || specific.VisibleTo("p2") {
		t.Fatal("specific mood should follow the allow-list")
	}
}

func TestProfileForContactFiltersMood(t *testing.T) {
	p := UserProfile{
		ID:   "me",
		Name: "Me",
		Mood: &Mood{Content: "busy", Visibility: MoodSpecific, AllowedContactIDs: []string{"p1"}},
	}

	if got := p.ForContact("p1"); got.Mood == nil || got.Mood.Content != "busy" {
		t.Fatal("allowed contact should see the mood")
	}
	if got := p.ForContact("p2"); got.Mood != nil {
		t.Fatal("disallowed contact must not see the mood")
	}
	// The filtered copy must not share the mood pointer.
	got := p.ForContact("p1")
	got.Mood.Content = "changed"
	if p.Mood.Content != "busy" {
		t.Fatal("ForContact leaked the original mood pointer")
	}
}

func TestDecodeMessageDefaultsContentType(t *testing.T) {
	pkt, err := NewMessagePacket(UserProfile{ID: "p1"}, MessagePayload{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := pkt.DecodeMessage()
	if err != nil {
		t.Fatal(err)
	}
	if payload.ContentType != ContentText {
		t.Fatalf("missing content type should default to text, got %q", payload.ContentType)
	}
}

func TestPacketToleratesUnknownFields(t *testing.T) {
	// A newer peer may send fields this build does not know about.
	raw := `{"type":"MESSAGE","sender_profile":{"id":"p1"},"payload":{"text":"hi","effects":"confetti"},"hop_count":3}`
	var pkt Packet
	if err := json.Unmarshal([]byte(raw), &pkt); err != nil {
		t.Fatal(err)
	}
	payload, err := pkt.DecodeMessage()
	if err != nil {
		t.Fatal(err)
	}
	if payload.Text != "hi" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestContactCloneIsDeep(t *testing.T) {
	c := NewContact("p1", "Pat", "", 1)
	c.Personas[0].Messages = append(c.Personas[0].Messages, Message{
		ID:      "m1",
		Payload: "original",
		ReplyTo: &ReplyRef{ID: "m0", Text: "quoted"},
	})

	clone := c.Clone()
	clone.Personas[0].Messages[0].Payload = "mutated"
	clone.Personas[0].Messages[0].ReplyTo.Text = "mutated"

	if c.Personas[0].Messages[0].Payload != "original" {
		t.Fatal("clone shares message storage")
	}
	if c.Personas[0].Messages[0].ReplyTo.Text != "quoted" {
		t.Fatal("clone shares reply snapshot")
	}
}

func TestSnapshotCopiesForQuoting(t *testing.T) {
	m := NewMessage(RoleSelf, ContentText, "lunch?")
	ref := m.Snapshot("Me")
	if ref.ID != m.ID || ref.Text != "lunch?" || ref.SenderName != "Me" {
		t.Fatalf("unexpected snapshot: %+v", ref)
	}
}
