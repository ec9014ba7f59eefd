package models

import "encoding/json"

// PacketKind tags the wire packet variants. Receivers must ignore kinds they
// do not recognize.
type PacketKind string

const (
	PacketHandshake PacketKind = "HANDSHAKE"
	PacketMessage   PacketKind = "MESSAGE"
	PacketStatus    PacketKind = "STATUS_UPDATE"
)

// Packet is the wire envelope exchanged between peers. The payload varies by
// kind and stays raw until the router decodes it.
type Packet struct {
	Kind          PacketKind      `json:"type"`
	SenderProfile UserProfile     `json:"sender_profile"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// HandshakePayload accompanies PacketHandshake.
type HandshakePayload struct {
	Status string `json:"status"`
}

// MessagePayload accompanies PacketMessage. PersonaName is the sender's
// declared identity tag used by the recipient for routing.
type MessagePayload struct {
	Text        string      `json:"text"`
	ContentType ContentType `json:"content_type"`
	PersonaName string      `json:"persona_name,omitempty"`
	ReplyTo     *ReplyRef   `json:"reply_to,omitempty"`
}

// StatusPayload accompanies PacketStatus.
type StatusPayload struct {
	Mood   *Mood `json:"mood,omitempty"`
	Online bool  `json:"online"`
}

func newPacket(kind PacketKind, sender UserProfile, payload any) (*Packet, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Kind: kind, SenderProfile: sender, Payload: raw}, nil
}

// NewHandshakePacket builds the packet emitted when a session opens.
func NewHandshakePacket(sender UserProfile) (*Packet, error) {
	return newPacket(PacketHandshake, sender, HandshakePayload{Status: "online"})
}

// NewMessagePacket builds a chat message packet.
func NewMessagePacket(sender UserProfile, payload MessagePayload) (*Packet, error) {
	return newPacket(PacketMessage, sender, payload)
}

// NewStatusPacket builds a presence/mood broadcast packet.
func NewStatusPacket(sender UserProfile, payload StatusPayload) (*Packet, error) {
	return newPacket(PacketStatus, sender, payload)
}

// DecodeMessage decodes the payload of a PacketMessage.
func (p *Packet) DecodeMessage() (*MessagePayload, error) {
	var out MessagePayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, err
	}
	if out.ContentType == "" {
		out.ContentType = ContentText
	}
	return &out, nil
}

// DecodeStatus decodes the payload of a PacketStatus.
func (p *Packet) DecodeStatus() (*StatusPayload, error) {
	var out StatusPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
