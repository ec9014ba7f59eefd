// Package agent wraps the Gemini API behind the responder used for the
// built-in assistant contact. All API failures stay inside this package's
// error returns; callers substitute a fixed apology and keep going.
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// historyWindow caps how much transcript is replayed per turn.
const historyWindow = 15

const defaultSystemPrompt = "You are a helpful AI assistant. Keep your responses conversational and concise."

// ErrEmptyReply is returned when the model answers with no usable text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Gemini generates in-character replies for agent personas.
type Gemini struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGemini creates a responder. apiKey must be non-empty; run without a
// responder at all when no key is configured.
func NewGemini(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  model,
		log:    logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Generate produces the persona's reply to newMessage. transcript is the
// persona's message history including newMessage; recalled messages are
// replayed as withdrawn so the model does not quote them back.
func (g *Gemini) Generate(ctx context.Context, personaDescription string, transcript []models.Message, newMessage models.Message, mood *models.Mood) (string, error) {
	system := personaDescription
	if system == "" {
		system = defaultSystemPrompt
	}
	if mood != nil && mood.Content != "" {
		system += fmt.Sprintf("\n\nThe user's current status is %q. Acknowledge it only when it fits the conversation.", strings.TrimSpace(mood.Emoji+" "+mood.Content))
	}

	contents := conversationWindow(transcript, newMessage.ID, historyWindow)
	contents = append(contents, userContent(newMessage))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// DescribePersona writes a system prompt for a freshly created agent persona.
func (g *Gemini) DescribePersona(ctx context.Context, title string) (string, error) {
	prompt := fmt.Sprintf(
		"Write a short system prompt, two sentences at most, for an AI chat persona titled %q. "+
			"Describe how it should speak and behave. Answer with the prompt text only.", title)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("describe persona: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// conversationWindow maps the last limit transcript entries onto model
// contents, skipping the message being answered.
func conversationWindow(transcript []models.Message, excludeID string, limit int) []*genai.Content {
	history := make([]models.Message, 0, len(transcript))
	for _, m := range transcript {
		if m.ID == excludeID {
			continue
		}
		history = append(history, m)
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		var role genai.Role = genai.RoleModel
		if m.Role == models.RoleSelf {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(renderBody(m), role))
	}
	return contents
}

// userContent builds the content for the message being answered, inlining
// image payloads and the quoted reply target when present.
func userContent(msg models.Message) *genai.Content {
	text := renderBody(msg)
	if msg.ReplyTo != nil {
		text = fmt.Sprintf("[Replying to %s: %q]\n%s", msg.ReplyTo.SenderName, msg.ReplyTo.Text, text)
	}

	if msg.ContentType == models.ContentImage {
		if data, mime, ok := decodeDataURL(msg.Payload); ok {
			parts := []*genai.Part{
				genai.NewPartFromBytes(data, mime),
				genai.NewPartFromText("(the user sent this image)"),
			}
			return genai.NewContentFromParts(parts, genai.RoleUser)
		}
	}
	return genai.NewContentFromText(text, genai.RoleUser)
}

// renderBody flattens non-text payloads into placeholders the model can react
// to.
func renderBody(msg models.Message) string {
	if msg.IsRecalled {
		return "[message withdrawn]"
	}
	switch msg.ContentType {
	case models.ContentSticker:
		return fmt.Sprintf("[sent a sticker: %s]", msg.Payload)
	case models.ContentVideo:
		return "[sent a video]"
	case models.ContentImage:
		return "[sent an image]"
	default:
		return msg.Payload
	}
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" string.
func decodeDataURL(s string) (data []byte, mime string, ok bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return nil, "", false
	}
	mime, b64, found := strings.Cut(rest, ";base64,")
	if !found || mime == "" {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", false
	}
	return data, mime, true
}
