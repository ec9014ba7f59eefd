package agent

import (
	"fmt"
	"testing"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

func TestConversationWindowLimitsAndExcludes(t *testing.T) {
	var transcript []models.Message
	for i := 0; i < 20; i++ {
		transcript = append(transcript, models.Message{
			ID:      fmt.Sprintf("m%d", i),
			Role:    models.RoleSelf,
			Payload: fmt.Sprintf("msg %d", i),
		})
	}
	newest := transcript[len(transcript)-1]

	contents := conversationWindow(transcript, newest.ID, historyWindow)
	if len(contents) != historyWindow {
		t.Fatalf("expected %d history entries, got %d", historyWindow, len(contents))
	}
	// m19 is the message being answered; the window ends at m18.
	last := contents[len(contents)-1]
	if got := last.Parts[0].Text; got != "msg 18" {
		t.Fatalf("unexpected last history entry: %q", got)
	}
}

func TestRenderBodyPlaceholders(t *testing.T) {
	cases := []struct {
		msg  models.Message
		want string
	}{
		{models.Message{ContentType: models.ContentText, Payload: "hi"}, "hi"},
		{models.Message{ContentType: models.ContentSticker, Payload: "wave"}, "[sent a sticker: wave]"},
		{models.Message{ContentType: models.ContentVideo, Payload: "clip"}, "[sent a video]"},
		{models.Message{ContentType: models.ContentText, Payload: "secret", IsRecalled: true}, "[message withdrawn]"},
	}
	for _, c := range cases {
		if got := renderBody(c.msg); got != c.want {
			t.Errorf("renderBody(%+v) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	data, mime, ok := decodeDataURL("data:image/png;base64,aGVsbG8=")
	if !ok || mime != "image/png" || string(data) != "hello" {
		t.Fatalf("decode failed: ok=%v mime=%q data=%q", ok, mime, data)
	}

	for _, bad := range []string{"hello", "data:;base64,aGVsbG8=", "data:image/png;base64,%%%"} {
		if _, _, ok := decodeDataURL(bad); ok {
			t.Errorf("decodeDataURL(%q) should fail", bad)
		}
	}
}
