package websocket

import (
	"testing"
	"time"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
)

func TestParseClientMessage(t *testing.T) {
	t.Run("Submit", func(t *testing.T) {
		msg, err := ParseClientMessage([]byte(`{"type":"submit","text":"Three days in Kyoto","origin":"typed"}`))
		if err != nil {
			t.Fatalf("ParseClientMessage err: %v", err)
		}
		submit, ok := msg.(*SubmitMessage)
		if !ok {
			t.Fatalf("expected *SubmitMessage, got %T", msg)
		}
		if submit.Text != "Three days in Kyoto" || submit.Origin != "typed" {
			t.Fatalf("unexpected submit: %+v", submit)
		}
	})

	t.Run("CaptureStart", func(t *testing.T) {
		msg, err := ParseClientMessage([]byte(`{"type":"capture_start","locale":"en-GB"}`))
		if err != nil {
			t.Fatalf("ParseClientMessage err: %v", err)
		}
		start, ok := msg.(*CaptureStartMessage)
		if !ok {
			t.Fatalf("expected *CaptureStartMessage, got %T", msg)
		}
		if start.Locale != "en-GB" {
			t.Fatalf("unexpected locale: %q", start.Locale)
		}
	})

	t.Run("BareControlMessages", func(t *testing.T) {
		for _, typ := range []string{"open", "close", "capture_end", "ping"} {
			msg, err := ParseClientMessage([]byte(`{"type":"` + typ + `"}`))
			if err != nil {
				t.Fatalf("ParseClientMessage(%s) err: %v", typ, err)
			}
			base, ok := msg.(*BaseMessage)
			if !ok {
				t.Fatalf("expected *BaseMessage for %s, got %T", typ, msg)
			}
			if string(base.Type) != typ {
				t.Fatalf("expected type %s, got %s", typ, base.Type)
			}
		}
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		if _, err := ParseClientMessage([]byte(`{"type":"teleport"}`)); err == nil {
			t.Fatal("expected error for unknown type")
		}
	})

	t.Run("InvalidJSONRejected", func(t *testing.T) {
		if _, err := ParseClientMessage([]byte(`{`)); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}

func TestSubmitOrigin(t *testing.T) {
	if SubmitOrigin("voice") != entities.OriginVoice {
		t.Fatal("voice origin not recognized")
	}
	if SubmitOrigin("typed") != entities.OriginTyped {
		t.Fatal("typed origin not recognized")
	}
	if SubmitOrigin("") != entities.OriginTyped {
		t.Fatal("empty origin must default to typed")
	}
	if SubmitOrigin("generated") != entities.OriginTyped {
		t.Fatal("client cannot claim a generated origin")
	}
}

func TestNewTranscriptMessageRendersDisplayMarkup(t *testing.T) {
	turns := []entities.Turn{
		{
			Speaker:   entities.SpeakerOther,
			Text:      "Day one:\nvisit Fushimi Inari",
			Origin:    entities.OriginGenerated,
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	msg := NewTranscriptMessage(turns, true)
	if len(msg.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(msg.Turns))
	}
	if msg.Turns[0].Text != "Day one:<br>visit Fushimi Inari" {
		t.Fatalf("expected display markup, got %q", msg.Turns[0].Text)
	}
	if !msg.PendingReply {
		t.Fatal("pending reply flag not carried")
	}
	if msg.Type != MessageTypeTranscript {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
}

func TestNewTranscriptMessageEmpty(t *testing.T) {
	msg := NewTranscriptMessage(nil, false)
	if msg.Turns == nil {
		t.Fatal("turns must serialize as an empty array, not null")
	}
	if len(msg.Turns) != 0 {
		t.Fatalf("expected no turns, got %d", len(msg.Turns))
	}
}
