package entities

import (
	"strings"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerSelf  Speaker = "self"  // the traveler
	SpeakerOther Speaker = "other" // the concierge assistant
)

// Origin records how a turn came to exist.
type Origin string

const (
	OriginTyped     Origin = "typed"
	OriginVoice     Origin = "voice"
	OriginGenerated Origin = "generated"
	OriginError     Origin = "error"
)

// Turn is a single message in a transcript. Turns are immutable once created.
type Turn struct {
	Speaker   Speaker   `json:"speaker" bson:"speaker"`
	Text      string    `json:"text" bson:"text"`
	Origin    Origin    `json:"origin" bson:"origin"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewTurn builds a turn stamped with the current time. Text is stored in
// canonical form: plain newlines, no display markup.
func NewTurn(speaker Speaker, text string, origin Origin) Turn {
	return Turn{
		Speaker:   speaker,
		Text:      NormalizeInput(text),
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}
}

// lineBreakMarkup is the only markup the widget renders inside a bubble.
const lineBreakMarkup = "<br>"

var inputReplacer = strings.NewReplacer(
	"<br/>", "\n",
	"<br />", "\n",
	lineBreakMarkup, "\n",
	"\r\n", "\n",
)

// NormalizeInput converts display line-break markup back to plain newlines
// and trims surrounding whitespace.
func NormalizeInput(text string) string {
	return strings.TrimSpace(inputReplacer.Replace(text))
}

// DisplayText renders the turn text with newlines as line-break markup.
func (t Turn) DisplayText() string {
	return strings.ReplaceAll(t.Text, "\n", lineBreakMarkup)
}
