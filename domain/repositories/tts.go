package repositories

import "context"

// Voice is one entry of the synthesizer's roster.
type Voice struct {
	ID     string
	Name   string
	Gender string
	Locale string
}

// SpeechSynthesizer turns text into streamed audio. Cancellation is by
// context; keeping at most one utterance audible is the caller's job.
type SpeechSynthesizer interface {
	// AvailableVoices returns the roster. It may be slow or empty while the
	// provider warms up; callers fall back to the default voice.
	AvailableVoices(ctx context.Context) ([]Voice, error)
	// Speak streams synthesized audio for text. An empty voiceID selects
	// the provider default. The channel closes when the utterance ends.
	Speak(ctx context.Context, text string, voiceID string) (<-chan []byte, error)
}
