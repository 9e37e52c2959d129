package repositories

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedCapability means no capture engine is available.
	ErrUnsupportedCapability = errors.New("speech capture not supported")
	// ErrNoResult means the capture ended without hearing anything usable.
	ErrNoResult = errors.New("no speech detected")
)

// SpeechCapture is an utterance-scoped speech-to-text engine.
type SpeechCapture interface {
	// Supported reports whether the engine can actually run here.
	Supported() bool
	// InitCapture opens one single-utterance capture stream.
	InitCapture(ctx context.Context, locale string) (CaptureStream, error)
}

// CaptureStream receives audio for one utterance. Write may be called many
// times; End closes the stream and returns the final transcript, or
// ErrNoResult when nothing was recognized.
type CaptureStream interface {
	Write(data []byte) error
	End() (string, error)
}
