package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

// DefaultCaptureLocale fixes the capture language; the widget offers no
// locale picker.
const DefaultCaptureLocale = "en-US"

// femaleVoiceNames is the allow-list used to pick the concierge voice.
// Matching is case-insensitive substring against the roster entry name.
var femaleVoiceNames = []string{"rachel", "samantha", "victoria", "karen", "zira"}

// PlaybackSink receives one utterance's audio from the voice adapter.
type PlaybackSink interface {
	SpeakingStart(text string)
	Audio(chunk []byte)
	SpeakingEnd()
}

// VoiceAdapter wraps speech capture and playback as cancelable,
// single-in-flight operations. Recognized text goes to the onText callback
// supplied per capture; the adapter never touches the transcript.
type VoiceAdapter struct {
	mu sync.Mutex

	capture repositories.SpeechCapture
	synth   repositories.SpeechSynthesizer
	sink    PlaybackSink
	locale  string
	logger  *zap.Logger

	listening   bool
	stream      repositories.CaptureStream
	cancelSpeak context.CancelFunc

	voiceID     string
	voicePicked bool
}

// NewVoiceAdapter wires the capture and synthesis engines. Either may be
// nil; the corresponding operation then degrades to a no-op or an
// unsupported-capability signal.
func NewVoiceAdapter(
	capture repositories.SpeechCapture,
	synth repositories.SpeechSynthesizer,
	sink PlaybackSink,
	locale string,
	logger *zap.Logger,
) *VoiceAdapter {
	if locale == "" {
		locale = DefaultCaptureLocale
	}
	return &VoiceAdapter{
		capture: capture,
		synth:   synth,
		sink:    sink,
		locale:  locale,
		logger:  logger,
	}
}

// Listening reports whether a capture owns the input right now.
func (v *VoiceAdapter) Listening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listening
}

// StartCapture begins one utterance-scoped capture. A second start while
// one is in flight is a no-op. ErrUnsupportedCapability is returned when no
// engine is available so the caller can show a notice instead of crashing.
func (v *VoiceAdapter) StartCapture(ctx context.Context) error {
	if v.capture == nil || !v.capture.Supported() {
		return repositories.ErrUnsupportedCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listening {
		return nil
	}

	stream, err := v.capture.InitCapture(ctx, v.locale)
	if err != nil {
		v.logger.Warn("capture failed to start", zap.Error(err))
		return err
	}
	v.listening = true
	v.stream = stream
	return nil
}

// FeedAudio forwards one audio chunk to the active capture. Chunks arriving
// with no capture in flight are dropped.
func (v *VoiceAdapter) FeedAudio(data []byte) {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.Write(data); err != nil {
		v.logger.Warn("failed to stream capture audio", zap.Error(err))
	}
}

// FinishCapture ends the utterance and delivers the transcript through
// onText. Errors and empty results reset the listening flag and leave the
// input unchanged.
func (v *VoiceAdapter) FinishCapture(onText func(text string)) {
	v.mu.Lock()
	stream := v.stream
	v.stream = nil
	v.mu.Unlock()
	if stream == nil {
		return
	}

	defer func() {
		v.mu.Lock()
		v.listening = false
		v.mu.Unlock()
	}()

	text, err := stream.End()
	if err != nil {
		if errors.Is(err, repositories.ErrNoResult) {
			v.logger.Debug("capture ended without speech")
		} else {
			v.logger.Warn("capture error", zap.Error(err))
		}
		return
	}
	if text == "" {
		return
	}
	onText(text)
}

// Speak plays text through the synthesizer, interrupting whatever was
// audible before. Playback is fire and forget; failures are logged only.
func (v *VoiceAdapter) Speak(ctx context.Context, text string) {
	if v.synth == nil || v.sink == nil {
		return
	}

	v.mu.Lock()
	if v.cancelSpeak != nil {
		// New replies interrupt prior speech rather than queueing.
		v.cancelSpeak()
	}
	speakCtx, cancel := context.WithCancel(ctx)
	v.cancelSpeak = cancel
	v.mu.Unlock()

	go v.play(speakCtx, text)
}

func (v *VoiceAdapter) play(ctx context.Context, text string) {
	voiceID := v.selectVoice(ctx)

	chunks, err := v.synth.Speak(ctx, text, voiceID)
	if err != nil {
		v.logger.Warn("speech synthesis failed", zap.Error(err))
		return
	}

	v.sink.SpeakingStart(text)
	defer v.sink.SpeakingEnd()

	for chunk := range chunks {
		select {
		case <-ctx.Done():
			return
		default:
		}
		v.sink.Audio(chunk)
	}
}

// selectVoice resolves the roster lazily, once. A roster that is not ready
// yet simply yields the provider default; the utterance is not held back
// for it.
func (v *VoiceAdapter) selectVoice(ctx context.Context) string {
	v.mu.Lock()
	if v.voicePicked {
		id := v.voiceID
		v.mu.Unlock()
		return id
	}
	v.mu.Unlock()

	voices, err := v.synth.AvailableVoices(ctx)
	if err != nil {
		v.logger.Debug("voice roster unavailable, using default", zap.Error(err))
		return ""
	}
	if len(voices) == 0 {
		return ""
	}

	id := chooseVoice(voices)
	v.mu.Lock()
	v.voiceID = id
	v.voicePicked = true
	v.mu.Unlock()
	return id
}

// chooseVoice prefers an English voice that is feminine-labeled, by gender
// label or by the name allow-list, then falls back to the first English
// voice, then to the provider default (empty ID).
func chooseVoice(voices []repositories.Voice) string {
	var firstEnglish string
	for _, voice := range voices {
		if !strings.HasPrefix(strings.ToLower(voice.Locale), "en") {
			continue
		}
		if firstEnglish == "" {
			firstEnglish = voice.ID
		}
		if strings.EqualFold(voice.Gender, "female") {
			return voice.ID
		}
		name := strings.ToLower(voice.Name)
		for _, candidate := range femaleVoiceNames {
			if strings.Contains(name, candidate) {
				return voice.ID
			}
		}
	}
	return firstEnglish
}
