package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

type fakeCaptureStream struct {
	mu      sync.Mutex
	written [][]byte
	text    string
	err     error
}

func (f *fakeCaptureStream) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeCaptureStream) End() (string, error) {
	return f.text, f.err
}

type fakeCapture struct {
	mu        sync.Mutex
	supported bool
	stream    *fakeCaptureStream
	initCount int
	initErr   error
}

func (f *fakeCapture) Supported() bool { return f.supported }

func (f *fakeCapture) InitCapture(ctx context.Context, locale string) (repositories.CaptureStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCount++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.stream, nil
}

func (f *fakeCapture) inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCount
}

type speakCall struct {
	ctx     context.Context
	text    string
	voiceID string
}

type fakeSynth struct {
	voices    []repositories.Voice
	voicesErr error
	calls     chan speakCall
}

func newFakeSynth(voices []repositories.Voice) *fakeSynth {
	return &fakeSynth{voices: voices, calls: make(chan speakCall, 8)}
}

func (f *fakeSynth) AvailableVoices(ctx context.Context) ([]repositories.Voice, error) {
	if f.voicesErr != nil {
		return nil, f.voicesErr
	}
	return f.voices, nil
}

func (f *fakeSynth) Speak(ctx context.Context, text string, voiceID string) (<-chan []byte, error) {
	f.calls <- speakCall{ctx: ctx, text: text, voiceID: voiceID}
	chunks := make(chan []byte, 2)
	chunks <- []byte("audio-1")
	chunks <- []byte("audio-2")
	close(chunks)
	return chunks, nil
}

func (f *fakeSynth) nextCall(t *testing.T) speakCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Speak call")
		return speakCall{}
	}
}

type fakeSink struct {
	mu     sync.Mutex
	starts []string
	chunks [][]byte
	ended  chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{ended: make(chan struct{}, 8)}
}

func (f *fakeSink) SpeakingStart(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, text)
}

func (f *fakeSink) Audio(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
}

func (f *fakeSink) SpeakingEnd() {
	f.ended <- struct{}{}
}

func (f *fakeSink) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-f.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SpeakingEnd")
	}
}

func TestStartCaptureUnsupported(t *testing.T) {
	adapter := NewVoiceAdapter(&fakeCapture{supported: false}, nil, nil, "", zap.NewNop())

	err := adapter.StartCapture(context.Background())
	if !errors.Is(err, repositories.ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}

	adapter = NewVoiceAdapter(nil, nil, nil, "", zap.NewNop())
	if err := adapter.StartCapture(context.Background()); !errors.Is(err, repositories.ErrUnsupportedCapability) {
		t.Fatalf("nil engine must report unsupported, got %v", err)
	}
}

func TestStartCaptureSingleInFlight(t *testing.T) {
	capture := &fakeCapture{supported: true, stream: &fakeCaptureStream{text: "hi"}}
	adapter := NewVoiceAdapter(capture, nil, nil, "", zap.NewNop())

	if err := adapter.StartCapture(context.Background()); err != nil {
		t.Fatalf("first StartCapture err: %v", err)
	}
	if err := adapter.StartCapture(context.Background()); err != nil {
		t.Fatalf("second StartCapture must be a silent no-op, got %v", err)
	}
	if capture.inits() != 1 {
		t.Fatalf("expected exactly one active capture, got %d", capture.inits())
	}
	if !adapter.Listening() {
		t.Fatal("expected listening state")
	}
}

func TestFinishCaptureDeliversTranscript(t *testing.T) {
	stream := &fakeCaptureStream{text: "take me to lisbon"}
	capture := &fakeCapture{supported: true, stream: stream}
	adapter := NewVoiceAdapter(capture, nil, nil, "", zap.NewNop())

	if err := adapter.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture err: %v", err)
	}
	adapter.FeedAudio([]byte("pcm"))

	var got string
	adapter.FinishCapture(func(text string) { got = text })

	if got != "take me to lisbon" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if adapter.Listening() {
		t.Fatal("listening must reset after capture ends")
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if len(stream.written) != 1 {
		t.Fatalf("expected 1 audio chunk forwarded, got %d", len(stream.written))
	}
}

func TestFinishCaptureNoResult(t *testing.T) {
	stream := &fakeCaptureStream{err: repositories.ErrNoResult}
	capture := &fakeCapture{supported: true, stream: stream}
	adapter := NewVoiceAdapter(capture, nil, nil, "", zap.NewNop())

	if err := adapter.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture err: %v", err)
	}

	called := false
	adapter.FinishCapture(func(string) { called = true })

	if called {
		t.Fatal("no-result capture must leave the input unchanged")
	}
	if adapter.Listening() {
		t.Fatal("listening must reset after a no-result capture")
	}
}

func TestFinishCaptureWithoutStartIsNoOp(t *testing.T) {
	adapter := NewVoiceAdapter(&fakeCapture{supported: true}, nil, nil, "", zap.NewNop())
	adapter.FinishCapture(func(string) { t.Fatal("unexpected transcript") })
}

func TestSpeakInterruptsPrior(t *testing.T) {
	synth := newFakeSynth(nil)
	sink := newFakeSink()
	adapter := NewVoiceAdapter(nil, synth, sink, "", zap.NewNop())

	adapter.Speak(context.Background(), "x")
	first := synth.nextCall(t)

	adapter.Speak(context.Background(), "y")
	synth.nextCall(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance must be canceled by the second")
	}
}

func TestSpeakStreamsToSink(t *testing.T) {
	synth := newFakeSynth(nil)
	sink := newFakeSink()
	adapter := NewVoiceAdapter(nil, synth, sink, "", zap.NewNop())

	adapter.Speak(context.Background(), "welcome to kyoto")
	call := synth.nextCall(t)
	if call.text != "welcome to kyoto" {
		t.Fatalf("unexpected utterance text: %q", call.text)
	}
	sink.waitEnd(t)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.starts) != 1 || sink.starts[0] != "welcome to kyoto" {
		t.Fatalf("unexpected SpeakingStart calls: %v", sink.starts)
	}
	if len(sink.chunks) != 2 {
		t.Fatalf("expected 2 audio chunks, got %d", len(sink.chunks))
	}
}

func TestSpeakUsesSelectedVoice(t *testing.T) {
	synth := newFakeSynth([]repositories.Voice{
		{ID: "v-brian", Name: "Brian", Gender: "male", Locale: "en-GB"},
		{ID: "v-rachel", Name: "Rachel", Gender: "female", Locale: "en-US"},
	})
	sink := newFakeSink()
	adapter := NewVoiceAdapter(nil, synth, sink, "", zap.NewNop())

	adapter.Speak(context.Background(), "hello")
	call := synth.nextCall(t)
	if call.voiceID != "v-rachel" {
		t.Fatalf("expected the feminine English voice, got %q", call.voiceID)
	}
}

func TestSpeakRosterErrorFallsBackToDefault(t *testing.T) {
	synth := newFakeSynth(nil)
	synth.voicesErr = errors.New("roster not ready")
	sink := newFakeSink()
	adapter := NewVoiceAdapter(nil, synth, sink, "", zap.NewNop())

	adapter.Speak(context.Background(), "hello")
	call := synth.nextCall(t)
	if call.voiceID != "" {
		t.Fatalf("roster failure must fall back to the default voice, got %q", call.voiceID)
	}
}

func TestChooseVoice(t *testing.T) {
	tests := []struct {
		name   string
		voices []repositories.Voice
		want   string
	}{
		{
			name: "gender label wins",
			voices: []repositories.Voice{
				{ID: "a", Name: "Brian", Gender: "male", Locale: "en-GB"},
				{ID: "b", Name: "Nova", Gender: "female", Locale: "en-US"},
			},
			want: "b",
		},
		{
			name: "name allow-list wins",
			voices: []repositories.Voice{
				{ID: "a", Name: "Brian", Locale: "en-GB"},
				{ID: "b", Name: "Microsoft Zira Desktop", Locale: "en-US"},
			},
			want: "b",
		},
		{
			name: "first english fallback",
			voices: []repositories.Voice{
				{ID: "a", Name: "Hans", Locale: "de-DE"},
				{ID: "b", Name: "Brian", Locale: "en-GB"},
				{ID: "c", Name: "George", Locale: "en-US"},
			},
			want: "b",
		},
		{
			name: "no english means provider default",
			voices: []repositories.Voice{
				{ID: "a", Name: "Hans", Locale: "de-DE"},
			},
			want: "",
		},
		{
			name:   "empty roster means provider default",
			voices: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseVoice(tt.voices); got != tt.want {
				t.Fatalf("chooseVoice = %q, want %q", got, tt.want)
			}
		})
	}
}
