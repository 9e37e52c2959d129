package stt

import (
	"context"
	"fmt"
	"io"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

// Fixed capture parameters: the widget records LINEAR16 at 16 kHz and the
// session wants exactly one final transcript per utterance.
const (
	captureSampleRate = 16000
	captureEncoding   = speechpb.RecognitionConfig_LINEAR16
)

// GoogleSpeechCapture implements repositories.SpeechCapture on Google
// Cloud Speech-to-Text.
type GoogleSpeechCapture struct{}

var _ repositories.SpeechCapture = (*GoogleSpeechCapture)(nil)

// NewGoogleSpeechCapture creates the capture engine.
func NewGoogleSpeechCapture() *GoogleSpeechCapture {
	return &GoogleSpeechCapture{}
}

// Supported feature-detects the engine: without application credentials the
// capture capability is absent and callers surface a notice instead.
func (g *GoogleSpeechCapture) Supported() bool {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}

// InitCapture opens one single-utterance capture stream. Final results
// only, one alternative.
func (g *GoogleSpeechCapture) InitCapture(ctx context.Context, locale string) (repositories.CaptureStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        captureEncoding,
		SampleRateHertz: captureSampleRate,
		LanguageCode:    locale,
		MaxAlternatives: 1,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	return &googleCaptureStream{
		client:     client,
		stream:     stream,
		ctx:        ctx,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

type googleCaptureStream struct {
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	ctx            context.Context
	audioReceived  bool
	receiverActive bool
	resultChan     chan string
	errorChan      chan error
}

// Write forwards one audio chunk to the recognizer.
func (g *googleCaptureStream) Write(data []byte) error {
	if !g.receiverActive {
		g.receiverActive = true
		go g.receiveResults()
	}

	if len(data) == 0 {
		return nil
	}
	g.audioReceived = true

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// End closes the send side and waits for the final transcript.
func (g *googleCaptureStream) End() (string, error) {
	defer g.cleanup()

	if !g.audioReceived {
		return "", repositories.ErrNoResult
	}

	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case err := <-g.errorChan:
		return "", err
	case result := <-g.resultChan:
		if result == "" {
			return "", repositories.ErrNoResult
		}
		return result, nil
	}
}

func (g *googleCaptureStream) receiveResults() {
	var finalTranscription string

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.resultChan <- finalTranscription
			return
		}
		if err != nil {
			g.errorChan <- fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				finalTranscription = result.Alternatives[0].Transcript
			}
		}
	}
}

func (g *googleCaptureStream) cleanup() {
	if g.client != nil {
		g.client.Close()
	}
}
