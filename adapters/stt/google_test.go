package stt

import (
	"context"
	"os"
	"testing"

	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

func TestSupportedFollowsCredentials(t *testing.T) {
	capture := NewGoogleSpeechCapture()

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if capture.Supported() {
		t.Fatal("no credentials must mean unsupported")
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")
	if !capture.Supported() {
		t.Fatal("credentials present must mean supported")
	}
}

// TestCaptureIntegration exercises a real single-utterance capture. It is
// skipped unless credentials are configured.
func TestCaptureIntegration(t *testing.T) {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("Skipping Google STT integration test - GOOGLE_APPLICATION_CREDENTIALS not set")
	}

	capture := NewGoogleSpeechCapture()
	stream, err := capture.InitCapture(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("InitCapture err: %v", err)
	}

	// No audio written: End must report no result rather than hang.
	if _, err := stream.End(); err != repositories.ErrNoResult {
		t.Fatalf("expected ErrNoResult for silent capture, got %v", err)
	}
}
