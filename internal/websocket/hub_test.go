package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
	"github.com/wayfarerhq/wayfarer/server/usecase"
)

type fakeHubGenerator struct {
	reply string
}

func (g *fakeHubGenerator) GenerateReply(ctx context.Context, history []repositories.ReplyMessage, prompt string) (string, error) {
	return g.reply, nil
}

type fakeHubStream struct {
	transcript string
}

func (s *fakeHubStream) Write(data []byte) error { return nil }
func (s *fakeHubStream) End() (string, error)    { return s.transcript, nil }

type fakeHubCapture struct {
	transcript string
}

func (c *fakeHubCapture) Supported() bool { return true }
func (c *fakeHubCapture) InitCapture(ctx context.Context, locale string) (repositories.CaptureStream, error) {
	return &fakeHubStream{transcript: c.transcript}, nil
}

// newTestClient builds a client the way HandleWebSocket does, minus the
// socket. Frames land in the send channel.
func newTestClient(hub *Hub, identity entities.Identity) *Client {
	logger := zap.NewNop()
	client := &Client{
		hub:         hub,
		send:        make(chan WriteData, 256),
		id:          "test-connection",
		identity:    identity,
		transcripts: make(chan []entities.Turn, 16),
		done:        make(chan struct{}),
		logger:      logger,
	}
	client.voice = usecase.NewVoiceAdapter(hub.capture, hub.synth, client, hub.captureLocale, logger)
	client.manager = usecase.NewSessionManager(identity, hub.generator, hub.store, client.voice, logger)
	client.manager.SetTranscriptListener(func(turns []entities.Turn) {
		select {
		case client.transcripts <- turns:
		default:
		}
	})
	go client.pumpTranscripts()
	return client
}

func readFrame(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()
	select {
	case frame := <-client.send:
		var decoded map[string]interface{}
		if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
			t.Fatalf("failed to decode frame: %v", err)
		}
		return decoded
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received within timeout")
		return nil
	}
}

func readFrameOfType(t *testing.T, client *Client, want MessageType) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-client.send:
			var decoded map[string]interface{}
			if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
				t.Fatalf("failed to decode frame: %v", err)
			}
			if decoded["type"] == string(want) {
				return decoded
			}
		case <-deadline:
			t.Fatalf("no %s frame received within timeout", want)
			return nil
		}
	}
}

func TestProcessMessagePing(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, nil, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{"type":"ping"}`))

	if frame := readFrame(t, client); frame["type"] != string(MessageTypePong) {
		t.Fatalf("expected pong, got %v", frame["type"])
	}
}

func TestProcessMessageInvalidJSON(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, nil, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{invalid`))

	if frame := readFrame(t, client); frame["type"] != string(MessageTypeError) {
		t.Fatalf("expected error frame, got %v", frame["type"])
	}
}

func TestSubmitPushesTranscriptFrames(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "Try the night market in Taipei."}, nil, nil, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{"type":"submit","text":"Where should I eat in Taipei?"}`))

	// First frame carries the optimistic self turn, a later one the reply.
	frame := readFrameOfType(t, client, MessageTypeTranscript)
	turns := frame["turns"].([]interface{})
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn in first snapshot, got %d", len(turns))
	}

	deadline := time.After(2 * time.Second)
	for {
		frame = readFrameOfType(t, client, MessageTypeTranscript)
		turns = frame["turns"].([]interface{})
		if len(turns) == 2 {
			last := turns[1].(map[string]interface{})
			if last["text"] != "Try the night market in Taipei." {
				t.Fatalf("unexpected reply text: %v", last["text"])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("reply snapshot never arrived")
		default:
		}
	}
}

func TestCaptureFlowDeliversPendingInput(t *testing.T) {
	capture := &fakeHubCapture{transcript: "find me a beach in Portugal"}
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, capture, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{"type":"capture_start"}`))
	client.voice.FeedAudio([]byte{0x01, 0x02})
	client.processMessage([]byte(`{"type":"capture_end"}`))

	frame := readFrameOfType(t, client, MessageTypePendingInput)
	if frame["text"] != "find me a beach in Portugal" {
		t.Fatalf("unexpected pending input: %v", frame["text"])
	}
	if client.manager.PendingInput() != "find me a beach in Portugal" {
		t.Fatal("pending input not stored on the session")
	}
}

func TestCaptureStartUnsupportedSendsNotice(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, nil, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{"type":"capture_start"}`))

	if frame := readFrame(t, client); frame["type"] != string(MessageTypeNotice) {
		t.Fatalf("expected notice, got %v", frame["type"])
	}
}

func TestOpenSendsGreetingSnapshot(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, nil, nil, "en-US", zap.NewNop())
	client := newTestClient(hub, entities.Anonymous())

	client.processMessage([]byte(`{"type":"open"}`))

	frame := readFrameOfType(t, client, MessageTypeTranscript)
	turns := frame["turns"].([]interface{})
	if len(turns) != 1 {
		t.Fatalf("expected greeting turn, got %d turns", len(turns))
	}
	first := turns[0].(map[string]interface{})
	if first["speaker"] != string(entities.SpeakerOther) {
		t.Fatalf("greeting must come from the assistant, got %v", first["speaker"])
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(&fakeHubGenerator{reply: "ok"}, nil, nil, nil, "en-US", zap.NewNop())
	go hub.Run()

	numClients := 5
	clients := make([]*Client, numClients)
	for i := 0; i < numClients; i++ {
		client := newTestClient(hub, entities.Anonymous())
		client.id = fmt.Sprintf("conn-%d", i)
		clients[i] = client
		hub.register <- client
	}

	time.Sleep(100 * time.Millisecond)
	if got := hub.ActiveConnections(); got != numClients {
		t.Fatalf("expected %d connections, got %d", numClients, got)
	}

	for _, client := range clients {
		hub.unregister <- client
	}

	time.Sleep(100 * time.Millisecond)
	if got := hub.ActiveConnections(); got != 0 {
		t.Fatalf("expected 0 connections, got %d", got)
	}
}
