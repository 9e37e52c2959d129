package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client-to-server message types
const (
	MessageTypeOpen         MessageType = "open"
	MessageTypeClose        MessageType = "close"
	MessageTypeSubmit       MessageType = "submit"
	MessageTypeCaptureStart MessageType = "capture_start"
	MessageTypeCaptureEnd   MessageType = "capture_end"
	MessageTypePing         MessageType = "ping"
)

// Server-to-client message types
const (
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypePendingInput  MessageType = "pending_input"
	MessageTypeNotice        MessageType = "notice"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypeError         MessageType = "error"
	MessageTypePong          MessageType = "pong"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// SubmitMessage carries a prompt from the widget. Origin distinguishes text
// typed into the composer from a voice transcription.
type SubmitMessage struct {
	BaseMessage
	Text   string `json:"text"`
	Origin string `json:"origin,omitempty"`
}

// CaptureStartMessage asks the server to begin a speech capture stream.
// Audio arrives afterwards as binary frames.
type CaptureStartMessage struct {
	BaseMessage
	Locale string `json:"locale,omitempty"`
}

// TurnPayload is the wire form of a single chat turn. Text carries display
// markup so the widget can render line breaks directly.
type TurnPayload struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Origin    string `json:"origin"`
	CreatedAt string `json:"created_at"`
}

// TranscriptMessage replaces the widget's transcript wholesale. Each
// transcript message supersedes the previous one.
type TranscriptMessage struct {
	BaseMessage
	Turns        []TurnPayload `json:"turns"`
	PendingReply bool          `json:"pending_reply"`
}

// PendingInputMessage pushes composer text to the widget, typically a voice
// transcription awaiting review.
type PendingInputMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// NoticeMessage carries a non-fatal advisory, such as voice capture being
// unavailable on this deployment.
type NoticeMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// SpeakingMessage brackets an audio playback stream. Binary frames between
// speaking_start and speaking_end are audio chunks.
type SpeakingMessage struct {
	BaseMessage
	Text string `json:"text,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
}

// ParseClientMessage decodes an incoming text frame into its typed message.
func ParseClientMessage(raw []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeOpen, MessageTypeClose, MessageTypeCaptureEnd, MessageTypePing:
		return &base, nil

	case MessageTypeSubmit:
		var msg SubmitMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid submit message: %w", err)
		}
		return &msg, nil

	case MessageTypeCaptureStart:
		var msg CaptureStartMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid capture_start message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// SubmitOrigin maps a wire origin string onto a turn origin. Anything
// unrecognized is treated as typed input.
func SubmitOrigin(origin string) entities.Origin {
	if origin == string(entities.OriginVoice) {
		return entities.OriginVoice
	}
	return entities.OriginTyped
}

func stamp(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewTranscriptMessage builds a transcript snapshot from chat turns,
// rendering canonical text into display markup.
func NewTranscriptMessage(turns []entities.Turn, pendingReply bool) *TranscriptMessage {
	payload := make([]TurnPayload, 0, len(turns))
	for _, turn := range turns {
		payload = append(payload, TurnPayload{
			Speaker:   string(turn.Speaker),
			Text:      turn.DisplayText(),
			Origin:    string(turn.Origin),
			CreatedAt: turn.CreatedAt.Format(time.RFC3339),
		})
	}
	return &TranscriptMessage{
		BaseMessage:  stamp(MessageTypeTranscript),
		Turns:        payload,
		PendingReply: pendingReply,
	}
}

// NewPendingInputMessage builds a pending_input push.
func NewPendingInputMessage(text string) *PendingInputMessage {
	return &PendingInputMessage{BaseMessage: stamp(MessageTypePendingInput), Text: text}
}

// NewNoticeMessage builds a notice push.
func NewNoticeMessage(message string) *NoticeMessage {
	return &NoticeMessage{BaseMessage: stamp(MessageTypeNotice), Message: message}
}

// NewSpeakingStartMessage brackets the start of audio playback.
func NewSpeakingStartMessage(text string) *SpeakingMessage {
	return &SpeakingMessage{BaseMessage: stamp(MessageTypeSpeakingStart), Text: text}
}

// NewSpeakingEndMessage brackets the end of audio playback.
func NewSpeakingEndMessage() *SpeakingMessage {
	return &SpeakingMessage{BaseMessage: stamp(MessageTypeSpeakingEnd)}
}

// NewErrorMessage builds a standardized error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: stamp(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}

// NewPongMessage builds a pong response.
func NewPongMessage() *PongMessage {
	return &PongMessage{BaseMessage: stamp(MessageTypePong)}
}
