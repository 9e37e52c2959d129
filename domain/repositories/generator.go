package repositories

import (
	"context"
	"errors"
)

// ErrGeneration is the only failure callers see from a reply generator.
// Provider-specific error shapes stay inside the adapter.
var ErrGeneration = errors.New("reply generation failed")

// Role tags a history entry for the reply generator.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ReplyMessage is one entry of the prior-context window.
type ReplyMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ReplyGenerator abstracts the hosted language model. The prompt is the
// live turn; history carries everything before it.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []ReplyMessage, prompt string) (string, error)
}
