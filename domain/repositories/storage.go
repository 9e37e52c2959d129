package repositories

import (
	"context"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
)

// TranscriptSnapshot delivers the full ordered transcript for an identity.
// Each emission supersedes local state wholesale; consumers must not merge.
type TranscriptSnapshot func(turns []entities.Turn)

// TranscriptStore persists chat turns per identity. Ordering key is
// ascending creation time, ties broken by insertion order.
type TranscriptStore interface {
	// AppendTurn writes one turn. Writes are append-only.
	AppendTurn(ctx context.Context, identity string, turn entities.Turn) error
	// SubscribeOrderedTurns emits an initial snapshot and then one snapshot
	// per store change until the returned unsubscribe func is called.
	SubscribeOrderedTurns(ctx context.Context, identity string, fn TranscriptSnapshot) (func(), error)
}
