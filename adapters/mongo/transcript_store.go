package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

// TranscriptStore persists chat turns in the transcripts collection, one
// document per turn keyed by identity.
type TranscriptStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.TranscriptStore = (*TranscriptStore)(nil)

// NewTranscriptStore creates a MongoDB-backed transcript store.
func NewTranscriptStore(db *mongo.Database, logger *zap.Logger) *TranscriptStore {
	return &TranscriptStore{
		collection: db.Collection("transcripts"),
		logger:     logger,
	}
}

type turnDocument struct {
	Identity  string           `bson:"identity"`
	Speaker   entities.Speaker `bson:"speaker"`
	Text      string           `bson:"text"`
	Origin    entities.Origin  `bson:"origin"`
	CreatedAt time.Time        `bson:"created_at"`
}

// AppendTurn writes one turn. Writes are append-only; turns are never
// updated or deleted.
func (s *TranscriptStore) AppendTurn(ctx context.Context, identity string, turn entities.Turn) error {
	if identity == "" {
		return errors.New("identity cannot be empty")
	}

	doc := turnDocument{
		Identity:  identity,
		Speaker:   turn.Speaker,
		Text:      turn.Text,
		Origin:    turn.Origin,
		CreatedAt: turn.CreatedAt,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// SubscribeOrderedTurns emits the full ordered transcript once up front and
// again after every write for the identity, via a change stream. Each
// snapshot supersedes the previous one; there is no partial merge.
func (s *TranscriptStore) SubscribeOrderedTurns(ctx context.Context, identity string, fn repositories.TranscriptSnapshot) (func(), error) {
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	streamCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "fullDocument.identity", Value: identity}}}},
	}
	stream, err := s.collection.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch transcripts: %w", err)
	}

	// Initial snapshot before any change events arrive.
	turns, err := s.loadOrdered(streamCtx, identity)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, err
	}
	fn(turns)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			turns, err := s.loadOrdered(streamCtx, identity)
			if err != nil {
				if streamCtx.Err() != nil {
					return
				}
				s.logger.Error("failed to reload transcript snapshot",
					zap.String("identity", identity),
					zap.Error(err))
				continue
			}
			fn(turns)
		}
	}()

	return cancel, nil
}

// loadOrdered reads the full transcript for an identity, ascending by
// creation time with insertion order breaking ties.
func (s *TranscriptStore) loadOrdered(ctx context.Context, identity string) ([]entities.Turn, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := s.collection.Find(ctx, bson.M{"identity": identity}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer cursor.Close(ctx)

	var turns []entities.Turn
	for cursor.Next(ctx) {
		var doc turnDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, entities.Turn{
			Speaker:   doc.Speaker,
			Text:      doc.Text,
			Origin:    doc.Origin,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("transcript cursor error: %w", err)
	}
	return turns, nil
}
