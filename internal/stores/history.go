package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// HistoryStore persists per-character conversation history with the
// standard 24h TTL (spec.md §3, §4.1).
type HistoryStore struct {
	client redisclient.Client
}

// NewHistoryStore constructs a HistoryStore over the shared redis client.
func NewHistoryStore(client redisclient.Client) (*HistoryStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &HistoryStore{client: client}, nil
}

// Get returns the conversation history for id, or an empty slice if none.
func (s *HistoryStore) Get(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	data, err := s.client.Get(ctx, conversationHistoryKey(id)).Result()
	if err == redislib.Nil {
		return []domain.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("conversation history %s: %v", id, err)
	}
	var hist []domain.HistoryEntry
	if err := json.Unmarshal([]byte(data), &hist); err != nil {
		return nil, errors.Internalf("conversation history %s: unmarshal: %v", id, err)
	}
	return hist, nil
}

// Put replaces the conversation history for id with the standard TTL.
func (s *HistoryStore) Put(ctx context.Context, id string, hist []domain.HistoryEntry) error {
	data, err := json.Marshal(hist)
	if err != nil {
		return errors.Internalf("conversation history %s: marshal: %v", id, err)
	}
	if err := s.client.Set(ctx, conversationHistoryKey(id), data, PerCharacterTTL).Err(); err != nil {
		return errors.StoreUnavailablef("conversation history %s: %v", id, err)
	}
	return nil
}

// Append appends exactly one player/keeper pair and writes the result back
// (spec.md §3 invariant: "every turn appends exactly two entries").
func (s *HistoryStore) Append(ctx context.Context, id, playerInput, keeperReply string) error {
	hist, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	hist = append(hist,
		domain.HistoryEntry{Role: domain.RolePlayer, Content: playerInput},
		domain.HistoryEntry{Role: domain.RoleKeeper, Content: keeperReply},
	)
	return s.Put(ctx, id, hist)
}
