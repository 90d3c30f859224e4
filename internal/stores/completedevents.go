package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// CompletedEventsStore tracks, per character, the set of event ids that have
// already fired — events are one-shot per §3/§4.3 ("an event that has
// already completed for a character never re-triggers").
type CompletedEventsStore struct {
	client redisclient.Client
}

// NewCompletedEventsStore constructs a CompletedEventsStore over the shared
// redis client.
func NewCompletedEventsStore(client redisclient.Client) (*CompletedEventsStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &CompletedEventsStore{client: client}, nil
}

// Get returns the set of event ids completed for id, or an empty set.
func (s *CompletedEventsStore) Get(ctx context.Context, id string) (map[string]bool, error) {
	data, err := s.client.Get(ctx, completedEventsKey(id)).Result()
	if err == redislib.Nil {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("completed events %s: %v", id, err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, errors.Internalf("completed events %s: unmarshal: %v", id, err)
	}
	set := make(map[string]bool, len(ids))
	for _, eventID := range ids {
		set[eventID] = true
	}
	return set, nil
}

// IsCompleted reports whether eventID has already fired for id.
func (s *CompletedEventsStore) IsCompleted(ctx context.Context, id, eventID string) (bool, error) {
	set, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return set[eventID], nil
}

// MarkCompleted records eventID as fired for id, idempotently.
func (s *CompletedEventsStore) MarkCompleted(ctx context.Context, id, eventID string) error {
	set, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if set[eventID] {
		return nil
	}
	set[eventID] = true
	ids := make([]string, 0, len(set))
	for k := range set {
		ids = append(ids, k)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Internalf("completed events %s: marshal: %v", id, err)
	}
	if err := s.client.Set(ctx, completedEventsKey(id), data, PerCharacterTTL).Err(); err != nil {
		return errors.StoreUnavailablef("completed events %s: %v", id, err)
	}
	return nil
}
