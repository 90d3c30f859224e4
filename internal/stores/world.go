package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// WorldStore persists the single global world KV (no TTL). Loaded once at
// process start from the relational catalog's world_state table and
// mutated only by the narrative synthesizer at turn end (spec.md §4.1, §5).
type WorldStore struct {
	client redisclient.Client
}

// NewWorldStore constructs a WorldStore over the shared redis client.
func NewWorldStore(client redisclient.Client) (*WorldStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &WorldStore{client: client}, nil
}

// Get returns the current world state, or an empty map if never seeded.
func (s *WorldStore) Get(ctx context.Context) (map[string]any, error) {
	data, err := s.client.Get(ctx, worldStateKey).Result()
	if err == redislib.Nil {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("world state: %v", err)
	}
	var world map[string]any
	if err := json.Unmarshal([]byte(data), &world); err != nil {
		return nil, errors.Internalf("world state: unmarshal: %v", err)
	}
	return world, nil
}

// Put replaces the world state wholesale (last-writer-wins per §5).
func (s *WorldStore) Put(ctx context.Context, world map[string]any) error {
	data, err := json.Marshal(world)
	if err != nil {
		return errors.Internalf("world state: marshal: %v", err)
	}
	if err := s.client.Set(ctx, worldStateKey, data, 0).Err(); err != nil {
		return errors.StoreUnavailablef("world state: %v", err)
	}
	return nil
}

// Merge overlays changes onto the current world state and writes it back,
// implementing the world_state_change outcome directive (§4.6). A nil
// value removes the key (set_state semantics extend the same way
// everywhere state is overlaid).
func (s *WorldStore) Merge(ctx context.Context, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	world, err := s.Get(ctx)
	if err != nil {
		return err
	}
	for k, v := range changes {
		if v == nil {
			delete(world, k)
			continue
		}
		world[k] = v
	}
	return s.Put(ctx, world)
}
