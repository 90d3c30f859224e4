package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// MapStateStore persists per-map state: the set of NPCs present, the
// overlay state of interactable objects, and accessible neighboring maps
// (spec.md §3, §4.1). No TTL — map state is process-lifetime, same as
// world state, since a map never "expires" independent of the campaign.
type MapStateStore struct {
	client redisclient.Client
}

// NewMapStateStore constructs a MapStateStore over the shared redis client.
func NewMapStateStore(client redisclient.Client) (*MapStateStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &MapStateStore{client: client}, nil
}

// Get returns the map state for mapID, or errors.EntityMissing if it has
// never been loaded (the caller is expected to have seeded it via the
// catalog loader on first visit — see internal/catalog).
func (s *MapStateStore) Get(ctx context.Context, mapID string) (*domain.MapState, error) {
	data, err := s.client.Get(ctx, mapStateKey(mapID)).Result()
	if err == redislib.Nil {
		return nil, errors.EntityMissingf("map state %s not loaded", mapID)
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("map state %s: %v", mapID, err)
	}
	var m domain.MapState
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, errors.Internalf("map state %s: unmarshal: %v", mapID, err)
	}
	return &m, nil
}

// Put replaces the map state wholesale.
func (s *MapStateStore) Put(ctx context.Context, m *domain.MapState) error {
	if m == nil || m.MapID == "" {
		return errors.InvalidArgument("map state requires a map id")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Internalf("map state %s: marshal: %v", m.MapID, err)
	}
	if err := s.client.Set(ctx, mapStateKey(m.MapID), data, 0).Err(); err != nil {
		return errors.StoreUnavailablef("map state %s: %v", m.MapID, err)
	}
	return nil
}

// Exists reports whether a map has ever been loaded into the store.
func (s *MapStateStore) Exists(ctx context.Context, mapID string) (bool, error) {
	n, err := s.client.Exists(ctx, mapStateKey(mapID)).Result()
	if err != nil {
		return false, errors.StoreUnavailablef("map state %s: %v", mapID, err)
	}
	return n > 0, nil
}
