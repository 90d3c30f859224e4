package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// SessionStore persists per-character dynamic session state with a 24h
// TTL, the same lifetime the teacher's character_draft repository gives
// its drafts (internal/repositories/character_draft/redis.go).
type SessionStore struct {
	client redisclient.Client
}

// NewSessionStore constructs a SessionStore over the shared redis client.
func NewSessionStore(client redisclient.Client) (*SessionStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &SessionStore{client: client}, nil
}

// Get retrieves session state for id. Returns errors.EntityMissing if
// absent — callers that want lazy materialization should use
// GetOrMaterialize instead.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.SessionState, error) {
	data, err := s.client.Get(ctx, sessionStateKey(id)).Result()
	if err == redislib.Nil {
		return nil, errors.EntityMissingf("session state %s not found", id)
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("session state %s: %v", id, err)
	}
	var sess domain.SessionState
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, errors.Internalf("session state %s: unmarshal: %v", id, err)
	}
	return &sess, nil
}

// Put writes session state for id with the standard per-character TTL.
func (s *SessionStore) Put(ctx context.Context, id string, sess *domain.SessionState) error {
	if id == "" {
		return errors.InvalidArgument("character id is required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Internalf("session state %s: marshal: %v", id, err)
	}
	if err := s.client.Set(ctx, sessionStateKey(id), data, PerCharacterTTL).Err(); err != nil {
		return errors.StoreUnavailablef("session state %s: %v", id, err)
	}
	return nil
}

// GetOrMaterialize returns the existing session for id, or lazily
// materializes one from the character's sheet derived attributes and the
// given default map id if none exists yet (spec.md §4.1: "lazily
// materializes missing session state from the character sheet's derived
// attributes").
func (s *SessionStore) GetOrMaterialize(ctx context.Context, sheetStore *SheetStore, id, defaultMapID string) (*domain.SessionState, error) {
	sess, err := s.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.IsEntityMissing(err) {
		return nil, err
	}
	sheet, sheetErr := sheetStore.Get(ctx, id)
	if sheetErr != nil {
		return nil, sheetErr
	}
	newSess := domain.NewSessionFromSheet(sheet, defaultMapID)
	if putErr := s.Put(ctx, id, newSess); putErr != nil {
		return nil, putErr
	}
	return newSess, nil
}
