package stores

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

// SheetStore persists character sheets: immutable during a session except
// the NPC status/goal write-through of §4.5. No TTL, same as the teacher's
// character repository (internal/repositories/character/redis.go), which
// never expires a character's static record either.
type SheetStore struct {
	client redisclient.Client
}

// NewSheetStore constructs a SheetStore over the shared redis client.
func NewSheetStore(client redisclient.Client) (*SheetStore, error) {
	if client == nil {
		return nil, errors.InvalidArgument("redis client is required")
	}
	return &SheetStore{client: client}, nil
}

// Get retrieves a character sheet by id, or errors.EntityMissing if absent.
func (s *SheetStore) Get(ctx context.Context, id string) (*domain.CharacterSheet, error) {
	if id == "" {
		return nil, errors.InvalidArgument("character id is required")
	}
	data, err := s.client.Get(ctx, characterSheetKey(id)).Result()
	if err == redislib.Nil {
		return nil, errors.EntityMissingf("character sheet %s not found", id)
	}
	if err != nil {
		return nil, errors.StoreUnavailablef("character sheet %s: %v", id, err)
	}
	var sheet domain.CharacterSheet
	if err := json.Unmarshal([]byte(data), &sheet); err != nil {
		return nil, errors.Internalf("character sheet %s: unmarshal: %v", id, err)
	}
	return &sheet, nil
}

// Put writes a character sheet wholesale (used for initial load and for
// the NPC status/goal write-through after the reactor loop).
func (s *SheetStore) Put(ctx context.Context, sheet *domain.CharacterSheet) error {
	if sheet == nil || sheet.ID == "" {
		return errors.InvalidArgument("character sheet requires an id")
	}
	data, err := json.Marshal(sheet)
	if err != nil {
		return errors.Internalf("character sheet %s: marshal: %v", sheet.ID, err)
	}
	if err := s.client.Set(ctx, characterSheetKey(sheet.ID), data, 0).Err(); err != nil {
		return errors.StoreUnavailablef("character sheet %s: %v", sheet.ID, err)
	}
	return nil
}

// Exists reports whether a sheet has been loaded for id.
func (s *SheetStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, characterSheetKey(id)).Result()
	if err != nil {
		return false, errors.StoreUnavailablef("character sheet %s: %v", id, err)
	}
	return n > 0, nil
}

// UpdateStatusGoal applies the NPC reactor's status/goal write-through
// (§4.5 step 4) without requiring the caller to hold a full sheet in hand.
func (s *SheetStore) UpdateStatusGoal(ctx context.Context, id, newStatus, newGoal string) error {
	sheet, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if newStatus != "" {
		sheet.Status = newStatus
	}
	if newGoal != "" {
		sheet.Goal = newGoal
	}
	return s.Put(ctx, sheet)
}
