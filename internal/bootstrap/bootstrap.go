// Package bootstrap implements the supplemental Catalog Loader wiring and
// Session Bootstrap operation (SPEC_FULL.md §4.7/§4.8): hydrating a cold
// character or map from the relational catalog into the KV stores the rest
// of the engine reads from, so the turn pipeline never distinguishes "came
// from SQL" from "came from Redis".
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/ai-trpg/keeper/internal/catalog"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/stores"
)

// Config holds the bootstrapper's dependencies.
type Config struct {
	Catalog  *catalog.Loader
	Sheets   *stores.SheetStore
	Sessions *stores.SessionStore
	Maps     *stores.MapStateStore
	World    *stores.WorldStore
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Catalog == nil {
		vb.RequiredField("Catalog")
	}
	if c.Sheets == nil {
		vb.RequiredField("Sheets")
	}
	if c.Sessions == nil {
		vb.RequiredField("Sessions")
	}
	if c.Maps == nil {
		vb.RequiredField("Maps")
	}
	if c.World == nil {
		vb.RequiredField("World")
	}
	return vb.Build()
}

// Bootstrapper hydrates cold characters and maps from the relational
// catalog into the KV stores on demand.
type Bootstrapper struct {
	catalog  *catalog.Loader
	sheets   *stores.SheetStore
	sessions *stores.SessionStore
	maps     *stores.MapStateStore
	world    *stores.WorldStore
}

// New constructs a Bootstrapper from cfg.
func New(cfg Config) (*Bootstrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Bootstrapper{
		catalog: cfg.Catalog, sheets: cfg.Sheets, sessions: cfg.Sessions,
		maps: cfg.Maps, world: cfg.World,
	}, nil
}

// LoadEventsForMap passes through to the catalog loader for mapID's events.
// Events are read-mostly catalog rows; unlike characters and maps, they are
// not cached in a KV store of their own, since the trigger evaluator needs
// a fresh, complete set every turn rather than a lazily-seeded snapshot.
func (b *Bootstrapper) LoadEventsForMap(ctx context.Context, mapID string) ([]domain.Event, error) {
	return b.catalog.LoadEvents(ctx, mapID)
}

// SeedWorldState loads the catalog's world_state rows into the world KV if
// it has never been written, once at process start (spec.md §5).
func (b *Bootstrapper) SeedWorldState(ctx context.Context) error {
	existing, err := b.world.Get(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	seed, err := b.catalog.LoadWorldState(ctx)
	if err != nil {
		return err
	}
	return b.world.Put(ctx, seed)
}

// EnsureCharacter returns the character sheet for id, loading it from the
// catalog into the sheet store on first touch. The returned map id is the
// catalog's starting map and is only meaningful on a cold load — a warm
// sheet returns an empty map id, since its session (if any) already knows
// its current map.
func (b *Bootstrapper) EnsureCharacter(ctx context.Context, id string) (*domain.CharacterSheet, string, error) {
	sheet, err := b.sheets.Get(ctx, id)
	if err == nil {
		return sheet, "", nil
	}
	if !errors.IsEntityMissing(err) {
		return nil, "", err
	}

	sheet, mapID, err := b.catalog.LoadCharacter(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := b.sheets.Put(ctx, sheet); err != nil {
		return nil, "", err
	}
	return sheet, mapID, nil
}

// EnsureMap returns the dynamic map state for mapID, seeding it from the
// catalog's static map and interactable-object rows on first visit (spec.md
// §3 supplement: "if map state does not exist, initialize it from the
// database").
func (b *Bootstrapper) EnsureMap(ctx context.Context, mapID string) (*domain.MapState, error) {
	exists, err := b.maps.Exists(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if exists {
		return b.maps.Get(ctx, mapID)
	}
	return b.loadMapFromCatalog(ctx, mapID)
}

// ReloadMap re-reads mapID's map, interactable-object, and NPC-roster rows
// from the relational catalog and overwrites the cached map state
// regardless of whether it already existed. This backs the operator-facing
// catalog reload route (SPEC_FULL.md §9): unlike EnsureMap, it never trusts
// an already-seeded map state.
func (b *Bootstrapper) ReloadMap(ctx context.Context, mapID string) (*domain.MapState, error) {
	return b.loadMapFromCatalog(ctx, mapID)
}

// loadMapFromCatalog reads mapID's static rows from SQL and writes the
// resulting map state, unconditionally.
func (b *Bootstrapper) loadMapFromCatalog(ctx context.Context, mapID string) (*domain.MapState, error) {
	entry, err := b.catalog.LoadMap(ctx, mapID)
	if err != nil {
		return nil, err
	}
	objectRows, err := b.catalog.LoadInteractableObjects(ctx, mapID)
	if err != nil {
		return nil, err
	}
	npcIDs, err := b.catalog.LoadNPCIDsForMap(ctx, mapID)
	if err != nil {
		return nil, err
	}

	objects := make(map[string]map[string]any, len(objectRows))
	for _, o := range objectRows {
		objects[o.ObjectID] = o.DefaultState
	}

	m := &domain.MapState{
		MapID:          entry.MapID,
		NPCs:           npcIDs,
		Objects:        objects,
		AccessibleMaps: entry.AccessibleLocations,
	}
	if err := b.maps.Put(ctx, m); err != nil {
		return nil, err
	}

	if err := b.ensureNPCSessions(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("bootstrap: seeded map state from catalog", "map_id", mapID, "npc_count", len(npcIDs), "object_count", len(objects))
	return m, nil
}

// CharacterEntered implements spec.md §4.8's character_entered operation:
// load (or seed) the character sheet, lazily materialize its session,
// ensure the character's current map is loaded, and bootstrap every NPC on
// that map so the reactor loop never special-cases a first appearance.
func (b *Bootstrapper) CharacterEntered(ctx context.Context, characterID string) (*domain.CharacterSheet, *domain.SessionState, *domain.MapState, error) {
	sheet, catalogMapID, err := b.EnsureCharacter(ctx, characterID)
	if err != nil {
		return nil, nil, nil, err
	}

	sess, err := b.sessions.GetOrMaterialize(ctx, b.sheets, characterID, catalogMapID)
	if err != nil {
		return nil, nil, nil, err
	}

	mapState, err := b.EnsureMap(ctx, sess.CurrentMapID)
	if err != nil {
		return nil, nil, nil, err
	}

	return sheet, sess, mapState, nil
}

// ensureNPCSessions bootstraps every NPC's sheet and session state so the
// reactor loop can run over m.NPCs without special-casing a cold NPC.
func (b *Bootstrapper) ensureNPCSessions(ctx context.Context, m *domain.MapState) error {
	for _, npcID := range m.NPCs {
		if _, _, err := b.EnsureCharacter(ctx, npcID); err != nil {
			return err
		}
		if _, err := b.sessions.GetOrMaterialize(ctx, b.sheets, npcID, m.MapID); err != nil {
			return err
		}
	}
	return nil
}
