// Package catalog loads the read-mostly relational catalog (spec.md §6:
// characters, attributes, derived_attributes, skills, backgrounds, maps,
// interactable_objects, events, world_state) into the typed domain structs
// the rest of the engine operates on. It follows the teacher's repository
// shape (Config.Validate, New(cfg) (*Loader, error)) applied to a SQL
// backend instead of Redis, per SPEC_FULL.md §4.7.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
)

// Config configures the catalog loader's database connection.
type Config struct {
	DB *sqlx.DB
}

// Validate implements the teacher's Config.Validate() convention.
func (c *Config) Validate() error {
	b := errors.NewValidationBuilder()
	if c.DB == nil {
		b.RequiredField("db")
	}
	return b.Build()
}

// Loader reads the relational catalog. It holds no cache of its own — the
// catalog loader is called once per cold entity (character, map) and the
// result is handed to the KV stores (internal/stores) for the lifetime of
// the process, matching spec.md §4.7's "caching them behind the same store
// interface used for KV reads".
type Loader struct {
	db *sqlx.DB
}

// New constructs a Loader from cfg.
func New(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{db: cfg.DB}, nil
}

type characterRow struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	IfNPC  bool   `db:"if_npc"`
	MapID  string `db:"map_id"`
	Goal   string `db:"goal"`
	Status string `db:"status"`
}

type attributeRow struct {
	CharacterID  string `db:"character_id"`
	Strength     int    `db:"strength"`
	Constitution int    `db:"constitution"`
	Size         int    `db:"size"`
	Dexterity    int    `db:"dexterity"`
	Appearance   int    `db:"appearance"`
	Intelligence int    `db:"intelligence"`
	Power        int    `db:"power"`
	Education    int    `db:"education"`
	Luck         int    `db:"luck"`
}

type derivedAttributeRow struct {
	CharacterID        string `db:"character_id"`
	HitPoints          int    `db:"hit_points"`
	Sanity             int    `db:"sanity"`
	MagicPoints        int    `db:"magic_points"`
	Build              int    `db:"build"`
	MoveRate           int    `db:"move_rate"`
	DamageBonus        string `db:"damage_bonus"`
	InterestPoints     int    `db:"interest_points"`
	ProfessionalPoints int    `db:"professional_points"`
}

type skillRow struct {
	CharacterID string `db:"character_id"`
	SkillName   string `db:"skill_name"`
	Value       int    `db:"value"`
}

type backgroundRow struct {
	CharacterID string `db:"character_id"`
	Key         string `db:"key"`
	Value       string `db:"value"`
}

// LoadCharacter assembles a full domain.CharacterSheet from the characters,
// attributes, derived_attributes, skills and backgrounds tables.
func (l *Loader) LoadCharacter(ctx context.Context, id string) (*domain.CharacterSheet, string, error) {
	var row characterRow
	if err := l.db.GetContext(ctx, &row, `SELECT id, name, if_npc, map_id, goal, status FROM characters WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", errors.EntityMissingf("character %s not found in catalog", id)
		}
		return nil, "", errors.StoreUnavailablef("load character %s: %v", id, err)
	}

	sheet := &domain.CharacterSheet{
		ID:          row.ID,
		Name:        row.Name,
		IfNPC:       row.IfNPC,
		Goal:        row.Goal,
		Status:      row.Status,
		Skills:      map[string]int{},
		Backgrounds: map[string]string{},
	}

	var attrs attributeRow
	if err := l.db.GetContext(ctx, &attrs, `SELECT character_id, strength, constitution, size, dexterity, appearance, intelligence, power, education, luck FROM attributes WHERE character_id = $1`, id); err != nil && err != sql.ErrNoRows {
		return nil, "", errors.StoreUnavailablef("load attributes %s: %v", id, err)
	}
	sheet.Attributes = domain.Attributes{
		Strength: attrs.Strength, Constitution: attrs.Constitution, Size: attrs.Size,
		Dexterity: attrs.Dexterity, Appearance: attrs.Appearance, Intelligence: attrs.Intelligence,
		Power: attrs.Power, Education: attrs.Education, Luck: attrs.Luck,
	}

	var derived derivedAttributeRow
	if err := l.db.GetContext(ctx, &derived, `SELECT character_id, hit_points, sanity, magic_points, build, move_rate, damage_bonus, interest_points, professional_points FROM derived_attributes WHERE character_id = $1`, id); err != nil && err != sql.ErrNoRows {
		return nil, "", errors.StoreUnavailablef("load derived attributes %s: %v", id, err)
	}
	sheet.Derived = domain.DerivedAttributes{
		HitPoints: derived.HitPoints, Sanity: derived.Sanity, MagicPoints: derived.MagicPoints,
		Build: derived.Build, MoveRate: derived.MoveRate, DamageBonus: derived.DamageBonus,
		InterestPoints: derived.InterestPoints, ProfessionalPoints: derived.ProfessionalPoints,
	}

	var skills []skillRow
	if err := l.db.SelectContext(ctx, &skills, `SELECT character_id, skill_name, value FROM skills WHERE character_id = $1`, id); err != nil {
		return nil, "", errors.StoreUnavailablef("load skills %s: %v", id, err)
	}
	for _, s := range skills {
		sheet.Skills[s.SkillName] = s.Value
	}

	var backgrounds []backgroundRow
	if err := l.db.SelectContext(ctx, &backgrounds, `SELECT character_id, key, value FROM backgrounds WHERE character_id = $1`, id); err != nil {
		return nil, "", errors.StoreUnavailablef("load backgrounds %s: %v", id, err)
	}
	for _, b := range backgrounds {
		sheet.Backgrounds[b.Key] = b.Value
	}

	return sheet, row.MapID, nil
}

type mapRow struct {
	MapID               string `db:"map_id"`
	Name                string `db:"name"`
	AccessibleLocations string `db:"accessible_locations"`
}

// LoadMap returns the static catalog row for a map, decoding its JSON
// accessible_locations column.
func (l *Loader) LoadMap(ctx context.Context, mapID string) (*domain.MapCatalogEntry, error) {
	var row mapRow
	if err := l.db.GetContext(ctx, &row, `SELECT map_id, name, accessible_locations FROM maps WHERE map_id = $1`, mapID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.EntityMissingf("map %s not found in catalog", mapID)
		}
		return nil, errors.StoreUnavailablef("load map %s: %v", mapID, err)
	}
	var accessible []string
	if row.AccessibleLocations != "" {
		if err := json.Unmarshal([]byte(row.AccessibleLocations), &accessible); err != nil {
			return nil, errors.Internalf("map %s: accessible_locations: %v", mapID, err)
		}
	}
	return &domain.MapCatalogEntry{MapID: row.MapID, Name: row.Name, AccessibleLocations: accessible}, nil
}

type interactableObjectRow struct {
	ObjectID     string `db:"object_id"`
	Name         string `db:"name"`
	MapID        string `db:"map_id"`
	CurrentState string `db:"current_state"`
}

// LoadInteractableObjects returns every object catalog entry for a map,
// decoding each row's current_state JSON column into its default state.
func (l *Loader) LoadInteractableObjects(ctx context.Context, mapID string) ([]domain.InteractableObjectCatalogEntry, error) {
	var rows []interactableObjectRow
	if err := l.db.SelectContext(ctx, &rows, `SELECT object_id, name, map_id, current_state FROM interactable_objects WHERE map_id = $1`, mapID); err != nil {
		return nil, errors.StoreUnavailablef("load interactable objects %s: %v", mapID, err)
	}
	out := make([]domain.InteractableObjectCatalogEntry, 0, len(rows))
	for _, r := range rows {
		state := map[string]any{}
		if r.CurrentState != "" {
			if err := json.Unmarshal([]byte(r.CurrentState), &state); err != nil {
				return nil, errors.Internalf("object %s: current_state: %v", r.ObjectID, err)
			}
		}
		out = append(out, domain.InteractableObjectCatalogEntry{
			ObjectID: r.ObjectID, Name: r.Name, MapID: r.MapID, DefaultState: state,
		})
	}
	return out, nil
}

type eventRow struct {
	EventID           int    `db:"event_id"`
	MapID             string `db:"map_id"`
	EventInfo         string `db:"event_info"`
	Preconditions     string `db:"preconditions"`
	PreEventIDs       string `db:"pre_event_ids"`
	IfUnique          bool   `db:"if_unique"`
	Effects           string `db:"effects"`
	TestRequiredID    int    `db:"test_required_id"`
	HardLevel         int    `db:"hard_level"`
	SuccessResultInfo string `db:"success_result_info"`
	FailResultInfo    string `db:"fail_result_info"`
}

// LoadEvents returns every event catalog row for a map, decoding the three
// JSON columns (preconditions, pre_event_ids, effects) into their typed
// fields (spec.md §6).
func (l *Loader) LoadEvents(ctx context.Context, mapID string) ([]domain.Event, error) {
	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, `SELECT event_id, map_id, event_info, preconditions, pre_event_ids, if_unique, effects, test_required_id, hard_level, success_result_info, fail_result_info FROM events WHERE map_id = $1`, mapID); err != nil {
		return nil, errors.StoreUnavailablef("load events %s: %v", mapID, err)
	}
	out := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		var preconditions domain.Preconditions
		if r.Preconditions != "" {
			if err := json.Unmarshal([]byte(r.Preconditions), &preconditions); err != nil {
				return nil, errors.Internalf("event %d: preconditions: %v", r.EventID, err)
			}
		}
		var preEventIDs []int
		if r.PreEventIDs != "" {
			if err := json.Unmarshal([]byte(r.PreEventIDs), &preEventIDs); err != nil {
				return nil, errors.Internalf("event %d: pre_event_ids: %v", r.EventID, err)
			}
		}
		var effects domain.Effects
		if r.Effects != "" {
			if err := json.Unmarshal([]byte(r.Effects), &effects); err != nil {
				return nil, errors.Internalf("event %d: effects: %v", r.EventID, err)
			}
		}
		out = append(out, domain.Event{
			EventID:           r.EventID,
			MapID:             r.MapID,
			EventInfo:         r.EventInfo,
			Preconditions:     preconditions,
			PreEventIDs:       preEventIDs,
			IfUnique:          r.IfUnique,
			Effects:           effects,
			TestRequiredID:    r.TestRequiredID,
			HardLevel:         r.HardLevel,
			SuccessResultInfo: r.SuccessResultInfo,
			FailResultInfo:    r.FailResultInfo,
		})
	}
	return out, nil
}

type worldStateRow struct {
	StateKey   string `db:"state_key"`
	StateValue string `db:"state_value"`
}

// LoadWorldState returns the seed world KV loaded once at process start
// (spec.md §5: "the process-wide state at startup is the world KV seed
// loaded once from the relational catalog").
func (l *Loader) LoadWorldState(ctx context.Context) (map[string]any, error) {
	var rows []worldStateRow
	if err := l.db.SelectContext(ctx, &rows, `SELECT state_key, state_value FROM world_state`); err != nil {
		return nil, errors.StoreUnavailablef("load world state: %v", err)
	}
	world := make(map[string]any, len(rows))
	for _, r := range rows {
		var v any
		if err := json.Unmarshal([]byte(r.StateValue), &v); err != nil {
			return nil, errors.Internalf("world state %s: %v", r.StateKey, err)
		}
		world[r.StateKey] = v
	}
	return world, nil
}

// LoadNPCIDsForMap returns the ids of every NPC-flagged character catalogued
// against mapID, used to seed a freshly-visited map's NPC set (spec.md §4.8).
func (l *Loader) LoadNPCIDsForMap(ctx context.Context, mapID string) ([]string, error) {
	var ids []string
	if err := l.db.SelectContext(ctx, &ids, `SELECT id FROM characters WHERE if_npc = true AND map_id = $1`, mapID); err != nil {
		return nil, errors.StoreUnavailablef("load npc ids for map %s: %v", mapID, err)
	}
	return ids, nil
}
