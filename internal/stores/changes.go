package stores

import (
	"context"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
)

// ChangeApplier applies the state_changes and map_state_change directives
// parsed out of an event's OutcomeBlock (spec.md §4.1: "apply_state_changes
// and apply_map_state_changes are the critical primitive every outcome
// funnels through"). It touches sheets, sessions and map state, so it wraps
// all four stores rather than living on any single one of them.
type ChangeApplier struct {
	sheets   *SheetStore
	sessions *SessionStore
	maps     *MapStateStore
	world    *WorldStore
}

// NewChangeApplier constructs a ChangeApplier over the given stores.
func NewChangeApplier(sheets *SheetStore, sessions *SessionStore, maps *MapStateStore, world *WorldStore) (*ChangeApplier, error) {
	if sheets == nil || sessions == nil || maps == nil || world == nil {
		return nil, errors.InvalidArgument("all four stores are required")
	}
	return &ChangeApplier{sheets: sheets, sessions: sessions, maps: maps, world: world}, nil
}

// ApplyStateChanges resolves each StateChange against "player" (playerID) or
// an explicit NPC character id, routing sanity/MP/HP deltas into session
// state and everything else into the sheet (spec.md §6: "updates to sanity
// (10), MP (11), HP (13) flow into session state; all other attribute ids
// flow into the character sheet"). Changes are applied one at a time and in
// order; a failure partway through still leaves earlier changes committed,
// since the turn orchestrator only calls this after every precondition has
// already been checked (§5: "turns never half-commit" governs the turn as a
// whole, not this inner loop over already-validated directives).
func (a *ChangeApplier) ApplyStateChanges(ctx context.Context, playerID string, changes []domain.StateChange) error {
	for _, change := range changes {
		targetID := change.Target
		if targetID == "player" || targetID == "" {
			targetID = playerID
		}
		if err := a.applyOne(ctx, targetID, change); err != nil {
			return err
		}
	}
	return nil
}

func (a *ChangeApplier) applyOne(ctx context.Context, targetID string, change domain.StateChange) error {
	if len(change.SetState) > 0 {
		sess, err := a.sessions.GetOrMaterialize(ctx, a.sheets, targetID, "")
		if err != nil {
			return err
		}
		applySetState(sess, change.SetState)
		return a.sessions.Put(ctx, targetID, sess)
	}
	if change.AttributeID == 0 {
		return nil
	}
	def, ok := domain.AttributeByID(change.AttributeID)
	if !ok {
		return errors.InvalidArgumentf("unknown attribute id %d", change.AttributeID)
	}
	switch change.AttributeID {
	case domain.AttrIDSanity, domain.AttrIDMP, domain.AttrIDHP:
		sess, err := a.sessions.GetOrMaterialize(ctx, a.sheets, targetID, "")
		if err != nil {
			return err
		}
		switch change.AttributeID {
		case domain.AttrIDSanity:
			sess.Sanity = domain.ClampNonNegative(sess.Sanity + change.Change)
		case domain.AttrIDMP:
			sess.MP = domain.ClampNonNegative(sess.MP + change.Change)
		case domain.AttrIDHP:
			sess.HP = domain.ClampNonNegative(sess.HP + change.Change)
		}
		return a.sessions.Put(ctx, targetID, sess)
	default:
		sheet, err := a.sheets.Get(ctx, targetID)
		if err != nil {
			return err
		}
		switch def.Kind {
		case domain.KindSkill:
			if sheet.Skills == nil {
				sheet.Skills = map[string]int{}
			}
			sheet.Skills[def.Name] = domain.ClampNonNegative(sheet.Skills[def.Name] + change.Change)
		case domain.KindCore:
			applyCoreDelta(&sheet.Attributes, def.Name, change.Change)
		default:
			applyDerivedDelta(&sheet.Derived, def.Name, change.Change)
		}
		return a.sheets.Put(ctx, sheet)
	}
}

// applySetState overlays a set_state directive onto a session, matching
// original_source/backend/redis_manager.py's apply_state_changes: known
// session fields get their typed slot, everything else lands in Extra —
// and a null value clears the target rather than being dropped.
func applySetState(sess *domain.SessionState, setState map[string]any) {
	for k, v := range setState {
		switch k {
		case "current_vehicle_id":
			sess.CurrentVehicleID = stringOrZero(v)
		case "current_map_id":
			sess.CurrentMapID = stringOrZero(v)
		case "pending_check_event_id":
			sess.PendingCheckEventID = intPtrOrNil(v)
		default:
			if sess.Extra == nil {
				sess.Extra = map[string]any{}
			}
			sess.Extra[k] = v
		}
	}
}

func stringOrZero(v any) string {
	s, _ := v.(string)
	return s
}

func intPtrOrNil(v any) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	default:
		return nil
	}
}

func applyCoreDelta(attrs *domain.Attributes, name string, delta int) {
	switch name {
	case "strength":
		attrs.Strength = domain.ClampNonNegative(attrs.Strength + delta)
	case "constitution":
		attrs.Constitution = domain.ClampNonNegative(attrs.Constitution + delta)
	case "size":
		attrs.Size = domain.ClampNonNegative(attrs.Size + delta)
	case "dexterity":
		attrs.Dexterity = domain.ClampNonNegative(attrs.Dexterity + delta)
	case "appearance":
		attrs.Appearance = domain.ClampNonNegative(attrs.Appearance + delta)
	case "intelligence":
		attrs.Intelligence = domain.ClampNonNegative(attrs.Intelligence + delta)
	case "power":
		attrs.Power = domain.ClampNonNegative(attrs.Power + delta)
	case "education":
		attrs.Education = domain.ClampNonNegative(attrs.Education + delta)
	case "luck":
		attrs.Luck = domain.ClampNonNegative(attrs.Luck + delta)
	}
}

func applyDerivedDelta(d *domain.DerivedAttributes, name string, delta int) {
	switch name {
	case "magic_points":
		d.MagicPoints = domain.ClampNonNegative(d.MagicPoints + delta)
	case "build":
		d.Build = domain.ClampNonNegative(d.Build + delta)
	case "hit_points":
		d.HitPoints = domain.ClampNonNegative(d.HitPoints + delta)
	case "move_rate":
		d.MoveRate = domain.ClampNonNegative(d.MoveRate + delta)
	case "interest_points":
		d.InterestPoints = domain.ClampNonNegative(d.InterestPoints + delta)
	case "professional_points":
		d.ProfessionalPoints = domain.ClampNonNegative(d.ProfessionalPoints + delta)
	}
}

// ApplyNPCStateChanges write-throughs each NPC's new_status to its sheet
// (§4.5 step 4).
func (a *ChangeApplier) ApplyNPCStateChanges(ctx context.Context, changes []domain.NPCStateChange) error {
	for _, c := range changes {
		if err := a.sheets.UpdateStatusGoal(ctx, c.CharacterID, c.NewStatus, ""); err != nil {
			return err
		}
	}
	return nil
}

// ApplyWorldStateChange merges a world_state_change directive.
func (a *ChangeApplier) ApplyWorldStateChange(ctx context.Context, changes map[string]any) error {
	return a.world.Merge(ctx, changes)
}

// ApplyMapStateChanges resolves accessibility-edge directives against the
// map state store, creating the destination map's state record is not this
// function's job — only mapID's own state is mutated (§4.1: accessibility
// edges are recorded on the map they originate from).
func (a *ChangeApplier) ApplyMapStateChanges(ctx context.Context, mapID string, change *domain.MapStateChange) error {
	if change == nil || len(change.ModifyLocationAccessible) == 0 {
		return nil
	}
	m, err := a.maps.Get(ctx, mapID)
	if err != nil {
		return err
	}
	for _, edge := range change.ModifyLocationAccessible {
		m.ApplyAccessibilityEdge(edge)
	}
	return a.maps.Put(ctx, m)
}

// ApplyObjectStateChanges overlays each object's set_state blob onto the
// map's object overlay (§4.1).
func (a *ChangeApplier) ApplyObjectStateChanges(ctx context.Context, mapID string, changes []domain.ObjectStateChange) error {
	if len(changes) == 0 {
		return nil
	}
	m, err := a.maps.Get(ctx, mapID)
	if err != nil {
		return err
	}
	if m.Objects == nil {
		m.Objects = map[string]map[string]any{}
	}
	for _, c := range changes {
		overlay, ok := m.Objects[c.ObjectID]
		if !ok || overlay == nil {
			overlay = map[string]any{}
		}
		for k, v := range c.SetState {
			overlay[k] = v
		}
		m.Objects[c.ObjectID] = overlay
	}
	return a.maps.Put(ctx, m)
}

// ApplyOutcome funnels an entire resolved OutcomeBlock through the five
// directive families in turn: this is the single entry point the narrative
// synthesizer calls (§4.6).
func (a *ChangeApplier) ApplyOutcome(ctx context.Context, playerID, mapID string, outcome *domain.OutcomeBlock) error {
	if outcome == nil {
		return nil
	}
	if err := a.ApplyStateChanges(ctx, playerID, outcome.StateChanges); err != nil {
		return err
	}
	if err := a.ApplyNPCStateChanges(ctx, outcome.NPCStateChange); err != nil {
		return err
	}
	if err := a.ApplyWorldStateChange(ctx, outcome.WorldStateChange); err != nil {
		return err
	}
	if err := a.ApplyMapStateChanges(ctx, mapID, outcome.MapStateChange); err != nil {
		return err
	}
	return a.ApplyObjectStateChanges(ctx, mapID, outcome.ObjectStateChange)
}
