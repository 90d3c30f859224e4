package domain

import "encoding/json"

// Event is a read-only catalog entry describing one scripted scenario beat,
// keyed to a map and gated by preconditions (spec.md §3/§6). The catalog
// loader scans the relational columns named in §6 and unmarshals the three
// JSON columns (preconditions, pre_event_ids, effects) into the typed
// fields below.
type Event struct {
	EventID           int
	MapID             string
	EventInfo         string
	Preconditions     Preconditions
	PreEventIDs       []int
	IfUnique          bool
	Effects           Effects
	TestRequiredID    int // -1 = no check
	HardLevel         int // 1, 2, 3
	SuccessResultInfo string
	FailResultInfo    string
}

// RequiresCheck reports whether this event gates on a skill check
// (test_required_id != -1).
func (e *Event) RequiresCheck() bool {
	return e.TestRequiredID != -1
}

// Preconditions is the structured-precondition comparison document matched
// field-by-field against the parsed Action and session snapshots (§4.3).
type Preconditions struct {
	PlayerAction      *ActionPrecondition `json:"player_action,omitempty"`
	AgentID           string              `json:"agent_id,omitempty"`
	CurrentLocationID string              `json:"current_location_id,omitempty"`
}

// ActionPrecondition matches fields of the parsed Action.
type ActionPrecondition struct {
	Intent string `json:"intent,omitempty"`
	Target string `json:"target,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

// Effects is the JSON document stored in events.effects (§6 "Event effects
// schema").
type Effects struct {
	SkillCheck *SkillCheckGate `json:"skill_check,omitempty"`
	Outcomes   Outcomes        `json:"outcomes"`
}

// SkillCheckGate names the skill check an event requires before resolving.
type SkillCheckGate struct {
	Required    bool   `json:"required"`
	SkillID     int    `json:"skill_id"`
	Difficulty  int    `json:"difficulty"`
	CharacterID string `json:"character_id,omitempty"`
}

// Outcomes holds the branches of an event's resolution. The wire format
// allows either {success, failure, suspense_narrative} (when the event has
// a skill check) or a flat OutcomeBlock directly (when it does not) — see
// UnmarshalJSON.
type Outcomes struct {
	SuspenseNarrative string        `json:"suspense_narrative,omitempty"`
	Success           *OutcomeBlock `json:"success,omitempty"`
	Failure           *OutcomeBlock `json:"failure,omitempty"`
	Flat              *OutcomeBlock `json:"-"`
}

// UnmarshalJSON implements the "branches OR flat block" shape documented in
// spec.md §6.
func (o *Outcomes) UnmarshalJSON(data []byte) error {
	var probe struct {
		SuspenseNarrative string          `json:"suspense_narrative"`
		Success           json.RawMessage `json:"success"`
		Failure           json.RawMessage `json:"failure"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	o.SuspenseNarrative = probe.SuspenseNarrative
	if probe.Success == nil && probe.Failure == nil {
		flat := &OutcomeBlock{}
		if err := json.Unmarshal(data, flat); err != nil {
			return err
		}
		o.Flat = flat
		return nil
	}
	if probe.Success != nil {
		o.Success = &OutcomeBlock{}
		if err := json.Unmarshal(probe.Success, o.Success); err != nil {
			return err
		}
	}
	if probe.Failure != nil {
		o.Failure = &OutcomeBlock{}
		if err := json.Unmarshal(probe.Failure, o.Failure); err != nil {
			return err
		}
	}
	return nil
}

// OutcomeBlock is the payload describing all state mutations attributable
// to one branch of one event (§6).
type OutcomeBlock struct {
	Narrative          string              `json:"narrative,omitempty"`
	NarrativeInjection string              `json:"narrative_injection,omitempty"`
	StateChanges       []StateChange       `json:"state_changes,omitempty"`
	NPCStateChange     []NPCStateChange    `json:"npc_state_change,omitempty"`
	WorldStateChange   map[string]any      `json:"world_state_change,omitempty"`
	MapStateChange     *MapStateChange     `json:"map_state_change,omitempty"`
	ObjectStateChange  []ObjectStateChange `json:"object_state_change,omitempty"`
}

// StateChange is either a numeric attribute delta or an arbitrary overwrite,
// targeting "player" or an NPC by id.
type StateChange struct {
	Target      string         `json:"target"`
	AttributeID int            `json:"attribute_id,omitempty"`
	Change      int            `json:"change,omitempty"`
	SetState    map[string]any `json:"set_state,omitempty"`
}

// NPCStateChange writes an NPC's status field through to its sheet.
type NPCStateChange struct {
	CharacterID string `json:"character_id"`
	NewStatus   string `json:"new_status"`
}

// MapStateChange mutates map accessibility.
type MapStateChange struct {
	ModifyLocationAccessible []AccessibilityEdge `json:"modify_location_accessible,omitempty"`
}

// AccessibilityEdge adds or removes a directed accessibility edge.
type AccessibilityEdge struct {
	FromMap string `json:"from_map"`
	ToMap   string `json:"to_map"`
	Action  string `json:"action"` // "add" | "remove"
}

// ObjectStateChange overlays a set_state blob onto a map object.
type ObjectStateChange struct {
	ObjectID string         `json:"object_id"`
	SetState map[string]any `json:"set_state"`
}
