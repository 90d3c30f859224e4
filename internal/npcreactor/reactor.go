// Package npcreactor implements the NPC Reactor Loop (spec.md §4.5): each
// NPC present on the current map reacts once per turn, in dexterity-
// descending order, with a perception check gating whether earlier NPCs'
// private actions leak into a later NPC's — or the player's — context.
package npcreactor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/ports"
	"github.com/ai-trpg/keeper/internal/stores"
)

const reactionSchema = `{
  "type": "object",
  "properties": {
    "visibility": {"type": "string", "enum": ["public", "private"]},
    "dialogue": {"type": "string"},
    "action": {"type": "string"},
    "new_status": {"type": "string"},
    "new_goal": {"type": "string"}
  },
  "required": ["visibility"]
}`

// Config holds the reactor's dependencies.
type Config struct {
	Oracle   ports.Oracle
	Memory   ports.Memory
	Roller   diceroll.Roller
	Sheets   *stores.SheetStore
	Sessions *stores.SessionStore
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Oracle == nil {
		vb.RequiredField("Oracle")
	}
	if c.Memory == nil {
		vb.RequiredField("Memory")
	}
	if c.Roller == nil {
		vb.RequiredField("Roller")
	}
	if c.Sheets == nil {
		vb.RequiredField("Sheets")
	}
	if c.Sessions == nil {
		vb.RequiredField("Sessions")
	}
	return vb.Build()
}

// Reactor runs the per-turn NPC reaction loop.
type Reactor struct {
	oracle   ports.Oracle
	memory   ports.Memory
	roller   diceroll.Roller
	sheets   *stores.SheetStore
	sessions *stores.SessionStore
}

// NewReactor constructs a Reactor from cfg.
func NewReactor(cfg Config) (*Reactor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Reactor{oracle: cfg.Oracle, memory: cfg.Memory, roller: cfg.Roller, sheets: cfg.Sheets, sessions: cfg.Sessions}, nil
}

// Reaction is one NPC's resolved turn (spec.md §4.5 step 3/5).
type Reaction struct {
	NPCID      string
	Visibility string
	Dialogue   string
	Action     string
	NewStatus  string
	NewGoal    string
}

// Input bundles the loop's starting conditions.
type Input struct {
	MapID             string
	NPCIDs            []string
	BaselineNarrative string
}

// Output is the loop's full result: every NPC's reaction plus the final
// public context the narrative synthesizer folds into its reply.
type Output struct {
	Reactions     []Reaction
	PublicContext string
}

type privateAction struct {
	actorID string
	stealth int
	text    string
}

type actorRef struct {
	id        string
	dexterity int
}

// Run executes the loop for all NPCs on the current map (spec.md §4.5).
func (r *Reactor) Run(ctx context.Context, in Input) (Output, error) {
	actors := make([]actorRef, 0, len(in.NPCIDs))
	sheetsByID := map[string]*domain.CharacterSheet{}
	for _, id := range in.NPCIDs {
		sheet, err := r.sheets.Get(ctx, id)
		if err != nil {
			return Output{}, err
		}
		sheetsByID[id] = sheet
		dex, _ := sheet.Attributes.Value("dexterity")
		actors = append(actors, actorRef{id: id, dexterity: dex})
	}

	sort.Slice(actors, func(i, j int) bool {
		if actors[i].dexterity != actors[j].dexterity {
			return actors[i].dexterity > actors[j].dexterity
		}
		return actors[i].id < actors[j].id
	})

	publicContext := in.BaselineNarrative
	var privateActions []privateAction
	var reactions []Reaction

	for _, actor := range actors {
		sheet := sheetsByID[actor.id]

		overlay, err := r.perceptionOverlay(sheet, privateActions)
		if err != nil {
			return Output{}, err
		}

		recall, err := r.memory.Recall(ctx, actor.id)
		if err != nil {
			slog.Warn("npc reactor: memory recall failed", "npc_id", actor.id, "error", err)
		}

		prompt := buildPrompt(sheet, publicContext, overlay, recall)
		start := time.Now()
		raw, err := r.oracle.Generate(ctx, prompt, []byte(reactionSchema))
		metrics.RecordOracleCall("npc_reaction", time.Since(start).Seconds())
		if err != nil {
			slog.Warn("npc reactor: oracle call failed, skipping NPC", "npc_id", actor.id, "error", err)
			metrics.RecordNPCReaction("skipped_oracle_error")
			continue
		}

		var resp struct {
			Visibility string `json:"visibility"`
			Dialogue   string `json:"dialogue"`
			Action     string `json:"action"`
			NewStatus  string `json:"new_status"`
			NewGoal    string `json:"new_goal"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			slog.Warn("npc reactor: oracle returned invalid JSON, skipping NPC", "npc_id", actor.id, "error", err)
			metrics.RecordNPCReaction("skipped_invalid_response")
			continue
		}

		if err := r.sheets.UpdateStatusGoal(ctx, actor.id, resp.NewStatus, resp.NewGoal); err != nil {
			return Output{}, err
		}
		if _, err := r.sessions.GetOrMaterialize(ctx, r.sheets, actor.id, in.MapID); err != nil {
			return Output{}, err
		}

		reaction := Reaction{
			NPCID:      actor.id,
			Visibility: resp.Visibility,
			Dialogue:   resp.Dialogue,
			Action:     resp.Action,
			NewStatus:  resp.NewStatus,
			NewGoal:    resp.NewGoal,
		}
		reactions = append(reactions, reaction)
		metrics.RecordNPCReaction("reacted")

		text := strings.TrimSpace(resp.Dialogue + " " + resp.Action)
		if resp.Visibility == "public" {
			if text != "" {
				publicContext += "\n" + text
			}
		} else {
			stealth := sheet.Skill("stealth")
			privateActions = append(privateActions, privateAction{actorID: actor.id, stealth: stealth, text: text})
		}

		if err := r.memory.Write(ctx, actor.id, publicContext, text); err != nil {
			slog.Warn("npc reactor: memory write failed", "npc_id", actor.id, "error", err)
		}
	}

	return Output{Reactions: reactions, PublicContext: publicContext}, nil
}

// perceptionOverlay rolls a fresh 1d100 for this observer against every
// private action still hidden this turn, and builds the "[you notice X
// seems to be Y]" hints for whichever ones it catches (spec.md §4.5 step 1:
// "roll ≤ observer.investigate AND roll > actor.stealth / 2").
func (r *Reactor) perceptionOverlay(observer *domain.CharacterSheet, pending []privateAction) (string, error) {
	if len(pending) == 0 {
		return "", nil
	}
	investigate := observer.Skill("investigate")
	var hints []string
	for _, pa := range pending {
		roll, err := r.roller.RollPercentile()
		if err != nil {
			return "", errors.Wrap(err, "perception roll")
		}
		if roll <= investigate && roll > pa.stealth/2 {
			hints = append(hints, fmt.Sprintf("[you notice %s seems to be %s]", pa.actorID, pa.text))
		}
	}
	return strings.Join(hints, "\n"), nil
}

func buildPrompt(sheet *domain.CharacterSheet, publicContext, overlay string, recall ports.MemoryRecall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s (status: %s, goal: %s).\n", sheet.Name, sheet.Status, sheet.Goal)
	b.WriteString("Scene so far:\n")
	b.WriteString(publicContext)
	b.WriteString("\n")
	if overlay != "" {
		b.WriteString("Things you notice:\n")
		b.WriteString(overlay)
		b.WriteString("\n")
	}
	if recall.ShortTerm != "" || recall.LongTerm != "" {
		fmt.Fprintf(&b, "Your memory — short term: %s; long term: %s\n", recall.ShortTerm, recall.LongTerm)
	}
	b.WriteString("React in character. Return strict JSON.\n")
	return b.String()
}
