// Package synth implements the Narrative Synthesizer (spec.md §4.6): it
// applies the turn's driving event outcome, validates move intents, folds
// NPC reactions into the final reply (gating private ones behind the
// player's own perception roll), and commits every touched store.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/npcreactor"
	"github.com/ai-trpg/keeper/internal/pkg/clock"
	"github.com/ai-trpg/keeper/internal/ports"
	"github.com/ai-trpg/keeper/internal/stores"
)

// Config holds the synthesizer's dependencies. Refresh is optional: without
// it, a state-changing turn simply skips the character_state_refresh
// broadcast (useful for single-process callers with no dice hub wired).
type Config struct {
	Sheets          *stores.SheetStore
	Sessions        *stores.SessionStore
	Maps            *stores.MapStateStore
	History         *stores.HistoryStore
	CompletedEvents *stores.CompletedEventsStore
	Changes         *stores.ChangeApplier
	Roller          diceroll.Roller
	Refresh         ports.StateRefreshPublisher
	// Clock overrides the synthesizer's time source, for tests that assert
	// on the character_state_refresh timestamp. Defaults to the system
	// clock.
	Clock clock.Clock
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Sheets == nil {
		vb.RequiredField("Sheets")
	}
	if c.Sessions == nil {
		vb.RequiredField("Sessions")
	}
	if c.Maps == nil {
		vb.RequiredField("Maps")
	}
	if c.History == nil {
		vb.RequiredField("History")
	}
	if c.CompletedEvents == nil {
		vb.RequiredField("CompletedEvents")
	}
	if c.Changes == nil {
		vb.RequiredField("Changes")
	}
	if c.Roller == nil {
		vb.RequiredField("Roller")
	}
	return vb.Build()
}

// Synthesizer runs the §4.6 commit pipeline.
type Synthesizer struct {
	sheets          *stores.SheetStore
	sessions        *stores.SessionStore
	maps            *stores.MapStateStore
	history         *stores.HistoryStore
	completedEvents *stores.CompletedEventsStore
	changes         *stores.ChangeApplier
	roller          diceroll.Roller
	refresh         ports.StateRefreshPublisher
	clock           clock.Clock
}

// NewSynthesizer constructs a Synthesizer from cfg.
func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Synthesizer{
		sheets: cfg.Sheets, sessions: cfg.Sessions, maps: cfg.Maps,
		history: cfg.History, completedEvents: cfg.CompletedEvents,
		changes: cfg.Changes, roller: cfg.Roller, refresh: cfg.Refresh, clock: clk,
	}, nil
}

// Input bundles everything one call to Synthesize needs.
type Input struct {
	PlayerID          string
	PlayerInput       string
	Action            domain.Action
	DrivingEvent      *domain.Event
	Outcome           *domain.OutcomeBlock
	BaselineNarrative string // caller-folded: player action + any event outcome narrative
	Reactions         []npcreactor.Reaction
	CurrentMapID      string
}

// Output is the synthesizer's result: the keeper's reply and the player's
// (possibly unchanged) map id after move validation.
type Output struct {
	Reply          string
	NewMapID       string
	EventCompleted bool
}

// Synthesize runs spec.md §4.6 steps 1-6 and commits every touched store.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Output, error) {
	// BaselineNarrative already has the driving event's outcome narrative
	// folded in by the orchestrator, so the NPC reactor loop and this reply
	// share one account of what happened this turn.
	narrative := in.BaselineNarrative

	if in.Outcome != nil {
		if err := s.changes.ApplyOutcome(ctx, in.PlayerID, in.CurrentMapID, in.Outcome); err != nil {
			return Output{}, err
		}
		s.publishRefresh(ctx, in.PlayerID)
	}

	newMapID := in.CurrentMapID
	if in.Action.Intent == domain.IntentMove {
		var moved bool
		newMapID, narrative, moved = s.resolveMove(ctx, in, narrative)
		if moved {
			sess, err := s.sessions.GetOrMaterialize(ctx, s.sheets, in.PlayerID, in.CurrentMapID)
			if err != nil {
				return Output{}, err
			}
			sess.CurrentMapID = newMapID
			if err := s.sessions.Put(ctx, in.PlayerID, sess); err != nil {
				return Output{}, err
			}
		}
	}

	narrative, err := s.appendReactions(ctx, in.PlayerID, narrative, in.Reactions)
	if err != nil {
		return Output{}, err
	}

	eventCompleted := false
	if in.DrivingEvent != nil && in.DrivingEvent.IfUnique {
		completed, err := s.completedEvents.IsCompleted(ctx, in.PlayerID, fmt.Sprintf("%d", in.DrivingEvent.EventID))
		if err != nil {
			return Output{}, err
		}
		if !completed {
			if err := s.completedEvents.MarkCompleted(ctx, in.PlayerID, fmt.Sprintf("%d", in.DrivingEvent.EventID)); err != nil {
				return Output{}, err
			}
			eventCompleted = true
		}
	}

	if err := s.history.Append(ctx, in.PlayerID, in.PlayerInput, narrative); err != nil {
		return Output{}, err
	}

	return Output{Reply: narrative, NewMapID: newMapID, EventCompleted: eventCompleted}, nil
}

// publishRefresh notifies any connected /ws/dice clients that playerID's
// state changed this turn. Best-effort: a hub-push failure never fails the
// turn, since the state is already committed by the time this runs.
func (s *Synthesizer) publishRefresh(ctx context.Context, playerID string) {
	if s.refresh == nil {
		return
	}
	if err := s.refresh.PublishRefresh(ctx, playerID, s.clock.Now().Unix()); err != nil {
		slog.Warn("synthesizer: failed to publish character_state_refresh", "character_id", playerID, "error", err)
	}
}

// resolveMove validates a move intent against the current map's accessible
// set (spec.md §4.6 step 3). A rejected move is a recovered
// PreconditionMismatch: the narrative explains the refusal and no map
// change takes effect (spec.md §7).
func (s *Synthesizer) resolveMove(ctx context.Context, in Input, narrative string) (string, string, bool) {
	mapState, err := s.maps.Get(ctx, in.CurrentMapID)
	if err != nil {
		slog.Warn("synthesizer: could not load current map for move validation", "map_id", in.CurrentMapID, "error", err)
		return in.CurrentMapID, narrative + "\n" + "你似乎迷失了方向,无法确定该往哪里走。", false
	}
	if in.Action.TargetLocationID == "" || !mapState.IsAccessible(in.Action.TargetLocationID) {
		return in.CurrentMapID, narrative + "\n" + "那个方向现在走不通。", false
	}
	return in.Action.TargetLocationID, narrative, true
}

// appendReactions folds NPC reactions into the final narrative in loop
// order: public reactions are always visible; private ones are gated behind
// a fresh perception roll for the player (spec.md §4.6 step 4, same formula
// as §4.5: "roll ≤ player.investigate AND roll > actor.stealth/2").
func (s *Synthesizer) appendReactions(ctx context.Context, playerID, narrative string, reactions []npcreactor.Reaction) (string, error) {
	if len(reactions) == 0 {
		return narrative, nil
	}

	playerSheet, err := s.sheets.Get(ctx, playerID)
	if err != nil {
		return "", err
	}
	investigate := playerSheet.Skill("investigate")

	for _, rxn := range reactions {
		text := rxn.Dialogue
		if rxn.Action != "" {
			text += " " + rxn.Action
		}
		if rxn.Visibility == "public" {
			if text != "" {
				narrative += "\n" + text
			}
			continue
		}

		actorSheet, err := s.sheets.Get(ctx, rxn.NPCID)
		if err != nil {
			return "", err
		}
		stealth := actorSheet.Skill("stealth")

		roll, err := s.roller.RollPercentile()
		if err != nil {
			return "", errors.Wrap(err, "player perception roll")
		}
		if roll <= investigate && roll > stealth/2 {
			narrative += fmt.Sprintf("\n[你注意到%s似乎在%s]", rxn.NPCID, text)
		}
	}

	return narrative, nil
}
