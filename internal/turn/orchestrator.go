// Package turn implements the Turn Orchestrator (spec.md §2/§5): the
// deterministic state machine that drives one player turn through intent
// parsing, trigger evaluation, skill check resolution, the NPC reactor
// loop, and narrative synthesis, serialized per character id.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ai-trpg/keeper/internal/bootstrap"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/intent"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/npcreactor"
	"github.com/ai-trpg/keeper/internal/skillcheck"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/synth"
	"github.com/ai-trpg/keeper/internal/trigger"
)

// DefaultOracleTimeout bounds every oracle-backed stage of one turn (spec.md
// §5: "every oracle call has a deadline").
const DefaultOracleTimeout = 15 * time.Second

// Config holds the orchestrator's dependencies: every pipeline stage plus
// the catalog-backed stores it reads snapshots from.
type Config struct {
	Bootstrap        *bootstrap.Bootstrapper
	Sheets           *stores.SheetStore
	Sessions         *stores.SessionStore
	Maps             *stores.MapStateStore
	CompletedEvents  *stores.CompletedEventsStore
	IntentParser     *intent.Parser
	TriggerEvaluator *trigger.Evaluator
	SkillResolver    *skillcheck.Resolver
	NPCReactor       *npcreactor.Reactor
	Synthesizer      *synth.Synthesizer
	OracleTimeout    time.Duration
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Bootstrap == nil {
		vb.RequiredField("Bootstrap")
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
	if c.CompletedEvents == nil {
		vb.RequiredField("CompletedEvents")
	}
	if c.IntentParser == nil {
		vb.RequiredField("IntentParser")
	}
	if c.TriggerEvaluator == nil {
		vb.RequiredField("TriggerEvaluator")
	}
	if c.SkillResolver == nil {
		vb.RequiredField("SkillResolver")
	}
	if c.NPCReactor == nil {
		vb.RequiredField("NPCReactor")
	}
	if c.Synthesizer == nil {
		vb.RequiredField("Synthesizer")
	}
	return vb.Build()
}

// Orchestrator runs complete turns, serialized per character id so that two
// turns for the same character never interleave while distinct characters
// proceed in parallel (spec.md §5).
type Orchestrator struct {
	bootstrap        *bootstrap.Bootstrapper
	sheets           *stores.SheetStore
	sessions         *stores.SessionStore
	maps             *stores.MapStateStore
	completedEvents  *stores.CompletedEventsStore
	intentParser     *intent.Parser
	triggerEvaluator *trigger.Evaluator
	skillResolver    *skillcheck.Resolver
	npcReactor       *npcreactor.Reactor
	synthesizer      *synth.Synthesizer
	oracleTimeout    time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	timeout := cfg.OracleTimeout
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	return &Orchestrator{
		bootstrap: cfg.Bootstrap, sheets: cfg.Sheets, sessions: cfg.Sessions, maps: cfg.Maps,
		completedEvents: cfg.CompletedEvents, intentParser: cfg.IntentParser,
		triggerEvaluator: cfg.TriggerEvaluator, skillResolver: cfg.SkillResolver,
		npcReactor: cfg.NPCReactor, synthesizer: cfg.Synthesizer, oracleTimeout: timeout,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the per-character mutex, creating it on first use.
func (o *Orchestrator) lockFor(characterID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[characterID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[characterID] = lock
	}
	return lock
}

// Handle runs one full turn for characterID given their free-text input,
// returning the keeper's narrative reply.
func (o *Orchestrator) Handle(ctx context.Context, characterID, inputText string) (reply string, err error) {
	lock := o.lockFor(characterID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	decision := trigger.DecisionNone
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordTurn(string(decision), status, time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, o.oracleTimeout)
	defer cancel()

	sheet, sess, mapState, err := o.bootstrap.CharacterEntered(ctx, characterID)
	if err != nil {
		return "", err
	}

	action := o.intentParser.Parse(ctx, inputText, npcRefs(mapState), objectRefs(mapState))

	completedSet, err := o.completedEvents.Get(ctx, characterID)
	if err != nil {
		return "", err
	}
	completedIDs := toIntSet(completedSet)

	mapEvents, err := o.mapEventsFor(ctx, mapState.MapID)
	if err != nil {
		return "", err
	}

	result, err := o.triggerEvaluator.Evaluate(ctx, trigger.Input{
		PlayerID:            characterID,
		MapEvents:           mapEvents,
		CompletedEventIDs:   completedIDs,
		PendingCheckEventID: sess.PendingCheckEventID,
		Action:              action,
		PlayerMapID:         mapState.MapID,
	})
	if err != nil {
		return "", err
	}
	decision = result.Decision
	if result.Event != nil {
		metrics.RecordEventFired(string(decision))
	}

	var drivingEvent *domain.Event
	var outcome *domain.OutcomeBlock
	baselineNarrative := baselineNarrativeFor(action)

	switch result.Decision {
	case trigger.DecisionSuspend:
		return o.suspend(ctx, characterID, sess, result.Event, inputText)

	case trigger.DecisionResolveFirst:
		drivingEvent = result.Event
		branch, err := o.resolvePending(ctx, sheet, sess, drivingEvent)
		if err != nil {
			return "", err
		}
		outcome = branch

	case trigger.DecisionFire:
		drivingEvent = result.Event
		outcome = drivingEvent.Effects.Outcomes.Flat

	case trigger.DecisionNone:
		// No event this turn; baselineNarrative stands alone.
	}

	if outcome != nil {
		baselineNarrative = foldOutcomeNarrative(baselineNarrative, outcome)
	}

	reactorOut, err := o.npcReactor.Run(ctx, npcreactor.Input{
		MapID:             mapState.MapID,
		NPCIDs:            mapState.NPCs,
		BaselineNarrative: baselineNarrative,
	})
	if err != nil {
		return "", err
	}

	out, err := o.synthesizer.Synthesize(ctx, synth.Input{
		PlayerID:          characterID,
		PlayerInput:       inputText,
		Action:            action,
		DrivingEvent:      drivingEvent,
		Outcome:           outcome,
		BaselineNarrative: baselineNarrative,
		Reactions:         reactorOut.Reactions,
		CurrentMapID:      mapState.MapID,
	})
	if err != nil {
		return "", err
	}

	return out.Reply, nil
}

// suspend implements spec.md §4.3 step 6 / the Suspense Latch: write the
// pending-check marker and emit only the event's suspense narrative. The
// turn ends here — no NPC reaction and no state commit beyond the marker.
// A suspended turn is not appended to the conversation history.
func (o *Orchestrator) suspend(ctx context.Context, characterID string, sess *domain.SessionState, ev *domain.Event, inputText string) (string, error) {
	eventID := ev.EventID
	sess.PendingCheckEventID = &eventID
	if err := o.sessions.Put(ctx, characterID, sess); err != nil {
		return "", err
	}
	narrative := ev.Effects.Outcomes.SuspenseNarrative
	slog.Info("turn: event suspended on skill check", "character_id", characterID, "event_id", eventID)
	return narrative, nil
}

// resolvePending rolls the pending event's skill check and clears the
// pending marker, returning the matching success/failure branch.
func (o *Orchestrator) resolvePending(ctx context.Context, sheet *domain.CharacterSheet, sess *domain.SessionState, ev *domain.Event) (*domain.OutcomeBlock, error) {
	gate := ev.Effects.SkillCheck
	if gate == nil {
		return nil, errors.Internalf("pending event %d has no skill_check gate", ev.EventID)
	}

	out, err := o.skillResolver.Resolve(ctx, sheet, skillcheck.Input{
		CharacterID: sheet.ID,
		SkillID:     gate.SkillID,
		Difficulty:  gate.Difficulty,
	})
	if err != nil {
		return nil, err
	}

	sess.PendingCheckEventID = nil
	if err := o.sessions.Put(ctx, sheet.ID, sess); err != nil {
		return nil, err
	}

	// Marking the event completed (if if_unique) is the narrative
	// synthesizer's job (spec.md §4.6 step 5), not this stage's.

	if out.Success {
		return ev.Effects.Outcomes.Success, nil
	}
	return ev.Effects.Outcomes.Failure, nil
}

// mapEventsFor returns the catalog events for mapID. Events are read-mostly
// catalog rows; the loader is hit once per turn rather than cached here,
// matching internal/catalog's documented "called once per cold entity"
// contract at the granularity of the bootstrapper's own cache (the map
// state itself, seeded once per map in EnsureMap).
func (o *Orchestrator) mapEventsFor(ctx context.Context, mapID string) ([]domain.Event, error) {
	return o.bootstrap.LoadEventsForMap(ctx, mapID)
}

func toIntSet(set map[string]bool) map[int]bool {
	out := make(map[int]bool, len(set))
	for k, v := range set {
		if !v {
			continue
		}
		if id, err := strconv.Atoi(k); err == nil {
			out[id] = true
		}
	}
	return out
}

func npcRefs(m *domain.MapState) []intent.NPCRef {
	refs := make([]intent.NPCRef, 0, len(m.NPCs))
	for _, id := range m.NPCs {
		refs = append(refs, intent.NPCRef{ID: id, Name: id})
	}
	return refs
}

func objectRefs(m *domain.MapState) []intent.ObjectRef {
	refs := make([]intent.ObjectRef, 0, len(m.Objects))
	for id := range m.Objects {
		refs = append(refs, intent.ObjectRef{ID: id, Name: id})
	}
	return refs
}

// baselineNarrativeFor provides a minimal scene-continuation line when no
// catalog event fires this turn, so the NPC reactor loop and synthesizer
// always have a non-empty seed to build on.
func baselineNarrativeFor(action domain.Action) string {
	switch action.Intent {
	case domain.IntentUnknown:
		return "守密人沉默片刻,似乎没有理解你的意图。"
	default:
		return fmt.Sprintf("你%s。", action.RawText)
	}
}

// foldOutcomeNarrative folds a resolved event's outcome text into the
// turn's baseline before the NPC reactor loop runs, so every NPC's "Scene
// so far" prompt — and the synthesizer's final reply — account for the
// same event outcome rather than the reactor loop seeing stale baseline
// text that predates it.
func foldOutcomeNarrative(baseline string, outcome *domain.OutcomeBlock) string {
	narrative := baseline
	if outcome.Narrative != "" {
		narrative = outcome.Narrative
	}
	if outcome.NarrativeInjection != "" {
		narrative += "\n" + outcome.NarrativeInjection
	}
	return narrative
}
