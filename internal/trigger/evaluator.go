// Package trigger implements the Trigger Evaluator (spec.md §4.3): given a
// parsed Action and the current map/session snapshots, it decides whether a
// catalog event fires, suspends on a skill check, must resolve a pending
// check first, or nothing happens at all.
package trigger

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/ports"
)

// Decision names the four outcomes §4.3 allows.
type Decision string

const (
	DecisionNone         Decision = "none"
	DecisionFire         Decision = "fire"
	DecisionSuspend      Decision = "suspend"
	DecisionResolveFirst Decision = "resolve_first"
)

// SessionLookup resolves a character id (the player, or an NPC named by an
// event's agent_id precondition) to its session snapshot, used only to read
// current_map_id for the current_location_id precondition.
type SessionLookup func(ctx context.Context, characterID string) (*domain.SessionState, error)

// Config holds the evaluator's dependencies.
type Config struct {
	Oracle       ports.Oracle
	ResolveAgent SessionLookup
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Oracle == nil {
		vb.RequiredField("Oracle")
	}
	if c.ResolveAgent == nil {
		vb.RequiredField("ResolveAgent")
	}
	return vb.Build()
}

// Evaluator runs the §4.3 algorithm.
type Evaluator struct {
	oracle       ports.Oracle
	resolveAgent SessionLookup
}

// NewEvaluator constructs an Evaluator from cfg.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Evaluator{oracle: cfg.Oracle, resolveAgent: cfg.ResolveAgent}, nil
}

// Input bundles the snapshots §4.3 evaluates against.
type Input struct {
	PlayerID            string
	MapEvents           []domain.Event
	CompletedEventIDs    map[int]bool
	PendingCheckEventID *int
	Action              domain.Action
	PlayerMapID         string
}

// Result is the evaluator's decision plus the event it concerns, if any.
type Result struct {
	Decision Decision
	Event    *domain.Event
}

// softFallbackSchema is the structured-output contract for step 5.
const softFallbackSchema = `{
  "type": "object",
  "properties": {
    "should_trigger": {"type": "boolean"},
    "event_id": {"type": "integer"},
    "confidence": {"type": "string", "enum": ["high", "medium", "low"]}
  },
  "required": ["should_trigger", "confidence"]
}`

type softFallbackResponse struct {
	ShouldTrigger bool   `json:"should_trigger"`
	EventID       int    `json:"event_id"`
	Confidence    string `json:"confidence"`
}

// Evaluate runs the trigger algorithm of spec.md §4.3 steps 1-6.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	// Step 1: an outstanding pending check always resolves first.
	if in.PendingCheckEventID != nil {
		pending := findEvent(in.MapEvents, *in.PendingCheckEventID)
		if pending == nil {
			return Result{}, errors.EntityMissingf("pending check event %d not found on map", *in.PendingCheckEventID)
		}
		return Result{Decision: DecisionResolveFirst, Event: pending}, nil
	}

	// Steps 2-4: hard gating over all of the map's events, in catalog order.
	candidates := make([]domain.Event, len(in.MapEvents))
	copy(candidates, in.MapEvents)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].EventID < candidates[j].EventID })

	for i := range candidates {
		ev := candidates[i]
		if !e.passesHardGate(ctx, ev, in) {
			continue
		}
		return e.decide(ev), nil
	}

	// Step 5: soft fallback via the oracle, bounded by confidence gating.
	selected, err := e.softFallback(ctx, candidates, in)
	if err != nil {
		slog.Warn("trigger evaluator: soft fallback failed, no event selected", "error", err)
		return Result{Decision: DecisionNone}, nil
	}
	if selected == nil {
		return Result{Decision: DecisionNone}, nil
	}
	return e.decide(*selected), nil
}

func (e *Evaluator) decide(ev domain.Event) Result {
	if ev.RequiresCheck() {
		return Result{Decision: DecisionSuspend, Event: &ev}
	}
	return Result{Decision: DecisionFire, Event: &ev}
}

func (e *Evaluator) passesHardGate(ctx context.Context, ev domain.Event, in Input) bool {
	for _, preID := range ev.PreEventIDs {
		if !in.CompletedEventIDs[preID] {
			return false
		}
	}
	if ev.IfUnique && in.CompletedEventIDs[ev.EventID] {
		return false
	}
	return e.preconditionsMatch(ctx, ev, in)
}

func (e *Evaluator) preconditionsMatch(ctx context.Context, ev domain.Event, in Input) bool {
	p := ev.Preconditions

	if p.PlayerAction != nil {
		if p.PlayerAction.Intent != "" && string(in.Action.Intent) != p.PlayerAction.Intent {
			return false
		}
		if p.PlayerAction.Target != "" && in.Action.Target != p.PlayerAction.Target {
			return false
		}
		if p.PlayerAction.Topic != "" && in.Action.Topic != p.PlayerAction.Topic {
			return false
		}
	}

	if p.CurrentLocationID != "" {
		agentID := in.PlayerID
		if p.AgentID != "" {
			agentID = p.AgentID
		}
		mapID := in.PlayerMapID
		if agentID != in.PlayerID {
			sess, err := e.resolveAgent(ctx, agentID)
			if err != nil {
				return false
			}
			mapID = sess.CurrentMapID
		}
		if mapID != p.CurrentLocationID {
			return false
		}
	}

	return true
}

func (e *Evaluator) softFallback(ctx context.Context, candidates []domain.Event, in Input) (*domain.Event, error) {
	var eligible []domain.Event
	for _, ev := range candidates {
		if ev.IfUnique && in.CompletedEventIDs[ev.EventID] {
			continue
		}
		eligible = append(eligible, ev)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	prompt := buildSoftFallbackPrompt(in.Action, eligible)
	start := time.Now()
	raw, err := e.oracle.Generate(ctx, prompt, []byte(softFallbackSchema))
	metrics.RecordOracleCall("trigger_soft_fallback", time.Since(start).Seconds())
	if err != nil {
		return nil, errors.Wrap(err, "soft fallback oracle call")
	}

	var resp softFallbackResponse
	if err := unmarshalStrict(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "soft fallback response")
	}

	if !resp.ShouldTrigger {
		return nil, nil
	}
	if resp.Confidence != "high" && resp.Confidence != "medium" {
		return nil, nil
	}

	ev := findEvent(eligible, resp.EventID)
	if ev == nil {
		return nil, nil
	}
	return ev, nil
}

func findEvent(events []domain.Event, id int) *domain.Event {
	for i := range events {
		if events[i].EventID == id {
			return &events[i]
		}
	}
	return nil
}
