// Package intent implements the Intent Parser (spec.md §4.2): it normalizes
// player free text into the closed Action vocabulary via a single oracle
// call, and degrades to IntentUnknown on any oracle or parse failure rather
// than ever inventing a value outside the enum.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/ports"
)

// schema is the structured-output contract handed to the oracle for every
// intent-parse call.
const schema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string"},
    "target": {"type": "string"},
    "topic": {"type": "string"},
    "target_location_id": {"type": "string"},
    "skill_check_request": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["intent"]
}`

// NPCRef and ObjectRef describe the map-scoped entities the parser offers
// the oracle as candidate targets (spec.md §4.2 input: "the current map's
// active NPC list (name + id); the current map's interactable object list").
type NPCRef struct {
	ID   string
	Name string
}

type ObjectRef struct {
	ID   string
	Name string
}

// Config holds the parser's dependencies.
type Config struct {
	Oracle ports.Oracle
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Oracle == nil {
		vb.RequiredField("Oracle")
	}
	return vb.Build()
}

// Parser turns player free text into a domain.Action.
type Parser struct {
	oracle ports.Oracle
}

// NewParser constructs a Parser from cfg.
func NewParser(cfg Config) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Parser{oracle: cfg.Oracle}, nil
}

type oracleResponse struct {
	Intent            string   `json:"intent"`
	Target            string   `json:"target"`
	Topic             string   `json:"topic"`
	TargetLocationID  string   `json:"target_location_id"`
	SkillCheckRequest []string `json:"skill_check_request"`
}

// Parse calls the oracle and normalizes its answer into a domain.Action. Any
// oracle error, unparseable JSON, or an intent outside the closed vocabulary
// downgrades to {intent: unknown, raw_text: input} rather than aborting the
// turn (spec.md §4.2: "the parser returns {intent: unknown, raw_text} and
// the turn proceeds with no triggerable event").
func (p *Parser) Parse(ctx context.Context, input string, npcs []NPCRef, objects []ObjectRef) domain.Action {
	prompt := buildPrompt(input, npcs, objects)

	start := time.Now()
	raw, err := p.oracle.Generate(ctx, prompt, []byte(schema))
	metrics.RecordOracleCall("intent_parse", time.Since(start).Seconds())
	if err != nil {
		slog.Warn("intent parser: oracle call failed, downgrading to unknown", "error", err)
		return domain.Action{Intent: domain.IntentUnknown, RawText: input}
	}

	var resp oracleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("intent parser: oracle returned invalid JSON, downgrading to unknown", "error", err)
		return domain.Action{Intent: domain.IntentUnknown, RawText: input}
	}

	parsedIntent := domain.Intent(resp.Intent)
	if !domain.ValidIntents[parsedIntent] {
		slog.Warn("intent parser: oracle returned intent outside closed vocabulary", "intent", resp.Intent)
		return domain.Action{Intent: domain.IntentUnknown, RawText: input}
	}

	return domain.Action{
		Intent:            parsedIntent,
		Target:            resp.Target,
		Topic:             resp.Topic,
		TargetLocationID:  resp.TargetLocationID,
		SkillCheckRequest: resp.SkillCheckRequest,
		RawText:           input,
	}
}

func buildPrompt(input string, npcs []NPCRef, objects []ObjectRef) string {
	var b strings.Builder
	b.WriteString("Classify the player's free text into one of the closed intents: ")
	b.WriteString("inspect, talk, take, use, use_skill, move, help_woman, leave_woman, take_amelia_in_car, unknown.\n")
	b.WriteString("Player input: ")
	b.WriteString(input)
	b.WriteString("\n")
	if len(npcs) > 0 {
		b.WriteString("NPCs present:\n")
		for _, n := range npcs {
			fmt.Fprintf(&b, "- %s (%s)\n", n.Name, n.ID)
		}
	}
	if len(objects) > 0 {
		b.WriteString("Interactable objects present:\n")
		for _, o := range objects {
			fmt.Fprintf(&b, "- %s (%s)\n", o.Name, o.ID)
		}
	}
	b.WriteString("If the text does not clearly match one of those intents, answer unknown.\n")
	return b.String()
}
