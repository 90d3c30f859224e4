// Package ports defines the pluggable external interfaces the turn
// orchestrator calls out through: the oracle (structured-output LLM calls),
// the memory shelf, and the dice-event sink (spec.md §6).
// internal/oracleclient and internal/memoryclient hold the HTTP-backed
// production implementations; internal/testutils holds hand-written fakes
// for tests.
package ports

import "context"

//go:generate mockgen -destination=../testutils/mocks/ports.go -package=mocks github.com/ai-trpg/keeper/internal/ports Oracle,Memory,DiceSink

// Oracle answers one narrowly scoped structured-output question per call —
// intent parsing, soft-trigger matching, NPC reaction, fallback narrative —
// and never chooses the orchestrator's next stage (spec.md §9: "the
// orchestrator must not let the oracle pick the next stage"). schema is
// passed through to the backing model as its response-format contract;
// the returned bytes are the model's raw JSON reply.
type Oracle interface {
	Generate(ctx context.Context, prompt string, schema []byte) ([]byte, error)
}

// MemoryRecall is what the external memory shelf returns for one NPC.
type MemoryRecall struct {
	ShortTerm string
	LongTerm  string
}

// Memory recalls and records per-NPC context across turns.
type Memory interface {
	Recall(ctx context.Context, npcID string) (MemoryRecall, error)
	Write(ctx context.Context, npcID, observation, reaction string) error
}

// DiceEvent is one frame the dice hub fans out over /ws/dice (spec.md §6).
type DiceEvent struct {
	Type       string `json:"type"`
	SkillName  string `json:"skill_name"`
	DiceRoll   int    `json:"dice_roll"`
	Threshold  int    `json:"threshold"`
	Success    bool   `json:"success"`
	HardLevel  int    `json:"hard_level"`
}

// DiceSink publishes dice-roll events to anyone listening on /ws/dice.
type DiceSink interface {
	Push(ctx context.Context, event DiceEvent) error
}

// StateRefreshEvent is the frame broadcast over /ws/dice whenever the
// narrative synthesizer commits a state delta to a player (spec.md §6).
type StateRefreshEvent struct {
	Type        string `json:"type"`
	CharacterID string `json:"character_id"`
	Timestamp   int64  `json:"timestamp"`
}

// StateRefreshPublisher broadcasts character_state_refresh frames.
type StateRefreshPublisher interface {
	PublishRefresh(ctx context.Context, characterID string, timestamp int64) error
}
