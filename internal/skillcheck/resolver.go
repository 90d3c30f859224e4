// Package skillcheck implements the Skill Check Resolver (spec.md §4.4):
// threshold computation from a skill level and difficulty, a percentile
// roll, and the dice-sink side effect, in the teacher's orchestrator shape
// (Config.Validate, NewResolver, Input/Output structs).
package skillcheck

import (
	"context"
	"log/slog"

	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/ports"
)

// Difficulty levels named in spec.md §4.4.
const (
	DifficultyNormal  = 1
	DifficultyHard    = 2
	DifficultyExtreme = 3
)

// Config holds the resolver's dependencies.
type Config struct {
	Roller   diceroll.Roller
	DiceSink ports.DiceSink
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Roller == nil {
		vb.RequiredField("Roller")
	}
	if c.DiceSink == nil {
		vb.RequiredField("DiceSink")
	}
	return vb.Build()
}

// Resolver resolves one skill check against a character sheet snapshot.
type Resolver struct {
	roller   diceroll.Roller
	diceSink ports.DiceSink
}

// NewResolver constructs a Resolver from cfg.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Resolver{roller: cfg.Roller, diceSink: cfg.DiceSink}, nil
}

// Input names the skill, its difficulty level and the character rolling.
type Input struct {
	CharacterID string
	SkillID     int
	Difficulty  int
}

// Output is the full record of one resolved check (spec.md §4.4: "{skill_name,
// skill_value, difficulty, threshold, roll, success}").
type Output struct {
	SkillName  string
	SkillValue int
	Difficulty int
	Threshold  int
	Roll       int
	Success    bool
}

// Threshold computes the success threshold for a skill value S at the given
// difficulty level: level 1 -> S, level 2 -> floor(S/2), level 3 -> floor(S/5).
func Threshold(skillValue, difficulty int) int {
	switch difficulty {
	case DifficultyHard:
		return skillValue / 2
	case DifficultyExtreme:
		return skillValue / 5
	default:
		return skillValue
	}
}

// Resolve runs the check against sheet, rolls the die, pushes the result to
// the dice sink, and returns the full output.
func (r *Resolver) Resolve(ctx context.Context, sheet *domain.CharacterSheet, in Input) (*Output, error) {
	if in.Difficulty < DifficultyNormal || in.Difficulty > DifficultyExtreme {
		return nil, errors.InvalidArgumentf("difficulty %d out of range [1,3]", in.Difficulty)
	}

	def, ok := domain.AttributeByID(in.SkillID)
	if !ok {
		return nil, errors.InvalidArgumentf("unknown skill id %d", in.SkillID)
	}

	skillValue := resolveSkillValue(sheet, def)
	threshold := Threshold(skillValue, in.Difficulty)

	roll, err := r.roller.RollPercentile()
	if err != nil {
		return nil, errors.Wrap(err, "roll percentile")
	}

	out := &Output{
		SkillName:  def.Name,
		SkillValue: skillValue,
		Difficulty: in.Difficulty,
		Threshold:  threshold,
		Roll:       roll,
		Success:    roll <= threshold,
	}

	if err := r.diceSink.Push(ctx, ports.DiceEvent{
		Type:      "skill_check_result",
		SkillName: out.SkillName,
		DiceRoll:  out.Roll,
		Threshold: out.Threshold,
		Success:   out.Success,
		HardLevel: in.Difficulty,
	}); err != nil {
		slog.Warn("dice sink push failed", "character_id", in.CharacterID, "skill", out.SkillName, "error", err)
	}

	slog.Info("skill check resolved",
		"character_id", in.CharacterID,
		"skill", out.SkillName,
		"threshold", out.Threshold,
		"roll", out.Roll,
		"success", out.Success,
	)
	metrics.RecordSkillCheck(out.SkillName, out.Success)

	return out, nil
}

// resolveSkillValue looks up a skill/attribute's numeric value on sheet,
// defaulting to 0 when absent (spec.md §4.4: "if the skill is absent from
// the sheet, value defaults to 0").
func resolveSkillValue(sheet *domain.CharacterSheet, def domain.AttributeDef) int {
	switch def.Kind {
	case domain.KindCore:
		v, _ := sheet.Attributes.Value(def.Name)
		return v
	case domain.KindSkill:
		return sheet.Skill(def.Name)
	default:
		switch def.Name {
		case "sanity":
			return sheet.Derived.Sanity
		case "magic_points":
			return sheet.Derived.MagicPoints
		case "hit_points":
			return sheet.Derived.HitPoints
		case "build":
			return sheet.Derived.Build
		case "move_rate":
			return sheet.Derived.MoveRate
		case "interest_points":
			return sheet.Derived.InterestPoints
		case "professional_points":
			return sheet.Derived.ProfessionalPoints
		default:
			return 0
		}
	}
}
