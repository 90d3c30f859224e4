// Package diceroll provides the uniform 1-100 roll every skill check and
// perception check draws from (spec.md §4.4, §4.5). Production code rolls
// through rpg-toolkit/dice the same way the teacher's dice orchestrator does
// (internal/orchestrators/dice); tests inject a SeededRoller for determinism
// (spec.md §8: "each scenario must be runnable with ... RNG seeded").
package diceroll

import (
	"github.com/KirkDiggler/rpg-toolkit/dice"

	"github.com/ai-trpg/keeper/internal/errors"
)

// Roller draws a uniform integer in [1,100].
type Roller interface {
	RollPercentile() (int, error)
}

// ToolkitRoller rolls through rpg-toolkit/dice, the same library the
// teacher's dice orchestrator uses for its dice notation rolls.
type ToolkitRoller struct{}

// NewToolkitRoller constructs a ToolkitRoller.
func NewToolkitRoller() *ToolkitRoller {
	return &ToolkitRoller{}
}

// RollPercentile rolls 1d100 via rpg-toolkit/dice.
func (r *ToolkitRoller) RollPercentile() (int, error) {
	roll, err := dice.NewRoll(1, 100)
	if err != nil {
		return 0, errors.Wrapf(err, "roll percentile")
	}
	return roll.GetValue(), nil
}

// SeededRoller returns a fixed, pre-scripted sequence of rolls, one per
// call, for deterministic end-to-end tests (spec.md §8 scenarios 3, 4, 6).
// Calling it more times than the sequence holds is a test-authoring bug and
// panics loudly rather than silently wrapping around.
type SeededRoller struct {
	rolls []int
	next  int
}

// NewSeededRoller constructs a SeededRoller that yields rolls in order.
func NewSeededRoller(rolls ...int) *SeededRoller {
	return &SeededRoller{rolls: rolls}
}

// RollPercentile returns the next scripted roll.
func (r *SeededRoller) RollPercentile() (int, error) {
	if r.next >= len(r.rolls) {
		panic("diceroll: SeededRoller exhausted its scripted rolls")
	}
	v := r.rolls[r.next]
	r.next++
	return v, nil
}
