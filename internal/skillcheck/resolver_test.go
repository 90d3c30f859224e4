package skillcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/ports"
)

type fakeDiceSink struct {
	pushed []ports.DiceEvent
}

func (f *fakeDiceSink) Push(_ context.Context, event ports.DiceEvent) error {
	f.pushed = append(f.pushed, event)
	return nil
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 60, Threshold(60, DifficultyNormal))
	assert.Equal(t, 30, Threshold(60, DifficultyHard))
	assert.Equal(t, 12, Threshold(60, DifficultyExtreme))
	assert.Equal(t, 0, Threshold(0, DifficultyExtreme))
}

func TestResolver_Resolve_SkillValueZero_DifficultyExtreme_AlwaysFails(t *testing.T) {
	sink := &fakeDiceSink{}
	r, err := NewResolver(Config{Roller: diceroll.NewSeededRoller(1), DiceSink: sink})
	require.NoError(t, err)

	sheet := &domain.CharacterSheet{ID: "char-1", Skills: map[string]int{}}
	out, err := r.Resolve(context.Background(), sheet, Input{
		CharacterID: "char-1",
		SkillID:     22, // drive
		Difficulty:  DifficultyExtreme,
	})
	require.NoError(t, err)
	assert.Equal(t, "drive", out.SkillName)
	assert.Equal(t, 0, out.SkillValue)
	assert.Equal(t, 0, out.Threshold)
	assert.Equal(t, 1, out.Roll)
	assert.False(t, out.Success, "roll 1 > threshold 0 must fail")
	require.Len(t, sink.pushed, 1)
	assert.Equal(t, "skill_check_result", sink.pushed[0].Type)
}

func TestResolver_Resolve_DriveHard_Success(t *testing.T) {
	sink := &fakeDiceSink{}
	r, err := NewResolver(Config{Roller: diceroll.NewSeededRoller(20), DiceSink: sink})
	require.NoError(t, err)

	sheet := &domain.CharacterSheet{ID: "char-2", Skills: map[string]int{"drive": 60}}
	out, err := r.Resolve(context.Background(), sheet, Input{
		CharacterID: "char-2",
		SkillID:     22,
		Difficulty:  DifficultyHard,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, out.SkillValue)
	assert.Equal(t, 30, out.Threshold)
	assert.Equal(t, 20, out.Roll)
	assert.True(t, out.Success)
}

func TestResolver_Resolve_DriveHard_Failure(t *testing.T) {
	sink := &fakeDiceSink{}
	r, err := NewResolver(Config{Roller: diceroll.NewSeededRoller(80), DiceSink: sink})
	require.NoError(t, err)

	sheet := &domain.CharacterSheet{ID: "char-2", Skills: map[string]int{"drive": 60}}
	out, err := r.Resolve(context.Background(), sheet, Input{
		CharacterID: "char-2",
		SkillID:     22,
		Difficulty:  DifficultyHard,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Threshold)
	assert.Equal(t, 80, out.Roll)
	assert.False(t, out.Success)
}

func TestResolver_Resolve_UnknownSkillID(t *testing.T) {
	sink := &fakeDiceSink{}
	r, err := NewResolver(Config{Roller: diceroll.NewSeededRoller(), DiceSink: sink})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), &domain.CharacterSheet{}, Input{SkillID: 999, Difficulty: DifficultyNormal})
	require.Error(t, err)
}
