package npcreactor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/npcreactor"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/testutils"
)

func TestReactor_Run_PrivateActionPerceptionGating(t *testing.T) {
	client, cleanup := testutils.NewTestRedisClient(t)
	defer cleanup()

	sheets, err := stores.NewSheetStore(client)
	require.NoError(t, err)
	sessions, err := stores.NewSessionStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	// dexterity descending: actor (stealthy, dex 80) goes first, observer
	// (investigate 70, dex 50) goes second and should notice: stub roll 41
	// satisfies roll <= investigate(70) AND roll > stealth(80)/2 == 40.
	require.NoError(t, sheets.Put(ctx, &domain.CharacterSheet{
		ID:         "actor",
		Name:       "Actor",
		Attributes: domain.Attributes{Dexterity: 80},
		Skills:     map[string]int{"stealth": 80},
	}))
	require.NoError(t, sheets.Put(ctx, &domain.CharacterSheet{
		ID:         "observer",
		Name:       "Observer",
		Attributes: domain.Attributes{Dexterity: 50},
		Skills:     map[string]int{"investigate": 70},
	}))

	oracle := &testutils.FakeOracle{Responses: [][]byte{
		[]byte(`{"visibility":"private","dialogue":"","action":"slips away quietly","new_status":"sneaking","new_goal":""}`),
		[]byte(`{"visibility":"public","dialogue":"Did you hear that?","action":"","new_status":"alert","new_goal":""}`),
	}}
	memory := &testutils.FakeMemory{}
	roller := diceroll.NewSeededRoller(41)

	r, err := npcreactor.NewReactor(npcreactor.Config{
		Oracle: oracle, Memory: memory, Roller: roller, Sheets: sheets, Sessions: sessions,
	})
	require.NoError(t, err)

	out, err := r.Run(ctx, npcreactor.Input{
		MapID:             "map-1",
		NPCIDs:            []string{"observer", "actor"},
		BaselineNarrative: "The room is quiet.",
	})
	require.NoError(t, err)
	require.Len(t, out.Reactions, 2)

	assert := require.New(t)
	assert.Equal("actor", out.Reactions[0].NPCID)
	assert.Equal("private", out.Reactions[0].Visibility)
	assert.Equal("observer", out.Reactions[1].NPCID)
	assert.Contains(oracle.Calls[1], "you notice actor seems to be")

	actorSheet, err := sheets.Get(ctx, "actor")
	require.NoError(t, err)
	assert.Equal("sneaking", actorSheet.Status)
}
