package catalog_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/catalog"
)

func newLoader(t *testing.T) (*catalog.Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	loader, err := catalog.New(catalog.Config{DB: sqlx.NewDb(db, "postgres")})
	require.NoError(t, err)
	return loader, mock
}

func TestLoadCharacter_AssemblesSheetFromFiveTables(t *testing.T) {
	loader, mock := newLoader(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "if_npc", "map_id", "goal", "status"}).
			AddRow("player-1", "Amelia", false, "map-1", "", ""))
	mock.ExpectQuery("SELECT (.+) FROM attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "strength", "constitution", "size", "dexterity",
			"appearance", "intelligence", "power", "education", "luck",
		}).AddRow("player-1", 50, 60, 55, 65, 50, 70, 60, 70, 40))
	mock.ExpectQuery("SELECT (.+) FROM derived_attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "hit_points", "sanity", "magic_points", "build",
			"move_rate", "damage_bonus", "interest_points", "professional_points",
		}).AddRow("player-1", 12, 70, 14, 0, 8, "+0", 20, 350))
	mock.ExpectQuery("SELECT (.+) FROM skills").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "skill_name", "value"}).
			AddRow("player-1", "drive", 60).
			AddRow("player-1", "investigate", 70))
	mock.ExpectQuery("SELECT (.+) FROM backgrounds").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "key", "value"}).
			AddRow("player-1", "occupation", "journalist"))

	sheet, mapID, err := loader.LoadCharacter(ctx, "player-1")
	require.NoError(t, err)
	require.Equal(t, "map-1", mapID)
	require.Equal(t, "Amelia", sheet.Name)
	require.Equal(t, 60, sheet.Skills["drive"])
	require.Equal(t, "journalist", sheet.Backgrounds["occupation"])
	require.Equal(t, 12, sheet.Derived.HitPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMap_DecodesAccessibleLocations(t *testing.T) {
	loader, mock := newLoader(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT map_id, name, accessible_locations FROM maps").
		WillReturnRows(sqlmock.NewRows([]string{"map_id", "name", "accessible_locations"}).
			AddRow("map-1", "Study", `["map-2","map-3"]`))

	entry, err := loader.LoadMap(ctx, "map-1")
	require.NoError(t, err)
	require.Equal(t, []string{"map-2", "map-3"}, entry.AccessibleLocations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEvents_DecodesJSONColumns(t *testing.T) {
	loader, mock := newLoader(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "map_id", "event_info", "preconditions", "pre_event_ids",
			"if_unique", "effects", "test_required_id", "hard_level",
			"success_result_info", "fail_result_info",
		}).AddRow(
			7, "map-1", "lever event",
			`{"player_action":{"intent":"use"}}`, `[1,2]`,
			true, `{"skill_check":{"required":true,"skill_id":22,"difficulty":2},"outcomes":{"success":{"narrative":"ok"},"failure":{"narrative":"bad"}}}`,
			22, 2, "success", "fail",
		))

	events, err := loader.LoadEvents(ctx, "map-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, []int{1, 2}, events[0].PreEventIDs)
	require.True(t, events[0].IfUnique)
	require.True(t, events[0].RequiresCheck())
	require.Equal(t, "ok", events[0].Effects.Outcomes.Success.Narrative)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadNPCIDsForMap(t *testing.T) {
	loader, mock := newLoader(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("npc-1").AddRow("npc-2"))

	ids, err := loader.LoadNPCIDsForMap(ctx, "map-1")
	require.NoError(t, err)
	require.Equal(t, []string{"npc-1", "npc-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadWorldState(t *testing.T) {
	loader, mock := newLoader(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT state_key, state_value FROM world_state").
		WillReturnRows(sqlmock.NewRows([]string{"state_key", "state_value"}).
			AddRow("storm_intensity", "3"))

	world, err := loader.LoadWorldState(ctx)
	require.NoError(t, err)
	require.Equal(t, 3.0, world["storm_intensity"])
	require.NoError(t, mock.ExpectationsWereMet())
}
