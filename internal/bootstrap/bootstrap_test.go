package bootstrap_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/bootstrap"
	"github.com/ai-trpg/keeper/internal/catalog"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/testutils"
)

func newBootstrapper(t *testing.T) (*bootstrap.Bootstrapper, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	loader, err := catalog.New(catalog.Config{DB: sqlx.NewDb(db, "postgres")})
	require.NoError(t, err)

	client, cleanup := testutils.NewTestRedisClient(t)
	sheets, err := stores.NewSheetStore(client)
	require.NoError(t, err)
	sessions, err := stores.NewSessionStore(client)
	require.NoError(t, err)
	maps, err := stores.NewMapStateStore(client)
	require.NoError(t, err)
	world, err := stores.NewWorldStore(client)
	require.NoError(t, err)

	b, err := bootstrap.New(bootstrap.Config{Catalog: loader, Sheets: sheets, Sessions: sessions, Maps: maps, World: world})
	require.NoError(t, err)

	return b, mock, func() { cleanup(); db.Close() }
}

func TestEnsureMap_SeedsFromCatalogOnFirstVisit(t *testing.T) {
	b, mock, cleanup := newBootstrapper(t)
	defer cleanup()
	ctx := context.Background()

	mock.ExpectQuery("SELECT map_id, name, accessible_locations FROM maps").
		WillReturnRows(sqlmock.NewRows([]string{"map_id", "name", "accessible_locations"}).
			AddRow("map-1", "Study", `["map-2"]`))
	mock.ExpectQuery("SELECT object_id, name, map_id, current_state FROM interactable_objects").
		WillReturnRows(sqlmock.NewRows([]string{"object_id", "name", "map_id", "current_state"}).
			AddRow("desk", "Desk", "map-1", `{"locked":true}`))
	mock.ExpectQuery("SELECT id FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("npc-1"))
	mock.ExpectQuery("SELECT (.+) FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "if_npc", "map_id", "goal", "status"}).
			AddRow("npc-1", "Detective", true, "map-1", "investigate", "idle"))
	mock.ExpectQuery("SELECT (.+) FROM attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "strength", "constitution", "size", "dexterity",
			"appearance", "intelligence", "power", "education", "luck",
		}).AddRow("npc-1", 50, 50, 50, 60, 50, 60, 50, 60, 50))
	mock.ExpectQuery("SELECT (.+) FROM derived_attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "hit_points", "sanity", "magic_points", "build",
			"move_rate", "damage_bonus", "interest_points", "professional_points",
		}).AddRow("npc-1", 11, 55, 10, 0, 8, "+0", 0, 0))
	mock.ExpectQuery("SELECT (.+) FROM skills").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "skill_name", "value"}))
	mock.ExpectQuery("SELECT (.+) FROM backgrounds").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "key", "value"}))

	m, err := b.EnsureMap(ctx, "map-1")
	require.NoError(t, err)
	require.Equal(t, []string{"map-2"}, m.AccessibleMaps)
	require.Equal(t, []string{"npc-1"}, m.NPCs)
	require.Equal(t, true, m.Objects["desk"]["locked"])
	require.NoError(t, mock.ExpectationsWereMet())

	again, err := b.EnsureMap(ctx, "map-1")
	require.NoError(t, err)
	require.Equal(t, m.MapID, again.MapID)
}
