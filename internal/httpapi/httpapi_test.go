package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/bootstrap"
	"github.com/ai-trpg/keeper/internal/catalog"
	"github.com/ai-trpg/keeper/internal/dicehub"
	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/httpapi"
	"github.com/ai-trpg/keeper/internal/intent"
	"github.com/ai-trpg/keeper/internal/npcreactor"
	"github.com/ai-trpg/keeper/internal/skillcheck"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/synth"
	"github.com/ai-trpg/keeper/internal/testutils"
	"github.com/ai-trpg/keeper/internal/trigger"
	"github.com/ai-trpg/keeper/internal/turn"
)

func expectCharacterLoad(mock sqlmock.Sqlmock, id, mapID string, driveSkill int) {
	mock.ExpectQuery("SELECT (.+) FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "if_npc", "map_id", "goal", "status"}).
			AddRow(id, "Amelia", false, mapID, "", ""))
	mock.ExpectQuery("SELECT (.+) FROM attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "strength", "constitution", "size", "dexterity",
			"appearance", "intelligence", "power", "education", "luck",
		}).AddRow(id, 50, 60, 55, 65, 50, 70, 60, 70, 40))
	mock.ExpectQuery("SELECT (.+) FROM derived_attributes").
		WillReturnRows(sqlmock.NewRows([]string{
			"character_id", "hit_points", "sanity", "magic_points", "build",
			"move_rate", "damage_bonus", "interest_points", "professional_points",
		}).AddRow(id, 12, 70, 14, 0, 8, "+0", 20, 350))
	mock.ExpectQuery("SELECT (.+) FROM skills").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "skill_name", "value"}).
			AddRow(id, "drive", driveSkill))
	mock.ExpectQuery("SELECT (.+) FROM backgrounds").
		WillReturnRows(sqlmock.NewRows([]string{"character_id", "key", "value"}))
}

func expectEmptyMapBootstrap(mock sqlmock.Sqlmock, mapID string) {
	mock.ExpectQuery("SELECT map_id, name, accessible_locations FROM maps").
		WillReturnRows(sqlmock.NewRows([]string{"map_id", "name", "accessible_locations"}).
			AddRow(mapID, "Driveway", `[]`))
	mock.ExpectQuery("SELECT object_id, name, map_id, current_state FROM interactable_objects").
		WillReturnRows(sqlmock.NewRows([]string{"object_id", "name", "map_id", "current_state"}))
	mock.ExpectQuery("SELECT id FROM characters").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func expectEvents(mock sqlmock.Sqlmock, mapID string) {
	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "map_id", "event_info", "preconditions", "pre_event_ids",
			"if_unique", "effects", "test_required_id", "hard_level",
			"success_result_info", "fail_result_info",
		}))
}

// newTestServer wires the full turn pipeline over a mocked SQL catalog and a
// miniredis-backed store layer, the same way internal/turn's own end-to-end
// suite does, then exposes it through httpapi's router.
func newTestServer(t *testing.T, mock sqlmock.Sqlmock, db *sqlx.DB) (*httptest.Server, func()) {
	t.Helper()

	loader, err := catalog.New(catalog.Config{DB: db})
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
	history, err := stores.NewHistoryStore(client)
	require.NoError(t, err)
	events, err := stores.NewCompletedEventsStore(client)
	require.NoError(t, err)
	changes, err := stores.NewChangeApplier(sheets, sessions, maps, world)
	require.NoError(t, err)

	boot, err := bootstrap.New(bootstrap.Config{Catalog: loader, Sheets: sheets, Sessions: sessions, Maps: maps, World: world})
	require.NoError(t, err)

	oracle := &testutils.FakeOracle{Responses: [][]byte{
		[]byte(`{"intent":"look","target":""}`),
		[]byte(`{"intent":"look","target":""}`),
	}}
	memory := &testutils.FakeMemory{}
	diceSink := &testutils.FakeDiceSink{}
	roller := diceroll.NewSeededRoller(1)

	parser, err := intent.NewParser(intent.Config{Oracle: oracle})
	require.NoError(t, err)
	evaluator, err := trigger.NewEvaluator(trigger.Config{
		Oracle:       oracle,
		ResolveAgent: func(ctx context.Context, id string) (*domain.SessionState, error) { return nil, nil },
	})
	require.NoError(t, err)
	resolver, err := skillcheck.NewResolver(skillcheck.Config{Roller: roller, DiceSink: diceSink})
	require.NoError(t, err)
	reactor, err := npcreactor.NewReactor(npcreactor.Config{
		Oracle: oracle, Memory: memory, Roller: roller, Sheets: sheets, Sessions: sessions,
	})
	require.NoError(t, err)
	synthesizer, err := synth.NewSynthesizer(synth.Config{
		Sheets: sheets, Sessions: sessions, Maps: maps, History: history,
		CompletedEvents: events, Changes: changes, Roller: roller,
	})
	require.NoError(t, err)

	orch, err := turn.New(turn.Config{
		Bootstrap: boot, Sheets: sheets, Sessions: sessions, Maps: maps, CompletedEvents: events,
		IntentParser: parser, TriggerEvaluator: evaluator, SkillResolver: resolver,
		NPCReactor: reactor, Synthesizer: synthesizer,
	})
	require.NoError(t, err)

	hub, err := dicehub.New(dicehub.Config{Redis: client})
	require.NoError(t, err)

	router, err := httpapi.NewRouter(httpapi.Config{
		Bootstrap: boot, Orchestrator: orch, Sheets: sheets, Sessions: sessions,
		History: history, Hub: hub, Redis: client,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	return srv, func() { srv.Close(); cleanup() }
}

func TestHealth_ReportsRedisConnected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	srv, cleanup := newTestServer(t, nil, sqlxDB)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "connected", body["redis"])
}

func TestCharacterEntered_BootstrapsAndReturnsState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	expectCharacterLoad(mock, "player-1", "map-1", 40)
	expectEmptyMapBootstrap(mock, "map-1")

	srv, cleanup := newTestServer(t, mock, sqlxDB)
	defer cleanup()

	body, err := json.Marshal(map[string]string{"character_id": "player-1"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/character_entered", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharacterEntered_MissingCharacterIDIsBadRequest(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	srv, cleanup := newTestServer(t, nil, sqlxDB)
	defer cleanup()

	resp, err := http.Post(srv.URL+"/api/character_entered", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_DrivesOneTurnAndReturnsReply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	expectCharacterLoad(mock, "player-1", "map-1", 40)
	expectEmptyMapBootstrap(mock, "map-1")
	expectEvents(mock, "map-1")

	srv, cleanup := newTestServer(t, mock, sqlxDB)
	defer cleanup()

	body, err := json.Marshal(map[string]string{"character_id": "player-1", "input": "环顾四周"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Reply)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharacterSheet_NotFoundReturns404(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	srv, cleanup := newTestServer(t, nil, sqlxDB)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/api/character_sheet/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReloadCatalog_RereadsMapFromSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "postgres")

	expectEmptyMapBootstrap(mock, "map-1")

	srv, cleanup := newTestServer(t, mock, sqlxDB)
	defer cleanup()

	body, err := json.Marshal(map[string]string{"map_id": "map-1"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/admin/reload_catalog", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, mock.ExpectationsWereMet())
}
