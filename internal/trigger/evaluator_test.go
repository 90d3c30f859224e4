package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/domain"
)

type fakeOracle struct {
	response []byte
	err      error
}

func (f *fakeOracle) Generate(_ context.Context, _ string, _ []byte) ([]byte, error) {
	return f.response, f.err
}

func noopResolveAgent(_ context.Context, _ string) (*domain.SessionState, error) {
	return &domain.SessionState{}, nil
}

func TestEvaluate_PendingCheckResolvesFirst(t *testing.T) {
	pending := 7
	events := []domain.Event{{EventID: 7, TestRequiredID: 22}}
	e, err := NewEvaluator(Config{Oracle: &fakeOracle{}, ResolveAgent: noopResolveAgent})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{
		MapEvents:           events,
		PendingCheckEventID: &pending,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionResolveFirst, res.Decision)
	require.NotNil(t, res.Event)
	assert.Equal(t, 7, res.Event.EventID)
}

func TestEvaluate_HardMatch_NoCheck_Fires(t *testing.T) {
	events := []domain.Event{
		{
			EventID:        5,
			TestRequiredID: -1,
			Preconditions: domain.Preconditions{
				PlayerAction: &domain.ActionPrecondition{Intent: "use_skill"},
			},
		},
	}
	e, err := NewEvaluator(Config{Oracle: &fakeOracle{}, ResolveAgent: noopResolveAgent})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{
		MapEvents: events,
		Action:    domain.Action{Intent: domain.IntentUseSkill},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionFire, res.Decision)
	assert.Equal(t, 5, res.Event.EventID)
}

func TestEvaluate_HardMatch_WithCheck_Suspends(t *testing.T) {
	events := []domain.Event{
		{EventID: 7, TestRequiredID: 22, HardLevel: 2},
	}
	e, err := NewEvaluator(Config{Oracle: &fakeOracle{}, ResolveAgent: noopResolveAgent})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{MapEvents: events})
	require.NoError(t, err)
	assert.Equal(t, DecisionSuspend, res.Decision)
}

func TestEvaluate_UniqueAlreadyCompleted_Skipped(t *testing.T) {
	events := []domain.Event{{EventID: 5, IfUnique: true, TestRequiredID: -1}}
	e, err := NewEvaluator(Config{Oracle: &fakeOracle{response: []byte(`{"should_trigger":false,"confidence":"low"}`)}, ResolveAgent: noopResolveAgent})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{
		MapEvents:         events,
		CompletedEventIDs: map[int]bool{5: true},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionNone, res.Decision)
}

func TestEvaluate_SoftFallback_MediumConfidenceAdmits(t *testing.T) {
	events := []domain.Event{{EventID: 9, TestRequiredID: -1}}
	e, err := NewEvaluator(Config{
		Oracle:       &fakeOracle{response: []byte(`{"should_trigger":true,"event_id":9,"confidence":"medium"}`)},
		ResolveAgent: noopResolveAgent,
	})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{MapEvents: events})
	require.NoError(t, err)
	assert.Equal(t, DecisionFire, res.Decision)
	assert.Equal(t, 9, res.Event.EventID)
}

func TestEvaluate_SoftFallback_LowConfidenceRejects(t *testing.T) {
	events := []domain.Event{{EventID: 9, TestRequiredID: -1}}
	e, err := NewEvaluator(Config{
		Oracle:       &fakeOracle{response: []byte(`{"should_trigger":true,"event_id":9,"confidence":"low"}`)},
		ResolveAgent: noopResolveAgent,
	})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Input{MapEvents: events})
	require.NoError(t, err)
	assert.Equal(t, DecisionNone, res.Decision)
}
