package intent

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

func TestParser_Parse_Success(t *testing.T) {
	p, err := NewParser(Config{Oracle: &fakeOracle{response: []byte(`{"intent":"talk","target":"amelia"}`)}})
	require.NoError(t, err)

	action := p.Parse(context.Background(), "跟Amelia说话", nil, nil)
	assert.Equal(t, domain.IntentTalk, action.Intent)
	assert.Equal(t, "amelia", action.Target)
}

func TestParser_Parse_InvalidJSON_DowngradesToUnknown(t *testing.T) {
	p, err := NewParser(Config{Oracle: &fakeOracle{response: []byte(`not json`)}})
	require.NoError(t, err)

	action := p.Parse(context.Background(), "我四处看看", nil, nil)
	assert.Equal(t, domain.IntentUnknown, action.Intent)
	assert.Equal(t, "我四处看看", action.RawText)
}

func TestParser_Parse_IntentOutsideEnum_DowngradesToUnknown(t *testing.T) {
	p, err := NewParser(Config{Oracle: &fakeOracle{response: []byte(`{"intent":"attack"}`)}})
	require.NoError(t, err)

	action := p.Parse(context.Background(), "input", nil, nil)
	assert.Equal(t, domain.IntentUnknown, action.Intent)
}

func TestParser_Parse_OracleError_DowngradesToUnknown(t *testing.T) {
	p, err := NewParser(Config{Oracle: &fakeOracle{err: assert.AnError}})
	require.NoError(t, err)

	action := p.Parse(context.Background(), "input", nil, nil)
	assert.Equal(t, domain.IntentUnknown, action.Intent)
}
