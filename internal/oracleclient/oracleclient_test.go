package oracleclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/oracleclient"
)

func TestGenerate_ReturnsResponseBody(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"intent":"look","target":""}`))
	}))
	defer srv.Close()

	client, err := oracleclient.New(oracleclient.Config{Endpoint: srv.URL, APIKey: "secret-key"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "what does the player want to do?", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"intent":"look","target":""}`, string(out))
	require.Equal(t, "/", gotPath)
	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "what does the player want to do?", gotBody["prompt"])
}

func TestGenerate_NoAPIKeyOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	var sawAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = len(r.Header["Authorization"]) > 0
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := oracleclient.New(oracleclient.Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	require.False(t, sawAuth, "unexpected Authorization header: %s", gotAuth)
}

func TestGenerate_NonSuccessStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client, err := oracleclient.New(oracleclient.Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	require.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestGenerate_ContextDeadlineIsOracleDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := oracleclient.New(oracleclient.Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	_, err = client.Generate(ctx, "prompt", nil)
	require.Error(t, err)
	require.Equal(t, errors.CodeOracleDeadline, errors.GetCode(err))
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := oracleclient.New(oracleclient.Config{})
	require.Error(t, err)
}
