// Package oracleclient implements ports.Oracle over plain HTTP/JSON,
// grounded on AltairaLabs-PromptKit's runtime/providers/ollama.Provider
// shape (http.Client with a fixed timeout, POST a JSON body, decode a JSON
// response) — adapted from an OpenAI-compatible chat completion call to the
// single narrowly scoped prompt+schema→JSON contract ports.Oracle defines.
package oracleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ai-trpg/keeper/internal/errors"
)

const defaultTimeout = 15 * time.Second

// Config holds the oracle HTTP client's dependencies.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// HTTPClient overrides the default http.Client, for tests.
	HTTPClient *http.Client
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Endpoint == "" {
		vb.RequiredField("Endpoint")
	}
	return vb.Build()
}

// Client calls a remote structured-output oracle over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New constructs a Client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, http: httpClient}, nil
}

type generateRequest struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Generate implements ports.Oracle by POSTing {prompt, schema} and returning
// the response body verbatim — the model's raw structured-output reply.
func (c *Client) Generate(ctx context.Context, prompt string, schema []byte) ([]byte, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Schema: schema})
	if err != nil {
		return nil, errors.Internalf("oracle: encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internalf("oracle: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.OracleDeadlinef("oracle: %v", err)
		}
		return nil, errors.Unavailablef("oracle: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Internalf("oracle: read response: %v", err)
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Unavailablef("oracle: status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
