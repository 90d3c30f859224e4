// Package memoryclient implements ports.Memory over plain HTTP/JSON, using
// the same http.Client-with-timeout shape as internal/oracleclient (both
// grounded on AltairaLabs-PromptKit's ollama.Provider pattern) against a
// separate memory-shelf endpoint.
package memoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/ports"
)

const defaultTimeout = 10 * time.Second

// Config holds the memory HTTP client's dependencies.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
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

// Client recalls and records per-NPC memory over HTTP.
type Client struct {
	endpoint string
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
	return &Client{endpoint: cfg.Endpoint, http: httpClient}, nil
}

// Noop implements ports.Memory without a backing memory shelf, for
// deployments that run without one (config.Config.MemoryEndpoint is
// optional, unlike OracleEndpoint).
type Noop struct{}

// NewNoop constructs a Noop memory client.
func NewNoop() *Noop {
	return &Noop{}
}

// Recall always returns an empty recall.
func (Noop) Recall(_ context.Context, _ string) (ports.MemoryRecall, error) {
	return ports.MemoryRecall{}, nil
}

// Write discards the observation/reaction pair.
func (Noop) Write(_ context.Context, _, _, _ string) error {
	return nil
}

type recallResponse struct {
	ShortTerm string `json:"short_term"`
	LongTerm  string `json:"long_term"`
}

// Recall implements ports.Memory by GETting the NPC's memory shelf entry.
func (c *Client) Recall(ctx context.Context, npcID string) (ports.MemoryRecall, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/recall?npc_id="+npcID, nil)
	if err != nil {
		return ports.MemoryRecall{}, errors.Internalf("memory: build request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.MemoryRecall{}, errors.Unavailablef("memory: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.MemoryRecall{}, errors.Internalf("memory: read response: %v", err)
	}
	if resp.StatusCode >= 300 {
		return ports.MemoryRecall{}, errors.Unavailablef("memory: status %d: %s", resp.StatusCode, string(data))
	}

	var out recallResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return ports.MemoryRecall{}, errors.ParseFailuref("memory: decode response: %v", err)
	}
	return ports.MemoryRecall{ShortTerm: out.ShortTerm, LongTerm: out.LongTerm}, nil
}

type writeRequest struct {
	NPCID       string `json:"npc_id"`
	Observation string `json:"observation"`
	Reaction    string `json:"reaction"`
}

// Write implements ports.Memory by POSTing the latest observation/reaction
// pair to the memory shelf.
func (c *Client) Write(ctx context.Context, npcID, observation, reaction string) error {
	body, err := json.Marshal(writeRequest{NPCID: npcID, Observation: observation, Reaction: reaction})
	if err != nil {
		return errors.Internalf("memory: encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/write", bytes.NewReader(body))
	if err != nil {
		return errors.Internalf("memory: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Unavailablef("memory: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return errors.Unavailablef("memory: status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
