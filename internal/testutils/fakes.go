package testutils

import (
	"context"

	"github.com/ai-trpg/keeper/internal/ports"
)

// FakeOracle is a scripted ports.Oracle double: each call to Generate
// returns the next entry of Responses (or Err if non-nil).
type FakeOracle struct {
	Responses [][]byte
	Err       error

	calls int
	Calls []string
}

func (f *FakeOracle) Generate(_ context.Context, prompt string, _ []byte) ([]byte, error) {
	f.Calls = append(f.Calls, prompt)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.calls >= len(f.Responses) {
		panic("testutils: FakeOracle exhausted its scripted responses")
	}
	resp := f.Responses[f.calls]
	f.calls++
	return resp, nil
}

// FakeMemory is a no-op ports.Memory double that records writes.
type FakeMemory struct {
	Recalls map[string]ports.MemoryRecall
	Written []string
}

func (f *FakeMemory) Recall(_ context.Context, npcID string) (ports.MemoryRecall, error) {
	if f.Recalls == nil {
		return ports.MemoryRecall{}, nil
	}
	return f.Recalls[npcID], nil
}

func (f *FakeMemory) Write(_ context.Context, npcID, observation, reaction string) error {
	f.Written = append(f.Written, npcID+":"+observation+":"+reaction)
	return nil
}

// FakeDiceSink records every pushed event.
type FakeDiceSink struct {
	Pushed []ports.DiceEvent
}

func (f *FakeDiceSink) Push(_ context.Context, event ports.DiceEvent) error {
	f.Pushed = append(f.Pushed, event)
	return nil
}
