package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ai-trpg/keeper/internal/domain"
	"github.com/ai-trpg/keeper/internal/errors"
)

// buildSoftFallbackPrompt asks the oracle to judge whether the player's
// action should soft-trigger one of the remaining, non-completed-unique
// events on the current map (spec.md §4.3 step 5).
func buildSoftFallbackPrompt(action domain.Action, eligible []domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Player intent: %s, target: %q, topic: %q, raw: %q\n", action.Intent, action.Target, action.Topic, action.RawText)
	b.WriteString("Candidate events (none of their hard preconditions matched exactly):\n")
	for _, ev := range eligible {
		fmt.Fprintf(&b, "- event_id=%d info=%q\n", ev.EventID, ev.EventInfo)
	}
	b.WriteString("Decide whether the player's action should soft-trigger one of these events. ")
	b.WriteString("Answer should_trigger=false unless you are reasonably confident. ")
	b.WriteString("confidence must be high, medium, or low.\n")
	return b.String()
}

// unmarshalStrict rejects trailing garbage after the JSON value, matching
// the parser's "oracle JSON unparseable is a recoverable ParseFailure"
// contract (spec.md §7) rather than silently accepting a truncated object.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return errors.ParseFailuref("decode oracle response: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.ParseFailuref("decode oracle response: trailing data after JSON value")
	}
	return nil
}
