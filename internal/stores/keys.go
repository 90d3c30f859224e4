// Package stores implements the six KV-backed stores of spec.md §4.1:
// world state, map state, character sheets, session state, conversation
// history, and completed events. Each store wraps the shared redis client,
// which its constructor (NewSheetStore(client) and so on) takes directly
// and rejects when nil.
package stores

import "time"

// Per-character keys carry a 24h TTL; world state has none (spec.md §4.1).
const (
	PerCharacterTTL = 24 * time.Hour
)

const (
	worldStateKey            = "world_state"
	mapStateKeyPrefix        = "map_state:"
	characterSheetKeyPrefix  = "character_sheet:"
	sessionStateKeyPrefix    = "session_state:"
	conversationHistoryKeyPrefix = "conversation_history:"
	completedEventsKeyPrefix = "completed_events:"
)

func mapStateKey(mapID string) string        { return mapStateKeyPrefix + mapID }
func characterSheetKey(id string) string     { return characterSheetKeyPrefix + id }
func sessionStateKey(id string) string       { return sessionStateKeyPrefix + id }
func conversationHistoryKey(id string) string { return conversationHistoryKeyPrefix + id }
func completedEventsKey(id string) string    { return completedEventsKeyPrefix + id }
