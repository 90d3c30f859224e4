package domain

// HistoryEntry is one turn of conversation (spec.md §3). Every turn appends
// exactly two entries (player, keeper) or zero on an aborted turn.
type HistoryEntry struct {
	Role    string `json:"role"` // "player" | "keeper"
	Content string `json:"content"`
}

const (
	RolePlayer = "player"
	RoleKeeper = "keeper"
)
