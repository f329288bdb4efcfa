package domain

// HistoryPolicy selects how conversation context is stored and replayed.
type HistoryPolicy string

const (
	// PolicyCacheTTL keeps the whole context as one expiring blob.
	PolicyCacheTTL HistoryPolicy = "cache-ttl"
	// PolicyDurableLog keeps one record per completed exchange.
	PolicyDurableLog HistoryPolicy = "durable-log"
)

// Valid reports whether p names a known policy.
func (p HistoryPolicy) Valid() bool {
	return p == PolicyCacheTTL || p == PolicyDurableLog
}

// Turn is one normalized entry of a cached context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Exchange is a completed user/assistant pair in the durable log.
type Exchange struct {
	UserID      string
	Timestamp   int64 // unix milliseconds
	UserMessage string
	AIMessage   string
}

// History is what a store hands back for context assembly.
type History struct {
	Policy HistoryPolicy
	// Exchanges holds durable-log records newest first, as the range query returns them.
	Exchanges []Exchange
	// Turns holds the cached context oldest first.
	Turns []Turn
}

// Empty reports whether the history carries no entries.
func (h History) Empty() bool {
	return len(h.Exchanges) == 0 && len(h.Turns) == 0
}

// LatestTimestamp returns the newest durable timestamp, or 0.
func (h History) LatestTimestamp() int64 {
	var latest int64
	for _, ex := range h.Exchanges {
		if ex.Timestamp > latest {
			latest = ex.Timestamp
		}
	}
	return latest
}
