package domain

// LeaderboardEntry is the persisted most-recent run result for a user,
// stored at leaderboard/{userId}. A later submission overwrites the prior
// entry unconditionally, so CompletionTime reflects the last run, not
// necessarily the best one.
type LeaderboardEntry struct {
	UserID         string  `json:"userId"`
	UserName       string  `json:"userName"`
	CompletionTime float64 `json:"completionTime"`
	Timestamp      int64   `json:"timestamp"`
}

// RankedEntry is a leaderboard entry decorated with its 1-based position
// in an ascending-by-time ordering.
type RankedEntry struct {
	Rank           int     `json:"rank"`
	UserName       string  `json:"userName"`
	CompletionTime float64 `json:"completionTime"`
}

// RunEvent records a completion or collection event for the audit trail.
type RunEvent struct {
	UserID         string  `json:"user_id"`
	UserName       string  `json:"user_name"`
	EventType      string  `json:"event_type"`
	ItemID         string  `json:"item_id,omitempty"`
	CompletionTime float64 `json:"completion_time,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}

// Audit event types.
const (
	EventItemCollected = "item_collected"
	EventSetCompleted  = "set_completed"
	EventScoreSubmit   = "score_submit"
)
