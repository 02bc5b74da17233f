package domain

import "time"

// TotalItems is the size of the collectible set. Collecting this many
// distinct items completes a run.
const TotalItems = 5

// UnsetTime is the sentinel for "no completion time recorded yet".
const UnsetTime = float64(0)

// CollectedItem is one entry in a player's collection history.
type CollectedItem struct {
	ItemID      string `json:"itemId"`
	ItemName    string `json:"itemName"`
	CollectedAt string `json:"collectedAt"`
}

// PlayerRecord is the persisted profile for an authenticated user, stored
// at users/{userId}. ItemsCollected is append-only with unique item ids;
// TimeTaken holds the best (lowest) completion time and is monotonically
// non-increasing; CompletedSet flips false->true exactly once and is never
// retracted.
type PlayerRecord struct {
	PlayerUID      string          `json:"playeruid"`
	PlayerName     string          `json:"playerName"`
	Email          string          `json:"email"`
	TimeTaken      float64         `json:"timeTaken"`
	ItemsCollected []CollectedItem `json:"itemsCollected"`
	CompletedSet   bool            `json:"completedSet"`
	CompletedAt    string          `json:"completedAt"`
}

// NewPlayerRecord returns the record created on first registration: empty
// collection, no time, not completed.
func NewPlayerRecord(uid, name, email string) *PlayerRecord {
	return &PlayerRecord{
		PlayerUID:      uid,
		PlayerName:     name,
		Email:          email,
		TimeTaken:      UnsetTime,
		ItemsCollected: []CollectedItem{},
	}
}

// HasItem reports whether itemID is already in the collection history.
func (p *PlayerRecord) HasItem(itemID string) bool {
	for _, item := range p.ItemsCollected {
		if item.ItemID == itemID {
			return true
		}
	}
	return false
}

// AppendItem appends a collection entry. It does not check for duplicates;
// callers gate on HasItem first.
func (p *PlayerRecord) AppendItem(itemID, itemName string, at time.Time) {
	p.ItemsCollected = append(p.ItemsCollected, CollectedItem{
		ItemID:      itemID,
		ItemName:    itemName,
		CollectedAt: at.UTC().Format(time.RFC3339),
	})
}

// SessionState is the process-local cache of a player's progress. It is
// owned by the tracker and reconciled with the store on load; it is never
// persisted itself.
type SessionState struct {
	UserID           string   `json:"user_id"`
	ItemsCollected   int      `json:"items_collected"`
	TotalItems       int      `json:"total_items"`
	CollectedItemIDs []string `json:"collected_item_ids"`
	Elapsed          string   `json:"elapsed"`
	TimerRunning     bool     `json:"timer_running"`
	Completed        bool     `json:"completed"`
}

// HasCollected reports whether the session already holds itemID.
func (s *SessionState) HasCollected(itemID string) bool {
	for _, id := range s.CollectedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// CollectResult is the outcome of a CollectItem call.
type CollectResult int

const (
	// CollectAccepted means the item was new and the session advanced.
	CollectAccepted CollectResult = iota
	// CollectAlreadyCollected means the item was a duplicate no-op.
	CollectAlreadyCollected
)

func (r CollectResult) String() string {
	switch r {
	case CollectAccepted:
		return "accepted"
	case CollectAlreadyCollected:
		return "already_collected"
	default:
		return "unknown"
	}
}

// CollectEvent is an "item touched" event raised by a game client,
// delivered over HTTP or Kafka.
type CollectEvent struct {
	UserID   string `json:"user_id"`
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
}
