package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPlayerRecordRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	record := NewPlayerRecord("u1", "Ada", "ada@example.com")
	record.AppendItem("item-1", "Brass Compass", at)
	record.AppendItem("item-2", "Old Map Fragment", at.Add(30*time.Second))
	record.AppendItem("item-3", "Silver Key", at.Add(75*time.Second))

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got PlayerRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.PlayerUID != "u1" || got.PlayerName != "Ada" || got.Email != "ada@example.com" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if len(got.ItemsCollected) != 3 {
		t.Fatalf("got %d items, want 3", len(got.ItemsCollected))
	}
	for i, item := range record.ItemsCollected {
		if got.ItemsCollected[i] != item {
			t.Fatalf("item %d = %+v, want %+v (order must survive)", i, got.ItemsCollected[i], item)
		}
	}
}

func TestPlayerRecordWireNames(t *testing.T) {
	record := NewPlayerRecord("u1", "Ada", "ada@example.com")
	record.AppendItem("item-1", "Brass Compass", time.Unix(0, 0))

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"playeruid", "playerName", "email", "timeTaken", "itemsCollected", "completedSet", "completedAt"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("wire document missing %q: %s", key, data)
		}
	}

	items := raw["itemsCollected"].([]any)
	item := items[0].(map[string]any)
	for _, key := range []string{"itemId", "itemName", "collectedAt"} {
		if _, ok := item[key]; !ok {
			t.Fatalf("collected item missing %q: %s", key, data)
		}
	}
}

func TestHasItem(t *testing.T) {
	record := NewPlayerRecord("u1", "Ada", "")
	if record.HasItem("item-1") {
		t.Fatalf("empty record must not report item-1")
	}
	record.AppendItem("item-1", "Brass Compass", time.Now())
	if !record.HasItem("item-1") {
		t.Fatalf("record must report appended item")
	}
	if record.HasItem("item-2") {
		t.Fatalf("record must not report unknown item")
	}
}

func TestAppendItemFormatsTimestamp(t *testing.T) {
	record := NewPlayerRecord("u1", "Ada", "")
	at := time.Date(2025, 6, 1, 9, 30, 15, 0, time.FixedZone("CEST", 2*3600))
	record.AppendItem("item-1", "Brass Compass", at)

	if got := record.ItemsCollected[0].CollectedAt; got != "2025-06-01T07:30:15Z" {
		t.Fatalf("CollectedAt=%q, want UTC RFC3339", got)
	}
}

func TestCollectResultString(t *testing.T) {
	if CollectAccepted.String() != "accepted" {
		t.Fatalf("CollectAccepted.String()=%q", CollectAccepted.String())
	}
	if CollectAlreadyCollected.String() != "already_collected" {
		t.Fatalf("CollectAlreadyCollected.String()=%q", CollectAlreadyCollected.String())
	}
}
