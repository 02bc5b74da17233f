package store

import (
	"context"
	"errors"
	"testing"

	"github.com/scavenger-hunt/internal/domain"
)

type scoreDoc struct {
	UserID         string  `json:"userId"`
	CompletionTime float64 `json:"completionTime"`
}

func seedScores(t *testing.T, s *MemoryStore, scores map[string]float64) {
	t.Helper()
	ctx := context.Background()
	for uid, ct := range scores {
		doc := scoreDoc{UserID: uid, CompletionTime: ct}
		if err := s.Set(ctx, EntryPath(uid), doc); err != nil {
			t.Fatalf("set %s: %v", uid, err)
		}
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	want := scoreDoc{UserID: "u1", CompletionTime: 12.5}
	if err := s.Set(ctx, EntryPath("u1"), want); err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, err := s.Get(ctx, EntryPath("u1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got scoreDoc
	if err := Decode(doc, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "users/nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, UserPath("u1"), map[string]any{
		"playerName": "Ada",
		"timeTaken":  0.0,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Update(ctx, UserPath("u1"), map[string]any{
		"timeTaken":    42.5,
		"completedSet": true,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, err := s.Get(ctx, UserPath("u1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got map[string]any
	if err := Decode(doc, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["playerName"] != "Ada" {
		t.Fatalf("playerName=%v, want Ada (untouched fields must survive)", got["playerName"])
	}
	if got["timeTaken"] != 42.5 {
		t.Fatalf("timeTaken=%v, want 42.5", got["timeTaken"])
	}
	if got["completedSet"] != true {
		t.Fatalf("completedSet=%v, want true", got["completedSet"])
	}
}

func TestUpdateCreatesMissingDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Update(ctx, UserPath("u2"), map[string]any{"playerName": "Bo"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Get(ctx, UserPath("u2")); err != nil {
		t.Fatalf("get after update: %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, UserPath("u1"), map[string]any{"playerName": "Ada"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Remove(ctx, UserPath("u1")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, UserPath("u1")); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := s.Get(ctx, UserPath("u1")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound after remove", err)
	}
}

func TestPushKeysAreOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	k1, err := s.Push(ctx, PlayersPath)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	k2, err := s.Push(ctx, PlayersPath)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if k1 >= k2 {
		t.Fatalf("push keys not ordered: %q then %q", k1, k2)
	}
}

func TestQueryOrdersAscending(t *testing.T) {
	s := NewMemoryStore()
	seedScores(t, s, map[string]float64{
		"alice":   12.5,
		"bob":     9.0,
		"charlie": 15.2,
	})

	docs, err := s.Query(context.Background(), LeaderboardPath, "completionTime")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var order []string
	for _, doc := range docs {
		var e scoreDoc
		if err := Decode(doc, &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		order = append(order, e.UserID)
	}
	want := []string{"bob", "alice", "charlie"}
	if len(order) != len(want) {
		t.Fatalf("got %d docs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v, want %v", order, want)
		}
	}
}

func TestQueryLimitAndEndAt(t *testing.T) {
	s := NewMemoryStore()
	seedScores(t, s, map[string]float64{
		"a": 10,
		"b": 20,
		"c": 30,
		"d": 40,
	})
	ctx := context.Background()

	docs, err := s.Query(ctx, LeaderboardPath, "completionTime", Limit(2))
	if err != nil {
		t.Fatalf("query limit: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("limit 2 returned %d docs", len(docs))
	}

	docs, err = s.Query(ctx, LeaderboardPath, "completionTime", EndAt(30))
	if err != nil {
		t.Fatalf("query endAt: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("endAt 30 returned %d docs, want 3 (boundary inclusive)", len(docs))
	}
}

func TestQueryIgnoresNestedPaths(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "leaderboard/u1", scoreDoc{UserID: "u1", CompletionTime: 5}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "leaderboard/u1/extra", scoreDoc{UserID: "x", CompletionTime: 1}); err != nil {
		t.Fatalf("set nested: %v", err)
	}

	docs, err := s.Query(ctx, LeaderboardPath, "completionTime")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1 direct child", len(docs))
	}
}

func TestQueryCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, LeaderboardPath, "completionTime")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err=%v, want ErrStoreUnavailable", err)
	}
}

func TestEmailPathIsCaseInsensitive(t *testing.T) {
	if EmailPath("Player@Example.COM") != EmailPath("player@example.com") {
		t.Fatalf("email paths must normalize case")
	}
}
