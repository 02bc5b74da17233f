package leaderboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := &config.GameConfig{TopN: 10, MaxTopN: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, cfg, clockwork.NewFakeClock(), logger), st
}

func submitScore(t *testing.T, svc *Service, userID, userName string, completionTime float64) {
	t.Helper()
	if err := svc.Submit(context.Background(), userID, userName, completionTime); err != nil {
		t.Fatalf("submit %s: %v", userID, err)
	}
}

func recordTime(t *testing.T, st *store.MemoryStore, userID string) float64 {
	t.Helper()
	doc, err := st.Get(context.Background(), store.UserPath(userID))
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	var record domain.PlayerRecord
	if err := store.Decode(doc, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return record.TimeTaken
}

func TestFetchTopOrdersByCompletionTime(t *testing.T) {
	svc, _ := newTestService(t)
	submitScore(t, svc, "u-alice", "Alice", 12.5)
	submitScore(t, svc, "u-bob", "Bob", 9.0)
	submitScore(t, svc, "u-charlie", "Charlie", 15.2)

	top, err := svc.FetchTop(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}

	want := []domain.RankedEntry{
		{Rank: 1, UserName: "Bob", CompletionTime: 9.0},
		{Rank: 2, UserName: "Alice", CompletionTime: 12.5},
		{Rank: 3, UserName: "Charlie", CompletionTime: 15.2},
	}
	if len(top) != len(want) {
		t.Fatalf("got %d entries, want %d", len(top), len(want))
	}
	for i := range want {
		if top[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, top[i], want[i])
		}
	}
}

func TestFetchTopClampsLimit(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 15; i++ {
		submitScore(t, svc, string(rune('a'+i)), "P", float64(i+1))
	}
	ctx := context.Background()

	// n<=0 falls back to the default
	top, err := svc.FetchTop(ctx, 0)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}
	if len(top) != 10 {
		t.Fatalf("default fetch returned %d entries, want 10", len(top))
	}

	// n above the cap is clamped
	svc.maxN = 12
	top, err = svc.FetchTop(ctx, 500)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}
	if len(top) != 12 {
		t.Fatalf("capped fetch returned %d entries, want 12", len(top))
	}
}

func TestSubmitOverwritesEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	submitScore(t, svc, "u1", "Ada", 30.0)
	submitScore(t, svc, "u1", "Ada", 45.0)

	entry, err := svc.Entry(ctx, "u1")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	// entries are last-submission-wins even when the new time is worse
	if entry.CompletionTime != 45.0 {
		t.Fatalf("CompletionTime=%v, want 45.0", entry.CompletionTime)
	}
}

func TestBestTimeOnlyImproves(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	record := domain.NewPlayerRecord("u1", "Ada", "")
	if err := st.Set(ctx, store.UserPath("u1"), record); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	// first submission fills the unset best
	submitScore(t, svc, "u1", "Ada", 30.0)
	if got := recordTime(t, st, "u1"); got != 30.0 {
		t.Fatalf("timeTaken=%v after first submit, want 30.0", got)
	}

	// a worse run leaves the best alone
	submitScore(t, svc, "u1", "Ada", 45.0)
	if got := recordTime(t, st, "u1"); got != 30.0 {
		t.Fatalf("timeTaken=%v after worse run, want 30.0", got)
	}

	// a better run lowers it
	submitScore(t, svc, "u1", "Ada", 20.0)
	if got := recordTime(t, st, "u1"); got != 20.0 {
		t.Fatalf("timeTaken=%v after better run, want 20.0", got)
	}
}

func TestSubmitWithoutRecordStillWrites(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// no player record exists; the entry write must still succeed
	submitScore(t, svc, "ghost", "Ghost", 25.0)

	entry, err := svc.Entry(ctx, "ghost")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.CompletionTime != 25.0 {
		t.Fatalf("CompletionTime=%v, want 25.0", entry.CompletionTime)
	}
}

func TestGetRank(t *testing.T) {
	svc, _ := newTestService(t)
	submitScore(t, svc, "u-fast", "Fast", 10.0)
	submitScore(t, svc, "u-mid", "Mid", 20.0)
	submitScore(t, svc, "u-slow", "Slow", 30.0)
	ctx := context.Background()

	cases := []struct {
		userID string
		want   int
	}{
		{"u-fast", 1},
		{"u-mid", 2},
		{"u-slow", 3},
	}
	for _, tc := range cases {
		rank, err := svc.GetRank(ctx, tc.userID)
		if err != nil {
			t.Fatalf("rank %s: %v", tc.userID, err)
		}
		if rank != tc.want {
			t.Fatalf("rank %s = %d, want %d", tc.userID, rank, tc.want)
		}
	}
}

func TestGetRankTiedForBest(t *testing.T) {
	svc, _ := newTestService(t)
	submitScore(t, svc, "u-a", "A", 10.0)
	submitScore(t, svc, "u-b", "B", 10.0)
	submitScore(t, svc, "u-c", "C", 30.0)
	ctx := context.Background()

	for _, userID := range []string{"u-a", "u-b"} {
		rank, err := svc.GetRank(ctx, userID)
		if err != nil {
			t.Fatalf("rank %s: %v", userID, err)
		}
		if rank != 1 {
			t.Fatalf("rank %s = %d, want 1 for tied best", userID, rank)
		}
	}
	if rank, err := svc.GetRank(ctx, "u-c"); err != nil || rank != 3 {
		t.Fatalf("rank u-c = %d err=%v, want 3", rank, err)
	}
}

func TestGetRankMissingEntry(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetRank(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestSubmitBroadcastsTop(t *testing.T) {
	svc, _ := newTestService(t)
	var broadcasts [][]domain.RankedEntry
	svc.SetBroadcaster(broadcastFunc(func(entries []domain.RankedEntry) {
		broadcasts = append(broadcasts, entries)
	}))

	submitScore(t, svc, "u1", "Ada", 30.0)
	if len(broadcasts) != 1 {
		t.Fatalf("got %d broadcasts, want 1", len(broadcasts))
	}
	if len(broadcasts[0]) != 1 || broadcasts[0][0].UserName != "Ada" {
		t.Fatalf("broadcast=%v, want Ada's entry", broadcasts[0])
	}
}

type broadcastFunc func(entries []domain.RankedEntry)

func (f broadcastFunc) BroadcastLeaderboard(entries []domain.RankedEntry) {
	f(entries)
}

func TestFetchTopRanksStayContiguousPastMalformedEntry(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// an unreadable entry sorts first but is skipped while ranking
	malformed := map[string]any{"userId": "u-broken", "completionTime": "soon"}
	if err := st.Set(ctx, store.EntryPath("u-broken"), malformed); err != nil {
		t.Fatalf("seed malformed entry: %v", err)
	}
	submitScore(t, svc, "u-alice", "Alice", 12.5)
	submitScore(t, svc, "u-bob", "Bob", 15.0)

	top, err := svc.FetchTop(ctx, 10)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}
	want := []domain.RankedEntry{
		{Rank: 1, UserName: "Alice", CompletionTime: 12.5},
		{Rank: 2, UserName: "Bob", CompletionTime: 15.0},
	}
	if len(top) != len(want) {
		t.Fatalf("got %d entries, want %d", len(top), len(want))
	}
	for i := range want {
		if top[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, top[i], want[i])
		}
	}
}
