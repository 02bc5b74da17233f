// Package leaderboard submits finished runs and produces ranked views over
// the leaderboard collection.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/store"
)

// Auditor records run events durably, best-effort.
type Auditor interface {
	RecordEvent(ctx context.Context, event domain.RunEvent) error
}

// Broadcaster pushes a refreshed ranking to connected clients.
type Broadcaster interface {
	BroadcastLeaderboard(entries []domain.RankedEntry)
}

// Service implements score submission, ranking, and the personal-best
// bookkeeping on player records.
type Service struct {
	store  store.Store
	clock  clockwork.Clock
	logger *slog.Logger
	topN   int
	maxN   int

	audit Auditor
	hub   Broadcaster
}

// NewService creates a leaderboard service over the given store.
func NewService(st store.Store, cfg *config.GameConfig, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		clock:  clock,
		logger: logger,
		topN:   cfg.TopN,
		maxN:   cfg.MaxTopN,
	}
}

// SetAuditor attaches the durable event recorder.
func (s *Service) SetAuditor(a Auditor) {
	s.audit = a
}

// SetBroadcaster attaches the client-update broadcaster.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.hub = b
}

// Submit writes the user's leaderboard entry and conditionally updates the
// personal best on their player record.
//
// The entry is a last-submission-wins overwrite while the record's
// timeTaken keeps the minimum, so the board can legitimately show a worse
// time than a user's recorded best. The best-time update is an optimistic
// check-then-write with no transactional guarantee; concurrent submissions
// from one user race within that window.
func (s *Service) Submit(ctx context.Context, userID, userName string, completionTime float64) error {
	entry := domain.LeaderboardEntry{
		UserID:         userID,
		UserName:       userName,
		CompletionTime: completionTime,
		Timestamp:      s.clock.Now().Unix(),
	}

	if err := s.store.Set(ctx, store.EntryPath(userID), entry); err != nil {
		return fmt.Errorf("submitting score: %w", err)
	}
	s.logger.Info("score submitted",
		"user_id", userID,
		"user_name", userName,
		"completion_time", completionTime,
	)

	if err := s.updateBestTime(ctx, userID, completionTime); err != nil {
		// best-time is secondary to the submitted entry
		s.logger.Warn("failed to update best time", "user_id", userID, "error", err)
	}

	if s.audit != nil {
		event := domain.RunEvent{
			UserID:         userID,
			UserName:       userName,
			EventType:      domain.EventScoreSubmit,
			CompletionTime: completionTime,
			Timestamp:      entry.Timestamp,
		}
		if err := s.audit.RecordEvent(ctx, event); err != nil {
			s.logger.Warn("failed to record submit event", "error", err)
		}
	}

	s.broadcastTop(ctx)
	return nil
}

// updateBestTime lowers the record's timeTaken when the new time beats it.
// The 0 sentinel means no time recorded yet and always loses.
func (s *Service) updateBestTime(ctx context.Context, userID string, completionTime float64) error {
	doc, err := s.store.Get(ctx, store.UserPath(userID))
	if err != nil {
		return err
	}
	var record domain.PlayerRecord
	if err := store.Decode(doc, &record); err != nil {
		return fmt.Errorf("decoding player record: %w", err)
	}

	if record.TimeTaken != domain.UnsetTime && completionTime >= record.TimeTaken {
		return nil
	}

	err = s.store.Update(ctx, store.UserPath(userID), map[string]any{
		"timeTaken": completionTime,
	})
	if err != nil {
		return err
	}
	s.logger.Info("best time updated", "user_id", userID, "time", completionTime)
	return nil
}

// FetchTop returns the n best entries ordered ascending by completion
// time, ranked from 1. Tie order follows the store's natural order.
func (s *Service) FetchTop(ctx context.Context, n int) ([]domain.RankedEntry, error) {
	if n <= 0 {
		n = s.topN
	}
	if n > s.maxN {
		n = s.maxN
	}

	docs, err := s.store.Query(ctx, store.LeaderboardPath, "completionTime", store.Limit(n))
	if err != nil {
		return nil, fmt.Errorf("fetching leaderboard: %w", err)
	}

	ranked := make([]domain.RankedEntry, 0, len(docs))
	for _, doc := range docs {
		var entry domain.LeaderboardEntry
		if err := store.Decode(doc, &entry); err != nil {
			s.logger.Warn("skipping malformed leaderboard entry", "error", err)
			continue
		}
		ranked = append(ranked, domain.RankedEntry{
			Rank:           len(ranked) + 1,
			UserName:       entry.UserName,
			CompletionTime: entry.CompletionTime,
		})
	}
	return ranked, nil
}

// GetRank returns the user's 1-based rank: one more than the number of
// entries strictly faster than their own. Ties share the better rank, so a
// tie with the best entry ranks 1.
func (s *Service) GetRank(ctx context.Context, userID string) (int, error) {
	doc, err := s.store.Get(ctx, store.EntryPath(userID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("no leaderboard entry for %s: %w", userID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("getting own entry: %w", err)
	}
	var entry domain.LeaderboardEntry
	if err := store.Decode(doc, &entry); err != nil {
		return 0, fmt.Errorf("decoding own entry: %w", err)
	}

	docs, err := s.store.Query(ctx, store.LeaderboardPath, "completionTime",
		store.EndAt(entry.CompletionTime))
	if err != nil {
		return 0, fmt.Errorf("counting better entries: %w", err)
	}

	better := 0
	for _, d := range docs {
		var other domain.LeaderboardEntry
		if err := store.Decode(d, &other); err != nil {
			continue
		}
		if other.CompletionTime < entry.CompletionTime {
			better++
		}
	}
	return better + 1, nil
}

// Entry returns the user's own leaderboard entry.
func (s *Service) Entry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error) {
	doc, err := s.store.Get(ctx, store.EntryPath(userID))
	if err != nil {
		return nil, err
	}
	var entry domain.LeaderboardEntry
	if err := store.Decode(doc, &entry); err != nil {
		return nil, fmt.Errorf("decoding entry: %w", err)
	}
	return &entry, nil
}

// broadcastTop pushes the refreshed top listing to subscribed clients.
func (s *Service) broadcastTop(ctx context.Context) {
	if s.hub == nil {
		return
	}
	top, err := s.FetchTop(ctx, s.topN)
	if err != nil {
		s.logger.Warn("failed to fetch leaderboard for broadcast", "error", err)
		return
	}
	s.hub.BroadcastLeaderboard(top)
}
