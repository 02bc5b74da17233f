// Package tracker owns session-local collection progress and keeps it
// reconciled with the remote store: duplicate gating, timer start on first
// item, read-modify-write persistence, and the completion sequence.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/store"
	"github.com/scavenger-hunt/internal/timer"
)

// AlreadyCollectedNotice is the transient message surfaced on duplicate
// collection attempts.
const AlreadyCollectedNotice = "Item already collected!"

// Submitter receives the finished run's time. Satisfied by the
// leaderboard service.
type Submitter interface {
	Submit(ctx context.Context, userID, userName string, completionTime float64) error
}

// Auditor records collection events durably, best-effort.
type Auditor interface {
	RecordEvent(ctx context.Context, event domain.RunEvent) error
}

// Notifier renders state the tracker publishes: the items counter and
// transient notices. Satisfied by the websocket hub.
type Notifier interface {
	NotifyProgress(userID string, state domain.SessionState)
	NotifyNotice(userID, message string)
}

// session is one player's in-process progress. The weight-1 semaphore is
// the single-flight guard: overlapping CollectItem calls for the same user
// queue on it instead of racing the read-modify-write.
type session struct {
	userID string
	gate   *semaphore.Weighted
	timer  *timer.CompletionTimer

	mu              sync.Mutex
	record          domain.PlayerRecord
	collected       []string
	loaded          bool
	completionFired bool
	notice          string
	noticeUntil     time.Time
}

// Tracker coordinates collection progress across player sessions. Local
// session state is authoritative for the current session; store writes are
// at-least-once and failures never roll local progress back.
type Tracker struct {
	store      store.Store
	board      Submitter
	clock      clockwork.Clock
	logger     *slog.Logger
	totalItems int
	noticeTTL  time.Duration

	audit    Auditor
	notifier Notifier

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a tracker over the given store and leaderboard submitter.
func New(st store.Store, board Submitter, cfg *config.GameConfig, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:      st,
		board:      board,
		clock:      clock,
		logger:     logger,
		totalItems: cfg.TotalItems,
		noticeTTL:  cfg.NoticeDuration,
		sessions:   make(map[string]*session),
	}
}

// SetAuditor attaches the durable event recorder.
func (t *Tracker) SetAuditor(a Auditor) {
	t.audit = a
}

// SetNotifier attaches the UI notifier.
func (t *Tracker) SetNotifier(n Notifier) {
	t.notifier = n
}

// session returns the session for userID, creating it on first use.
func (t *Tracker) session(userID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[userID]
	if !ok {
		sess = &session{
			userID: userID,
			gate:   semaphore.NewWeighted(1),
			timer:  timer.New(t.clock, t.logger.With("user_id", userID)),
		}
		t.sessions[userID] = sess
	}
	return sess
}

// LoadProgress fetches the player record and seeds the session from its
// collection history. An absent record or store failure yields an empty
// session rather than an error: a missing record is a valid first run.
func (t *Tracker) LoadProgress(ctx context.Context, userID string) (domain.SessionState, error) {
	sess := t.session(userID)
	if err := sess.gate.Acquire(ctx, 1); err != nil {
		return domain.SessionState{}, fmt.Errorf("acquiring session: %w", err)
	}
	defer sess.gate.Release(1)

	t.loadRecord(ctx, sess)

	sess.mu.Lock()
	state := t.stateLocked(sess)
	sess.mu.Unlock()
	return state, nil
}

// loadRecord seeds the session from the stored record. An absent or
// unreadable record leaves the session empty; either way the session is
// marked loaded so CollectItem skips the lazy fetch. Callers hold the
// session gate.
func (t *Tracker) loadRecord(ctx context.Context, sess *session) {
	doc, err := t.store.Get(ctx, store.UserPath(sess.userID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warn("failed to load progress, starting empty", "user_id", sess.userID, "error", err)
		}
		sess.mu.Lock()
		sess.loaded = true
		sess.mu.Unlock()
		return
	}

	var record domain.PlayerRecord
	if err := store.Decode(doc, &record); err != nil {
		t.logger.Warn("malformed player record, starting empty", "user_id", sess.userID, "error", err)
		sess.mu.Lock()
		sess.loaded = true
		sess.mu.Unlock()
		return
	}

	sess.mu.Lock()
	sess.record = record
	sess.collected = sess.collected[:0]
	for _, item := range record.ItemsCollected {
		sess.collected = append(sess.collected, item.ItemID)
	}
	sess.loaded = true
	items := len(sess.collected)
	sess.mu.Unlock()

	t.logger.Info("progress loaded", "user_id", sess.userID, "items", items)
}

// CollectItem registers an "item touched" event. The first distinct item
// of a session starts the timer; the totalItems-th triggers the completion
// sequence. Duplicates are no-ops that surface a transient notice.
func (t *Tracker) CollectItem(ctx context.Context, userID, itemID, itemName string) (domain.CollectResult, error) {
	sess := t.session(userID)
	if err := sess.gate.Acquire(ctx, 1); err != nil {
		return domain.CollectAlreadyCollected, fmt.Errorf("acquiring session: %w", err)
	}
	defer sess.gate.Release(1)

	// a session that never called LoadProgress reconciles with the store
	// here, so duplicates of persisted items are rejected up front
	sess.mu.Lock()
	loaded := sess.loaded
	sess.mu.Unlock()
	if !loaded {
		t.loadRecord(ctx, sess)
	}

	sess.timer.Tick()

	sess.mu.Lock()
	if contains(sess.collected, itemID) {
		sess.notice = AlreadyCollectedNotice
		sess.noticeUntil = t.clock.Now().Add(t.noticeTTL)
		sess.mu.Unlock()

		t.logger.Info("duplicate collection attempt", "user_id", userID, "item_id", itemID)
		if t.notifier != nil {
			t.notifier.NotifyNotice(userID, AlreadyCollectedNotice)
		}
		return domain.CollectAlreadyCollected, nil
	}

	if len(sess.collected) == 0 && !sess.timer.IsRunning() {
		sess.timer.Start()
		t.logger.Info("first item collected, timer started", "user_id", userID)
	}

	now := t.clock.Now()
	sess.collected = append(sess.collected, itemID)
	sess.record.AppendItem(itemID, itemName, now)
	count := len(sess.collected)
	state := t.stateLocked(sess)
	sess.mu.Unlock()

	t.logger.Info("item collected", "user_id", userID, "item_id", itemID, "count", count)
	if t.notifier != nil {
		t.notifier.NotifyProgress(userID, state)
	}

	t.persistItem(ctx, sess, itemID, itemName, now)
	t.recordEvent(ctx, userID, domain.EventItemCollected, itemID, 0)

	if count >= t.totalItems {
		t.completeSet(ctx, sess)
	}
	return domain.CollectAccepted, nil
}

// persistItem appends the collection entry to the stored record via
// read-modify-write: fetch the current record, append, write back. A blind
// overwrite of the local copy would clobber fields written concurrently by
// other components.
func (t *Tracker) persistItem(ctx context.Context, sess *session, itemID, itemName string, at time.Time) {
	path := store.UserPath(sess.userID)
	doc, err := t.store.Get(ctx, path)
	if err != nil {
		// local progress stands even when persistence fails
		t.logger.Warn("cannot persist item, record unavailable",
			"user_id", sess.userID, "item_id", itemID, "error", err)
		return
	}

	var record domain.PlayerRecord
	if err := store.Decode(doc, &record); err != nil {
		t.logger.Warn("cannot persist item, malformed record", "user_id", sess.userID, "error", err)
		return
	}
	if record.HasItem(itemID) {
		return
	}
	record.AppendItem(itemID, itemName, at)

	if err := t.store.Set(ctx, path, record); err != nil {
		t.logger.Warn("failed to persist collected item",
			"user_id", sess.userID, "item_id", itemID, "error", err)
		return
	}

	sess.mu.Lock()
	sess.record = record
	sess.mu.Unlock()
}

// completeSet runs the completion sequence: stop the timer, persist the
// completion flags, submit the time. The session's completion flag makes
// the sequence fire at most once per run; ResetSession re-arms it. The
// record's timeTaken is never written here: the leaderboard service owns
// it through the conditional best-time update, which keeps it monotonic.
func (t *Tracker) completeSet(ctx context.Context, sess *session) {
	sess.mu.Lock()
	if sess.completionFired {
		sess.mu.Unlock()
		return
	}
	sess.completionFired = true
	sess.mu.Unlock()

	// Stop reports zero when the timer never ran, which happens when a
	// resumed session finishes a run it did not start. The completion
	// still persists and submits, with a zero time.
	elapsed, _ := sess.timer.Stop()
	seconds := elapsed.Seconds()
	t.logger.Info("set complete",
		"user_id", sess.userID,
		"final_time", timer.Format(elapsed),
	)

	sess.mu.Lock()
	alreadyCompleted := sess.record.CompletedSet
	sess.record.CompletedSet = true
	if !alreadyCompleted {
		sess.record.CompletedAt = t.clock.Now().UTC().Format(time.RFC3339)
	}
	completedAt := sess.record.CompletedAt
	userName := sess.record.PlayerName
	state := t.stateLocked(sess)
	sess.mu.Unlock()

	// completedSet is a one-time achievement flag: never retracted, and
	// completedAt is written once
	fields := map[string]any{"completedSet": true}
	if !alreadyCompleted {
		fields["completedAt"] = completedAt
	}
	if err := t.store.Update(ctx, store.UserPath(sess.userID), fields); err != nil {
		t.logger.Warn("failed to persist completion", "user_id", sess.userID, "error", err)
	}

	t.recordEvent(ctx, sess.userID, domain.EventSetCompleted, "", seconds)
	if t.notifier != nil {
		t.notifier.NotifyProgress(sess.userID, state)
	}

	if err := t.board.Submit(ctx, sess.userID, userName, seconds); err != nil {
		// no retry or outbox: the run's time is lost if this write fails
		t.logger.Error("failed to submit completion time", "user_id", sess.userID, "error", err)
	}
}

func (t *Tracker) recordEvent(ctx context.Context, userID, eventType, itemID string, seconds float64) {
	if t.audit == nil {
		return
	}
	event := domain.RunEvent{
		UserID:         userID,
		EventType:      eventType,
		ItemID:         itemID,
		CompletionTime: seconds,
		Timestamp:      t.clock.Now().Unix(),
	}
	if err := t.audit.RecordEvent(ctx, event); err != nil {
		t.logger.Warn("failed to record event", "event_type", eventType, "error", err)
	}
}

// Tick advances the user's timer by the wall-clock delta since the last
// tick. The serving layer calls this on its own schedule.
func (t *Tracker) Tick(userID string) {
	t.session(userID).timer.Tick()
}

// Timer exposes the session's timer to its owner.
func (t *Tracker) Timer(userID string) *timer.CompletionTimer {
	return t.session(userID).timer
}

// Progress returns a snapshot of the session's state.
func (t *Tracker) Progress(userID string) domain.SessionState {
	sess := t.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return t.stateLocked(sess)
}

// Notice returns the active transient notice, or "" once it expires.
func (t *Tracker) Notice(userID string) string {
	sess := t.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.notice != "" && t.clock.Now().After(sess.noticeUntil) {
		sess.notice = ""
	}
	return sess.notice
}

// ResetSession clears the session's timer and re-arms score submission.
// Collection history and the completedSet flag are untouched.
func (t *Tracker) ResetSession(userID string) {
	sess := t.session(userID)
	sess.timer.Reset()
	sess.mu.Lock()
	sess.collected = sess.collected[:0]
	sess.record.ItemsCollected = nil
	sess.completionFired = false
	sess.mu.Unlock()
	t.logger.Info("session reset", "user_id", userID)
}

// stateLocked materializes the public session state. Callers hold sess.mu.
func (t *Tracker) stateLocked(sess *session) domain.SessionState {
	ids := make([]string, len(sess.collected))
	copy(ids, sess.collected)
	return domain.SessionState{
		UserID:           sess.userID,
		ItemsCollected:   len(sess.collected),
		TotalItems:       t.totalItems,
		CollectedItemIDs: ids,
		Elapsed:          sess.timer.Formatted(),
		TimerRunning:     sess.timer.IsRunning(),
		Completed:        sess.record.CompletedSet,
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
