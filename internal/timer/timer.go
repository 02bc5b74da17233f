// Package timer implements the run stopwatch: a small state machine whose
// Stop gates one-time score submission.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the stopwatch state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CompletionTimer tracks elapsed run time. Elapsed advances on Tick with
// wall-clock deltas; the timer never schedules itself, the owning layer
// drives it. The submission guard set by the first successful Stop is
// cleared only by Reset, so repeated Stops cannot double-submit a score.
type CompletionTimer struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	logger       *slog.Logger
	state        State
	elapsed      time.Duration
	lastTick     time.Time
	hasSubmitted bool
}

// New returns an idle timer.
func New(clock clockwork.Clock, logger *slog.Logger) *CompletionTimer {
	return &CompletionTimer{
		clock:  clock,
		logger: logger,
		state:  Idle,
	}
}

// Start resets elapsed to 0 and enters Running, unconditionally.
func (t *CompletionTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Running
	t.elapsed = 0
	t.lastTick = t.clock.Now()
	t.logger.Info("timer started")
}

// Pause freezes elapsed without resetting it. No-op unless Running.
func (t *CompletionTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.fold()
	t.state = Paused
	t.logger.Info("timer paused", "elapsed", Format(t.elapsed))
}

// Resume continues a paused timer. No-op unless Paused.
func (t *CompletionTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return
	}
	t.state = Running
	t.lastTick = t.clock.Now()
	t.logger.Info("timer resumed")
}

// Tick folds the wall-clock delta since the last tick into elapsed. The
// owning layer calls this from its scheduling loop while the timer runs.
func (t *CompletionTimer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.fold()
}

// fold accumulates time since lastTick. Callers hold t.mu.
func (t *CompletionTimer) fold() {
	now := t.clock.Now()
	t.elapsed += now.Sub(t.lastTick)
	t.lastTick = now
}

// Stop halts the timer and reports the final elapsed time. The boolean is
// true only for the first successful Stop since the last Reset; callers
// submit the score exactly when it is true. Stopping an idle or already
// stopped timer is a warned no-op.
func (t *CompletionTimer) Stop() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Running && t.state != Paused {
		t.logger.Warn("stop ignored, timer not running", "state", t.state.String())
		return t.elapsed, false
	}

	if t.state == Running {
		t.fold()
	}
	t.state = Stopped

	if t.hasSubmitted {
		t.logger.Warn("score already submitted for this run")
		return t.elapsed, false
	}
	t.hasSubmitted = true
	t.logger.Info("timer stopped", "final", Format(t.elapsed))
	return t.elapsed, true
}

// Reset returns the timer to Idle with zero elapsed and re-arms the
// submission guard.
func (t *CompletionTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Idle
	t.elapsed = 0
	t.hasSubmitted = false
	t.logger.Info("timer reset")
}

// Elapsed returns the accumulated time, including the live delta while
// Running.
func (t *CompletionTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running {
		return t.elapsed + t.clock.Now().Sub(t.lastTick)
	}
	return t.elapsed
}

// IsRunning reports whether the timer is currently advancing.
func (t *CompletionTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Running
}

// CurrentState returns the timer state.
func (t *CompletionTimer) CurrentState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Formatted renders the current elapsed time.
func (t *CompletionTimer) Formatted() string {
	return Format(t.Elapsed())
}

// Format renders a duration as MM:SS.mmm.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}

// FormatSeconds renders a completion time in seconds as MM:SS.mmm.
func FormatSeconds(seconds float64) string {
	return Format(time.Duration(seconds * float64(time.Second)))
}
