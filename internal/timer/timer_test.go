package timer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestTimer(t *testing.T) (*CompletionTimer, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return New(clock, slog.New(slog.NewTextHandler(io.Discard, nil))), clock
}

func TestStartResetsElapsed(t *testing.T) {
	tm, clock := newTestTimer(t)

	tm.Start()
	clock.Advance(10 * time.Second)
	tm.Tick()
	if got := tm.Elapsed(); got != 10*time.Second {
		t.Fatalf("Elapsed()=%v, want 10s", got)
	}

	tm.Start()
	if got := tm.Elapsed(); got != 0 {
		t.Fatalf("Elapsed() after restart=%v, want 0", got)
	}
	if tm.CurrentState() != Running {
		t.Fatalf("state=%v, want Running", tm.CurrentState())
	}
}

func TestPauseResume(t *testing.T) {
	tm, clock := newTestTimer(t)

	tm.Start()
	clock.Advance(3 * time.Second)
	tm.Pause()

	// time while paused must not count
	clock.Advance(time.Minute)
	if got := tm.Elapsed(); got != 3*time.Second {
		t.Fatalf("Elapsed() while paused=%v, want 3s", got)
	}

	tm.Resume()
	clock.Advance(2 * time.Second)
	tm.Tick()
	if got := tm.Elapsed(); got != 5*time.Second {
		t.Fatalf("Elapsed() after resume=%v, want 5s", got)
	}
}

func TestPauseWhenIdleIsNoop(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Pause()
	if tm.CurrentState() != Idle {
		t.Fatalf("state=%v, want Idle", tm.CurrentState())
	}
	tm.Resume()
	if tm.CurrentState() != Idle {
		t.Fatalf("state after Resume=%v, want Idle", tm.CurrentState())
	}
}

func TestStopSubmitsExactlyOnce(t *testing.T) {
	tm, clock := newTestTimer(t)

	tm.Start()
	clock.Advance(42 * time.Second)

	elapsed, submit := tm.Stop()
	if !submit {
		t.Fatalf("first Stop must report submit=true")
	}
	if elapsed != 42*time.Second {
		t.Fatalf("Stop elapsed=%v, want 42s", elapsed)
	}

	// a second run without Reset must never submit again
	tm.Start()
	clock.Advance(5 * time.Second)
	if _, submit := tm.Stop(); submit {
		t.Fatalf("second Stop must report submit=false")
	}
}

func TestStopWhenIdle(t *testing.T) {
	tm, _ := newTestTimer(t)
	elapsed, submit := tm.Stop()
	if submit {
		t.Fatalf("Stop on idle timer must report submit=false")
	}
	if elapsed != 0 {
		t.Fatalf("Stop on idle timer elapsed=%v, want 0", elapsed)
	}
	if tm.CurrentState() != Idle {
		t.Fatalf("state=%v, want Idle", tm.CurrentState())
	}
}

func TestStopFromPaused(t *testing.T) {
	tm, clock := newTestTimer(t)

	tm.Start()
	clock.Advance(7 * time.Second)
	tm.Pause()

	elapsed, submit := tm.Stop()
	if !submit {
		t.Fatalf("Stop from paused must report submit=true")
	}
	if elapsed != 7*time.Second {
		t.Fatalf("Stop elapsed=%v, want 7s", elapsed)
	}
}

func TestResetReArmsSubmission(t *testing.T) {
	tm, clock := newTestTimer(t)

	tm.Start()
	clock.Advance(time.Second)
	if _, submit := tm.Stop(); !submit {
		t.Fatalf("first Stop must submit")
	}

	tm.Reset()
	if tm.CurrentState() != Idle {
		t.Fatalf("state after Reset=%v, want Idle", tm.CurrentState())
	}
	if got := tm.Elapsed(); got != 0 {
		t.Fatalf("Elapsed() after Reset=%v, want 0", got)
	}

	tm.Start()
	clock.Advance(2 * time.Second)
	if _, submit := tm.Stop(); !submit {
		t.Fatalf("Stop after Reset must submit again")
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00.000"},
		{1500 * time.Millisecond, "00:01.500"},
		{62*time.Second + 45*time.Millisecond, "01:02.045"},
		{10*time.Minute + 3*time.Second, "10:03.000"},
		{-time.Second, "00:00.000"},
	}
	for _, tc := range cases {
		if got := Format(tc.d); got != tc.want {
			t.Fatalf("Format(%v)=%q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := FormatSeconds(83.25); got != "01:23.250" {
		t.Fatalf("FormatSeconds(83.25)=%q, want 01:23.250", got)
	}
}
