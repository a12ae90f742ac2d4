package clock

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeWall is a manually-advanced wall clock.
type fakeWall struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeWall() *fakeWall {
	return &fakeWall{t: time.Unix(1000, 0)}
}

func (f *fakeWall) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeWall) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestNowAdvancesWithWallTime(t *testing.T) {
	wall := newFakeWall()
	c := New(100, WithWallClock(wall.now))
	if got := c.Now(); got != 100 {
		t.Fatalf("Now = %d, want 100", got)
	}
	wall.advance(50 * time.Nanosecond)
	if got := c.Now(); got != 150 {
		t.Fatalf("Now = %d, want 150", got)
	}
}

func TestJumpThenNow(t *testing.T) {
	wall := newFakeWall()
	c := New(0, WithWallClock(wall.now))
	c.Jump(424242)
	if got := c.Now(); got != 424242 {
		t.Fatalf("Now after Jump = %d, want 424242", got)
	}
}

func TestPauseHoldsTime(t *testing.T) {
	wall := newFakeWall()
	c := New(0, WithWallClock(wall.now))
	wall.advance(10 * time.Nanosecond)
	c.Pause()
	at := c.Now()
	wall.advance(time.Hour)
	if got := c.Now(); got != at {
		t.Fatalf("paused Now = %d, want %d", got, at)
	}
}

func TestPauseResumeNoElapsedWallTime(t *testing.T) {
	wall := newFakeWall()
	c := New(500, WithWallClock(wall.now))
	c.Pause()
	c.Resume()
	if got := c.Now(); got != 500 {
		t.Fatalf("Now after pause/resume = %d, want 500", got)
	}
}

func TestSetRateScalesElapsed(t *testing.T) {
	wall := newFakeWall()
	c := New(0, WithWallClock(wall.now))
	wall.advance(100 * time.Nanosecond)
	if !c.SetRate(2.0) {
		t.Fatalf("SetRate(2.0) rejected")
	}
	// 100ns at rate 1 before the change, then 100ns at rate 2.
	wall.advance(100 * time.Nanosecond)
	if got := c.Now(); got != 300 {
		t.Fatalf("Now = %d, want 300", got)
	}
}

func TestSetRateRejectsNonPositive(t *testing.T) {
	c := New(0)
	if c.SetRate(0) {
		t.Fatalf("SetRate(0) accepted")
	}
	if c.SetRate(-1.5) {
		t.Fatalf("SetRate(-1.5) accepted")
	}
	if got := c.Rate(); got != 1.0 {
		t.Fatalf("rate changed to %v after rejected sets", got)
	}
}

func TestSleepUntilReachesTarget(t *testing.T) {
	start := time.Now()
	c := New(0)
	if !c.SleepUntil(context.Background(), int64(20*time.Millisecond)) {
		t.Fatalf("SleepUntil returned early")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("SleepUntil returned after only %v", elapsed)
	}
}

func TestSleepUntilWokenByJump(t *testing.T) {
	c := New(0)
	done := make(chan bool, 1)
	go func() {
		done <- c.SleepUntil(context.Background(), int64(time.Hour))
	}()
	time.Sleep(10 * time.Millisecond)
	c.Jump(int64(time.Minute))
	select {
	case reached := <-done:
		if reached {
			t.Fatalf("SleepUntil reported target reached after jump")
		}
	case <-time.After(time.Second):
		t.Fatalf("SleepUntil did not wake on jump")
	}
}

func TestSleepUntilNeverReachesWhilePaused(t *testing.T) {
	c := New(0)
	c.Pause()
	done := make(chan bool, 1)
	go func() {
		// Target is already in the past; a paused clock must still not
		// report it as reached.
		done <- c.SleepUntil(context.Background(), 0)
	}()
	select {
	case <-done:
		t.Fatalf("SleepUntil returned while paused with no state change")
	case <-time.After(20 * time.Millisecond):
	}
	c.Resume()
	select {
	case reached := <-done:
		if reached {
			t.Fatalf("SleepUntil reported reached on the wake after resume")
		}
	case <-time.After(time.Second):
		t.Fatalf("SleepUntil did not wake on resume")
	}
}

func TestSleepUntilCancelled(t *testing.T) {
	c := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- c.SleepUntil(ctx, int64(time.Hour))
	}()
	cancel()
	select {
	case reached := <-done:
		if reached {
			t.Fatalf("cancelled SleepUntil reported target reached")
		}
	case <-time.After(time.Second):
		t.Fatalf("SleepUntil did not observe cancellation")
	}
}

func TestRateChangeWakesSleeper(t *testing.T) {
	c := New(0)
	done := make(chan bool, 1)
	go func() {
		done <- c.SleepUntil(context.Background(), int64(time.Hour))
	}()
	time.Sleep(10 * time.Millisecond)
	c.SetRate(1000)
	select {
	case reached := <-done:
		if reached {
			t.Fatalf("rate change should wake as not-reached")
		}
	case <-time.After(time.Second):
		t.Fatalf("SleepUntil did not wake on rate change")
	}
}
