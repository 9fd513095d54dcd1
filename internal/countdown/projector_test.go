package countdown

import (
	"testing"
	"time"

	"github.com/jonesrussell/blockwatch/internal/models"
)

// fakeClock is a hand-advanced clock for deterministic interpolation tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func queueProgress(position int, delayMS int64) *models.Progress {
	return &models.Progress{
		Stage:                 models.StageQueue,
		QueuePosition:         &position,
		QueueDelayRemainingMS: &delayMS,
	}
}

func TestRemainingInterpolates(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock.now)

	p.Observe(queueProgress(1, 10_000), nil)

	rem, ok := p.Remaining()
	if !ok || rem != 10*time.Second {
		t.Fatalf("Remaining() = %v, %v; want 10s, true", rem, ok)
	}

	clock.advance(3 * time.Second)
	if rem, _ := p.Remaining(); rem != 7*time.Second {
		t.Errorf("after 3s: Remaining() = %v, want 7s", rem)
	}

	clock.advance(8 * time.Second)
	if rem, _ := p.Remaining(); rem != 0 {
		t.Errorf("past anchor: Remaining() = %v, want 0", rem)
	}
}

func TestRemainingNeverIncreasesForSamePosition(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock.now)

	p.Observe(queueProgress(1, 10_000), nil)
	clock.advance(4 * time.Second)
	if rem, _ := p.Remaining(); rem != 6*time.Second {
		t.Fatalf("Remaining() = %v, want 6s", rem)
	}

	// A jittery authoritative push slightly above the displayed value must
	// not tick the countdown upward.
	p.Observe(queueProgress(1, 6_500), nil)
	if rem, _ := p.Remaining(); rem > 6*time.Second {
		t.Errorf("Remaining() = %v, countdown increased", rem)
	}

	// Successive reads keep decreasing.
	clock.advance(time.Second)
	rem1, _ := p.Remaining()
	clock.advance(time.Second)
	rem2, _ := p.Remaining()
	if rem2 > rem1 {
		t.Errorf("Remaining went %v -> %v", rem1, rem2)
	}
}

func TestPositionChangeAllowsHigherCountdown(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock.now)

	p.Observe(queueProgress(1, 5_000), nil)
	clock.advance(4 * time.Second)
	if rem, _ := p.Remaining(); rem != time.Second {
		t.Fatalf("Remaining() = %v, want 1s", rem)
	}

	// Requeued behind another job: countdown legitimately grows.
	p.Observe(queueProgress(2, 30_000), nil)
	if rem, _ := p.Remaining(); rem != 30*time.Second {
		t.Errorf("after requeue: Remaining() = %v, want 30s", rem)
	}
}

func TestDisplayPhases(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock.now)

	if got := p.Display().Phase; got != PhaseUnknown {
		t.Errorf("initial phase = %v, want unknown", got)
	}

	// Position only, no delay yet.
	pos := 3
	p.Observe(&models.Progress{Stage: models.StageQueue, QueuePosition: &pos}, nil)
	if got := p.Display().Phase; got != PhasePosition {
		t.Errorf("phase = %v, want position", got)
	}

	p.Observe(queueProgress(3, 2_000), &models.QueueInfo{TotalQueued: 5, ActiveWorkers: 2})
	d := p.Display()
	if d.Phase != PhaseCounting {
		t.Errorf("phase = %v, want counting", d.Phase)
	}
	if d.QueueInfo == nil || d.QueueInfo.TotalQueued != 5 {
		t.Errorf("queue info = %+v", d.QueueInfo)
	}

	clock.advance(3 * time.Second)
	if got := p.Display().Phase; got != PhasePreparing {
		t.Errorf("phase after countdown exhausted = %v, want preparing", got)
	}

	p.Reset()
	if got := p.Display().Phase; got != PhaseUnknown {
		t.Errorf("phase after reset = %v, want unknown", got)
	}
}
