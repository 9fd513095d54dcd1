// Package countdown projects the producer-authoritative queue delay into a
// smooth local countdown. The producer pushes the remaining delay on a slow
// cadence; between pushes the projector interpolates against the local clock
// so the display ticks once a second instead of jumping.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/blockwatch/internal/models"
)

// TickInterval is the local display cadence.
const TickInterval = time.Second

// Phase is what the queue display should show right now.
type Phase int

const (
	// PhaseUnknown means no queue information has arrived yet.
	PhaseUnknown Phase = iota
	// PhasePosition means only a queue position is known, no countdown.
	PhasePosition
	// PhaseCounting means a countdown is live.
	PhaseCounting
	// PhasePreparing means the countdown hit zero but the job has not yet
	// reported leaving the queue.
	PhasePreparing
)

func (p Phase) String() string {
	switch p {
	case PhasePosition:
		return "position"
	case PhaseCounting:
		return "counting"
	case PhasePreparing:
		return "preparing"
	default:
		return "unknown"
	}
}

// Display is one rendered queue state.
type Display struct {
	Phase     Phase
	Position  *int
	Remaining time.Duration
	QueueInfo *models.QueueInfo
}

// Projector holds the countdown state for one queued job. All methods are
// safe for concurrent use; the zero value is not usable, construct with New.
type Projector struct {
	mu  sync.Mutex
	now func() time.Time

	position  *int
	queueInfo *models.QueueInfo

	hasAnchor  bool
	anchor     time.Duration // authoritative remaining at anchoredAt
	anchoredAt time.Time

	// lastShown enforces that the countdown never ticks upward between
	// authoritative updates for the same position.
	lastShown    time.Duration
	hasLastShown bool
}

// New creates a projector on the real clock.
func New() *Projector {
	return NewWithClock(time.Now)
}

// NewWithClock creates a projector with an injectable clock.
func NewWithClock(now func() time.Time) *Projector {
	return &Projector{now: now}
}

// Observe folds one queue-stage progress push into the projection. A nil
// delay leaves any running countdown interpolating; a position change resets
// the monotonic guard so a requeue may legitimately raise the countdown.
func (p *Projector) Observe(progress *models.Progress, info *models.QueueInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if progress.QueuePosition != nil {
		if p.position == nil || *p.position != *progress.QueuePosition {
			p.hasLastShown = false
		}
		v := *progress.QueuePosition
		p.position = &v
	}
	if info != nil {
		v := *info
		p.queueInfo = &v
	}
	if progress.QueueDelayRemainingMS != nil {
		p.hasAnchor = true
		p.anchor = time.Duration(*progress.QueueDelayRemainingMS) * time.Millisecond
		p.anchoredAt = p.now()
	}
}

// ObserveInfo folds standalone queue statistics into the projection, for a
// baseline fetched over REST rather than pushed with job progress.
func (p *Projector) ObserveInfo(info *models.QueueInfo) {
	if info == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v := *info
	p.queueInfo = &v
}

// Remaining returns the interpolated countdown, never negative, and never
// larger than the previous value returned for the same queue position.
func (p *Projector) Remaining() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remainingLocked()
}

func (p *Projector) remainingLocked() (time.Duration, bool) {
	if !p.hasAnchor {
		return 0, false
	}
	rem := p.anchor - p.now().Sub(p.anchoredAt)
	if rem < 0 {
		rem = 0
	}
	if p.hasLastShown && rem > p.lastShown {
		rem = p.lastShown
	}
	p.lastShown = rem
	p.hasLastShown = true
	return rem, true
}

// Display returns the current queue display state.
func (p *Projector) Display() Display {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := Display{Phase: PhaseUnknown}
	if p.position != nil {
		v := *p.position
		d.Position = &v
		d.Phase = PhasePosition
	}
	if p.queueInfo != nil {
		v := *p.queueInfo
		d.QueueInfo = &v
	}
	if rem, ok := p.remainingLocked(); ok {
		d.Remaining = rem
		if rem > 0 {
			d.Phase = PhaseCounting
		} else {
			d.Phase = PhasePreparing
		}
	}
	return d
}

// Reset clears all state, for when the job leaves the queue stage.
func (p *Projector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = nil
	p.queueInfo = nil
	p.hasAnchor = false
	p.hasLastShown = false
}

// Run invokes onTick with a fresh Display every TickInterval until the
// context is cancelled. Intended to drive a terminal or push-to-UI loop.
func (p *Projector) Run(ctx context.Context, onTick func(Display)) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onTick(p.Display())
		}
	}
}
