package reconciler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/metrics"
	"github.com/jonesrussell/blockwatch/internal/models"
)

// Defaults, overridable through Config.
const (
	DefaultHistoryLimit = 50
	DefaultPurgeGrace   = 5 * time.Second
)

// Config tunes the reconciler table.
type Config struct {
	// HistoryLimit caps the number of retained job records; the oldest
	// record is evicted when a new job arrives at the cap.
	HistoryLimit int

	// PurgeGrace is how long derived projections survive after a job turns
	// terminal. The record itself is kept until evicted by the history cap.
	PurgeGrace time.Duration
}

// DefaultConfig returns the standard table tuning.
func DefaultConfig() Config {
	return Config{HistoryLimit: DefaultHistoryLimit, PurgeGrace: DefaultPurgeGrace}
}

// Projection is the derived per-job state rebuilt on every accepted update.
// It trades memory for O(1) lookups the display layer performs on every
// frame.
type Projection struct {
	SourcesByID   map[string]models.SourceProgress
	Whitelist     *models.WhitelistProgress
	FormatsByName map[string]models.FormatProgress
}

type entry struct {
	job        *models.Job
	projection *Projection
	purgeTimer *time.Timer
}

// ChangeListener is invoked after an accepted mutation, outside the table
// lock, with the id of the affected job.
type ChangeListener func(jobID string)

// Table is the canonical client-side job state: a most-recent-first list of
// job records reconciled from create/update/skip events. Whole records are
// replaced on update; a per-job revision guard discards stale or reordered
// frames so a terminal record can never regress to an earlier state.
type Table struct {
	logger  logger.Logger
	metrics *metrics.Metrics
	config  Config

	mu        sync.Mutex
	order     []string // job ids, most recent first
	entries   map[string]*entry
	listeners []ChangeListener
	closed    bool
}

// New creates an empty table.
func New(cfg Config, log logger.Logger, mx *metrics.Metrics) *Table {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.PurgeGrace <= 0 {
		cfg.PurgeGrace = DefaultPurgeGrace
	}
	return &Table{
		logger:  log,
		metrics: mx,
		config:  cfg,
		entries: make(map[string]*entry),
	}
}

// OnChange registers a listener for accepted mutations.
func (t *Table) OnChange(l ChangeListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// ApplyCreated inserts a new job at the head of the table. Replayed creations
// for a known job are folded into ApplyUpdate, so applying the same creation
// twice yields one record.
func (t *Table) ApplyCreated(job *models.Job) error {
	if job == nil || job.JobID == "" {
		return fmt.Errorf("created event without job id")
	}

	t.mu.Lock()
	if _, ok := t.entries[job.JobID]; ok {
		t.mu.Unlock()
		err := t.ApplyUpdate(job)
		if err == models.ErrStaleRevision {
			// A replayed creation carries no new information.
			return nil
		}
		return err
	}

	t.insertLocked(job)
	t.metrics.SetJobsTracked(len(t.order))
	t.mu.Unlock()

	t.notify(job.JobID)
	return nil
}

// ApplyUpdate replaces the stored record wholesale with the incoming one.
// The update is discarded when its revision is not strictly greater than the
// stored record's, or when it would move a terminal job back to a live
// status. An update for an unknown job is treated as a late creation.
func (t *Table) ApplyUpdate(job *models.Job) error {
	if job == nil || job.JobID == "" {
		return fmt.Errorf("update event without job id")
	}

	t.mu.Lock()
	e, ok := t.entries[job.JobID]
	if !ok {
		t.insertLocked(job)
		t.metrics.SetJobsTracked(len(t.order))
		t.mu.Unlock()
		t.notify(job.JobID)
		return nil
	}

	if job.Revision <= e.job.Revision {
		t.mu.Unlock()
		t.metrics.StaleRevision()
		t.logger.Debug("discarding stale update",
			logger.String("job_id", job.JobID),
			logger.Int64("revision", job.Revision),
			logger.Int64("stored_revision", e.job.Revision),
		)
		return models.ErrStaleRevision
	}
	if e.job.Status.Terminal() && !job.Status.Terminal() {
		t.mu.Unlock()
		t.metrics.StaleRevision()
		return models.ErrTerminal
	}

	replacement := job.Clone()
	// Read acknowledgement is client-side state the producer does not carry.
	replacement.Read = replacement.Read || e.job.Read
	e.job = replacement
	e.projection = project(replacement)
	t.armPurgeLocked(e)
	t.mu.Unlock()

	t.notify(job.JobID)
	return nil
}

// ApplySkipped patches the identified job to skipped with the given reason,
// leaving every other field untouched. Unknown job ids get a minimal record
// so the skip still shows up in history; jobs already terminal are left
// alone.
func (t *Table) ApplySkipped(skip models.SkippedPayload) error {
	if skip.JobID == "" {
		return fmt.Errorf("skipped event without job id")
	}

	t.mu.Lock()
	e, ok := t.entries[skip.JobID]
	if !ok {
		stub := &models.Job{
			JobID:     skip.JobID,
			Status:    models.StatusSkipped,
			Result:    &models.Result{SkipReason: skip.Reason},
			CreatedAt: time.Now().UTC(),
		}
		t.insertLocked(stub)
		t.metrics.SetJobsTracked(len(t.order))
		t.mu.Unlock()
		t.notify(skip.JobID)
		return nil
	}

	if e.job.Status.Terminal() {
		t.mu.Unlock()
		return models.ErrTerminal
	}

	patched := e.job.Clone()
	patched.Status = models.StatusSkipped
	if patched.Result == nil {
		patched.Result = &models.Result{}
	}
	patched.Result.SkipReason = skip.Reason
	e.job = patched
	t.armPurgeLocked(e)
	t.mu.Unlock()

	t.notify(skip.JobID)
	return nil
}

// MarkRead flags a job as acknowledged. This is the one mutation allowed on a
// terminal record.
func (t *Table) MarkRead(jobID string) error {
	t.mu.Lock()
	e, ok := t.entries[jobID]
	if !ok {
		t.mu.Unlock()
		return models.ErrNotFound
	}
	e.job.Read = true
	t.mu.Unlock()

	t.notify(jobID)
	return nil
}

// Job returns a copy of one record.
func (t *Table) Job(jobID string) (*models.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e.job.Clone(), nil
}

// Jobs returns copies of all records, most recent first.
func (t *Table) Jobs() []*models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.Job, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].job.Clone())
	}
	return out
}

// Len returns the number of tracked records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Projection returns the derived lookup state for a job, or nil when the
// projection has been purged after the terminal grace period.
func (t *Table) Projection(jobID string) (*Projection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e.projection, nil
}

// SortedSources returns the job's live source list ordered for display:
// active downloads first, then processing, pending, failed, completed, with
// a name tiebreak inside each band.
func (t *Table) SortedSources(jobID string) ([]models.SourceProgress, error) {
	t.mu.Lock()
	e, ok := t.entries[jobID]
	if !ok {
		t.mu.Unlock()
		return nil, models.ErrNotFound
	}
	sources := make([]models.SourceProgress, len(e.job.Progress.Sources))
	copy(sources, e.job.Progress.Sources)
	t.mu.Unlock()

	sort.SliceStable(sources, func(i, j int) bool {
		pi, pj := sourceRank(sources[i].Status), sourceRank(sources[j].Status)
		if pi != pj {
			return pi < pj
		}
		return sources[i].Name < sources[j].Name
	})
	return sources, nil
}

// Close cancels pending purge timers.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, e := range t.entries {
		if e.purgeTimer != nil {
			e.purgeTimer.Stop()
			e.purgeTimer = nil
		}
	}
}

func sourceRank(s models.SourceStatus) int {
	switch s {
	case models.SourceDownloading:
		return 0
	case models.SourceProcessing:
		return 1
	case models.SourcePending:
		return 2
	case models.SourceFailed:
		return 3
	case models.SourceCompleted:
		return 4
	default:
		return 5
	}
}

// insertLocked prepends a record, evicting the oldest past the history cap.
func (t *Table) insertLocked(job *models.Job) {
	stored := job.Clone()
	e := &entry{job: stored, projection: project(stored)}
	t.entries[job.JobID] = e
	t.order = append([]string{job.JobID}, t.order...)
	t.armPurgeLocked(e)

	for len(t.order) > t.config.HistoryLimit {
		victim := t.order[len(t.order)-1]
		t.order = t.order[:len(t.order)-1]
		if old := t.entries[victim]; old.purgeTimer != nil {
			old.purgeTimer.Stop()
		}
		delete(t.entries, victim)
		t.logger.Debug("evicted oldest job record", logger.String("job_id", victim))
	}
}

// armPurgeLocked schedules projection teardown once the record is terminal.
func (t *Table) armPurgeLocked(e *entry) {
	if !e.job.Status.Terminal() || e.purgeTimer != nil || t.closed {
		return
	}
	id := e.job.JobID
	e.purgeTimer = time.AfterFunc(t.config.PurgeGrace, func() {
		t.purgeProjection(id)
	})
}

func (t *Table) purgeProjection(jobID string) {
	t.mu.Lock()
	e, ok := t.entries[jobID]
	if !ok {
		t.mu.Unlock()
		return
	}
	// The timer has fired; drop it so a later accepted terminal replace can
	// arm a fresh purge for its rebuilt projection.
	e.purgeTimer = nil
	if e.projection == nil {
		t.mu.Unlock()
		return
	}
	e.projection = nil
	t.mu.Unlock()

	t.metrics.ProjectionPurge()
	t.logger.Debug("purged terminal job projection", logger.String("job_id", jobID))
}

// project rebuilds the full derived state from one record. Recomputing from
// scratch keeps the projection trivially consistent with whole-record
// replacement.
func project(job *models.Job) *Projection {
	p := &Projection{
		SourcesByID:   make(map[string]models.SourceProgress, len(job.Progress.Sources)),
		FormatsByName: make(map[string]models.FormatProgress),
	}
	for _, src := range job.Progress.Sources {
		p.SourcesByID[src.ID] = src
	}
	if job.Progress.Whitelist != nil {
		w := *job.Progress.Whitelist
		p.Whitelist = &w
	}
	if job.Progress.Generation != nil {
		for _, f := range job.Progress.Generation.Formats {
			p.FormatsByName[f.Format] = f
		}
	}
	return p
}

func (t *Table) notify(jobID string) {
	t.mu.Lock()
	listeners := make([]ChangeListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l(jobID)
	}
}
