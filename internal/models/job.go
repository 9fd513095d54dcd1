package models

import "time"

// JobStatus is the lifecycle state of a blocklist build job.
type JobStatus string

// Job statuses. Completed, failed and skipped are terminal.
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusSkipped    JobStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// JobType describes how a job was triggered.
type JobType string

// Job types.
const (
	TypeManual    JobType = "manual"
	TypeScheduled JobType = "scheduled"
	TypeAdmin     JobType = "admin"
)

// Priority levels. Lower number means higher priority.
const (
	PriorityHigh   = 1
	PriorityNormal = 2
)

// QueueInfo carries queue statistics for a queued job. It is ephemeral:
// present only while the job is queued, and pushed on a slower cadence than
// per-job progress.
type QueueInfo struct {
	Position       int `json:"position"`
	TotalQueued    int `json:"total_queued"`
	ActiveWorkers  int `json:"active_workers"`
	JobsProcessing int `json:"jobs_processing"`
}

// Result is the terminal payload of a job.
type Result struct {
	TotalDomains    int            `json:"total_domains,omitempty"`
	RemovedDomains  int            `json:"removed_domains,omitempty"`
	OutputFiles     map[string]int `json:"output_files,omitempty"` // format name -> byte size
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
	SkipReason      string         `json:"skip_reason,omitempty"`
}

// Job is one tracked execution of the blocklist build pipeline, as emitted by
// the producer. A nil UserID means a system-wide default-list job.
type Job struct {
	JobID    string    `json:"job_id"`
	UserID   *string   `json:"user_id"`
	Username string    `json:"username"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Priority int       `json:"priority"`

	// Revision increases monotonically with every update the producer emits
	// for this job. Updates that do not carry a strictly greater revision
	// than the stored record are discarded by the reconciler.
	Revision int64 `json:"revision"`

	Progress  Progress   `json:"progress"`
	QueueInfo *QueueInfo `json:"queue_info,omitempty"`
	Result    *Result    `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	WorkerID *string `json:"worker_id,omitempty"`

	// Read records whether the observer has acknowledged this job. It is the
	// only field that may change after the job turns terminal.
	Read bool `json:"read,omitempty"`
}

// Owner returns the owning user id, or the empty string for default jobs.
func (j *Job) Owner() string {
	if j.UserID == nil {
		return ""
	}
	return *j.UserID
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.UserID != nil {
		v := *j.UserID
		c.UserID = &v
	}
	if j.QueueInfo != nil {
		v := *j.QueueInfo
		c.QueueInfo = &v
	}
	if j.Result != nil {
		v := *j.Result
		if j.Result.OutputFiles != nil {
			v.OutputFiles = make(map[string]int, len(j.Result.OutputFiles))
			for k, size := range j.Result.OutputFiles {
				v.OutputFiles[k] = size
			}
		}
		v.Errors = append([]string(nil), j.Result.Errors...)
		c.Result = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	if j.WorkerID != nil {
		v := *j.WorkerID
		c.WorkerID = &v
	}
	c.Progress = *j.Progress.Clone()
	return &c
}
