package models

import "time"

// Stage is one of the five sequential phases a job passes through. Stages are
// strictly sequential; the producer never skips one.
type Stage string

// Job stages, in order.
const (
	StageQueue       Stage = "queue"
	StageDownloading Stage = "downloading"
	StageWhitelist   Stage = "whitelist"
	StageGeneration  Stage = "generation"
	StageCompleted   Stage = "completed"
)

var stageOrder = map[Stage]int{
	StageQueue:       0,
	StageDownloading: 1,
	StageWhitelist:   2,
	StageGeneration:  3,
	StageCompleted:   4,
}

// Index returns the ordinal position of the stage, or -1 for an unknown
// stage value.
func (s Stage) Index() int {
	if i, ok := stageOrder[s]; ok {
		return i
	}
	return -1
}

// Before reports whether s is strictly earlier than other in stage order.
func (s Stage) Before(other Stage) bool {
	si, oi := s.Index(), other.Index()
	return si >= 0 && oi >= 0 && si < oi
}

// SourceStatus is the download state of a single blocklist source.
type SourceStatus string

// Source statuses.
const (
	SourcePending     SourceStatus = "pending"
	SourceDownloading SourceStatus = "downloading"
	SourceProcessing  SourceStatus = "processing"
	SourceCompleted   SourceStatus = "completed"
	SourceFailed      SourceStatus = "failed"
)

// SourceProgress tracks one source URL through download and extraction.
// The ID is a hash of the source URL.
type SourceProgress struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	URL             string       `json:"url"`
	Status          SourceStatus `json:"status"`
	CacheHit        *bool        `json:"cache_hit,omitempty"`
	BytesDownloaded int64        `json:"bytes_downloaded"`
	BytesTotal      *int64       `json:"bytes_total,omitempty"`
	DownloadPercent *float64     `json:"download_percent,omitempty"`
	DownloadTimeMS  *int64       `json:"download_time_ms,omitempty"`
	DomainCount     *int64       `json:"domain_count,omitempty"`
	DomainChange    *int64       `json:"domain_change,omitempty"` // vs previous run
	Error           *string      `json:"error,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	StartedAt       *string      `json:"started_at,omitempty"`
	CompletedAt     *string      `json:"completed_at,omitempty"`
}

// WhitelistPatternMatch records how one whitelist pattern performed.
type WhitelistPatternMatch struct {
	Pattern     string   `json:"pattern"`
	PatternType string   `json:"pattern_type"` // exact, wildcard, regex, subdomain
	MatchCount  int64    `json:"match_count"`
	Samples     []string `json:"samples,omitempty"` // first few matched domains
}

// WhitelistProgress tracks the whitelist filtering stage.
type WhitelistProgress struct {
	DomainsBefore int64                   `json:"domains_before"`
	DomainsAfter  int64                   `json:"domains_after"`
	TotalRemoved  int64                   `json:"total_removed"`
	Patterns      []WhitelistPatternMatch `json:"patterns,omitempty"`
	Processing    bool                    `json:"processing"`
}

// FormatStatus is the generation state of one output format.
type FormatStatus string

// Format statuses.
const (
	FormatPending     FormatStatus = "pending"
	FormatGenerating  FormatStatus = "generating"
	FormatCompressing FormatStatus = "compressing"
	FormatCompleted   FormatStatus = "completed"
)

// FormatProgress tracks generation of one output format (hosts, plain,
// adblock).
type FormatProgress struct {
	Format         string       `json:"format"`
	Status         FormatStatus `json:"status"`
	DomainsWritten int64        `json:"domains_written"`
	TotalDomains   int64        `json:"total_domains"`
	Percent        float64      `json:"percent"`
	FileSize       *int64       `json:"file_size,omitempty"`
	GzSize         *int64       `json:"gz_size,omitempty"`
}

// GenerationProgress tracks the output generation stage.
type GenerationProgress struct {
	Formats       []FormatProgress `json:"formats,omitempty"`
	CurrentFormat *string          `json:"current_format,omitempty"`
}

// StageSnapshot is the frozen final payload of a stage, written by the
// producer the moment the job leaves that stage. Immutable once written; the
// client only ever reads it.
type StageSnapshot struct {
	Data        StageData `json:"data"`
	CompletedAt time.Time `json:"completed_at"`
}

// StageData holds the per-stage payload frozen inside a snapshot. Exactly the
// fields relevant to the snapshotted stage are populated.
type StageData struct {
	QueuePosition         *int                `json:"queue_position,omitempty"`
	QueueDelayRemainingMS *int64              `json:"queue_delay_remaining_ms,omitempty"`
	TotalSources          int                 `json:"total_sources,omitempty"`
	ProcessedSources      int                 `json:"processed_sources,omitempty"`
	Sources               []SourceProgress    `json:"sources,omitempty"`
	Whitelist             *WhitelistProgress  `json:"whitelist,omitempty"`
	Generation            *GenerationProgress `json:"generation,omitempty"`
}

// Progress is the enhanced job progress payload as emitted on the wire.
// Stage-specific sub-structures are present only once their stage has been
// reached; missing fields decode to zero values so a partial payload degrades
// the display rather than failing (use the snapshot package's typed views to
// read stage payloads safely).
type Progress struct {
	Stage Stage `json:"stage"`

	// Queue stage.
	QueuePosition         *int   `json:"queue_position,omitempty"`
	QueueDelayRemainingMS *int64 `json:"queue_delay_remaining_ms,omitempty"`

	// Downloading stage.
	TotalSources     int              `json:"total_sources"`
	ProcessedSources int              `json:"processed_sources"`
	Sources          []SourceProgress `json:"sources,omitempty"`

	// Whitelist stage.
	Whitelist *WhitelistProgress `json:"whitelist,omitempty"`

	// Generation stage.
	Generation *GenerationProgress `json:"generation,omitempty"`

	StageStartedAt *string `json:"stage_started_at,omitempty"`

	// StageSnapshots holds a frozen copy of each stage strictly before the
	// current one, keyed by stage name.
	StageSnapshots map[Stage]StageSnapshot `json:"stage_snapshots,omitempty"`
}

// Snapshot returns the frozen snapshot for the given stage, if the job has
// moved past it.
func (p *Progress) Snapshot(stage Stage) (StageSnapshot, bool) {
	snap, ok := p.StageSnapshots[stage]
	return snap, ok
}

// SourceByID returns the live progress record for one source, if present.
func (p *Progress) SourceByID(id string) (SourceProgress, bool) {
	for i := range p.Sources {
		if p.Sources[i].ID == id {
			return p.Sources[i], true
		}
	}
	return SourceProgress{}, false
}

// Clone returns a deep copy of the progress payload.
func (p *Progress) Clone() *Progress {
	c := *p
	if p.QueuePosition != nil {
		v := *p.QueuePosition
		c.QueuePosition = &v
	}
	if p.QueueDelayRemainingMS != nil {
		v := *p.QueueDelayRemainingMS
		c.QueueDelayRemainingMS = &v
	}
	c.Sources = cloneSources(p.Sources)
	if p.Whitelist != nil {
		c.Whitelist = cloneWhitelist(p.Whitelist)
	}
	if p.Generation != nil {
		c.Generation = cloneGeneration(p.Generation)
	}
	if p.StageStartedAt != nil {
		v := *p.StageStartedAt
		c.StageStartedAt = &v
	}
	if p.StageSnapshots != nil {
		c.StageSnapshots = make(map[Stage]StageSnapshot, len(p.StageSnapshots))
		for stage, snap := range p.StageSnapshots {
			s := snap
			s.Data.Sources = cloneSources(snap.Data.Sources)
			if snap.Data.Whitelist != nil {
				s.Data.Whitelist = cloneWhitelist(snap.Data.Whitelist)
			}
			if snap.Data.Generation != nil {
				s.Data.Generation = cloneGeneration(snap.Data.Generation)
			}
			c.StageSnapshots[stage] = s
		}
	}
	return &c
}

func cloneSources(in []SourceProgress) []SourceProgress {
	if in == nil {
		return nil
	}
	out := make([]SourceProgress, len(in))
	copy(out, in)
	for i := range out {
		out[i].Warnings = append([]string(nil), in[i].Warnings...)
	}
	return out
}

func cloneWhitelist(in *WhitelistProgress) *WhitelistProgress {
	out := *in
	out.Patterns = append([]WhitelistPatternMatch(nil), in.Patterns...)
	return &out
}

func cloneGeneration(in *GenerationProgress) *GenerationProgress {
	out := *in
	out.Formats = append([]FormatProgress(nil), in.Formats...)
	if in.CurrentFormat != nil {
		v := *in.CurrentFormat
		out.CurrentFormat = &v
	}
	return &out
}
