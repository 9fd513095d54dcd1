// Package snapshot provides typed read-side views over a job's stage
// payloads. The wire format is a flat progress object plus a map of frozen
// per-stage snapshots; these views give each stage a concrete shape so
// display code never pokes at fields belonging to another stage.
package snapshot

import (
	"fmt"
	"time"

	"github.com/jonesrussell/blockwatch/internal/models"
)

// View is a stage payload read either live (the job is in that stage now) or
// frozen (the job has moved past it). The set of implementations is closed:
// QueueView, DownloadView, WhitelistView and GenerationView.
type View interface {
	// Stage identifies which stage the view describes.
	Stage() models.Stage

	// Frozen reports whether the view was built from an immutable stage
	// snapshot rather than live progress.
	Frozen() bool

	isView()
}

type meta struct {
	frozen      bool
	completedAt time.Time
}

func (m meta) Frozen() bool { return m.frozen }

// CompletedAt returns when the stage finished. Zero for live views.
func (m meta) CompletedAt() time.Time { return m.completedAt }

func (meta) isView() {}

// QueueView is the queue stage payload: the job's place in line and the
// producer-authoritative countdown.
type QueueView struct {
	meta
	Position         *int
	DelayRemainingMS *int64
}

func (QueueView) Stage() models.Stage { return models.StageQueue }

// DownloadView is the downloading stage payload.
type DownloadView struct {
	meta
	TotalSources     int
	ProcessedSources int
	Sources          []models.SourceProgress
}

func (DownloadView) Stage() models.Stage { return models.StageDownloading }

// Percent returns overall download completion in [0,100].
func (v DownloadView) Percent() float64 {
	if v.TotalSources == 0 {
		return 0
	}
	return float64(v.ProcessedSources) / float64(v.TotalSources) * 100
}

// WhitelistView is the whitelist filtering stage payload.
type WhitelistView struct {
	meta
	models.WhitelistProgress
}

func (WhitelistView) Stage() models.Stage { return models.StageWhitelist }

// GenerationView is the output generation stage payload.
type GenerationView struct {
	meta
	Formats       []models.FormatProgress
	CurrentFormat *string
}

func (GenerationView) Stage() models.Stage { return models.StageGeneration }

// For builds the view of one stage from a job's progress. The current stage
// yields a live view; any stage the job has moved past yields a frozen view
// from its snapshot. Stages not yet reached, or reached but not snapshotted,
// return models.ErrNoSnapshot.
func For(p *models.Progress, stage models.Stage) (View, error) {
	if stage.Index() < 0 {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if stage == models.StageCompleted {
		return nil, fmt.Errorf("completed stage carries no payload")
	}

	if stage == p.Stage {
		return liveView(p, stage), nil
	}

	snap, ok := p.Snapshot(stage)
	if !ok {
		return nil, models.ErrNoSnapshot
	}
	return frozenView(stage, snap), nil
}

// Current returns the live view of the job's current stage.
func Current(p *models.Progress) (View, error) {
	return For(p, p.Stage)
}

func liveView(p *models.Progress, stage models.Stage) View {
	switch stage {
	case models.StageQueue:
		return QueueView{
			Position:         p.QueuePosition,
			DelayRemainingMS: p.QueueDelayRemainingMS,
		}
	case models.StageDownloading:
		return DownloadView{
			TotalSources:     p.TotalSources,
			ProcessedSources: p.ProcessedSources,
			Sources:          p.Sources,
		}
	case models.StageWhitelist:
		v := WhitelistView{}
		if p.Whitelist != nil {
			v.WhitelistProgress = *p.Whitelist
		}
		return v
	default:
		v := GenerationView{}
		if p.Generation != nil {
			v.Formats = p.Generation.Formats
			v.CurrentFormat = p.Generation.CurrentFormat
		}
		return v
	}
}

func frozenView(stage models.Stage, snap models.StageSnapshot) View {
	m := meta{frozen: true, completedAt: snap.CompletedAt}
	switch stage {
	case models.StageQueue:
		return QueueView{
			meta:             m,
			Position:         snap.Data.QueuePosition,
			DelayRemainingMS: snap.Data.QueueDelayRemainingMS,
		}
	case models.StageDownloading:
		return DownloadView{
			meta:             m,
			TotalSources:     snap.Data.TotalSources,
			ProcessedSources: snap.Data.ProcessedSources,
			Sources:          snap.Data.Sources,
		}
	case models.StageWhitelist:
		v := WhitelistView{meta: m}
		if snap.Data.Whitelist != nil {
			v.WhitelistProgress = *snap.Data.Whitelist
		}
		return v
	default:
		v := GenerationView{meta: m}
		if snap.Data.Generation != nil {
			v.Formats = snap.Data.Generation.Formats
			v.CurrentFormat = snap.Data.Generation.CurrentFormat
		}
		return v
	}
}

// History returns frozen views for every stage strictly before the current
// one, in stage order. Stages the producer never snapshotted are skipped.
func History(p *models.Progress) []View {
	stages := []models.Stage{
		models.StageQueue,
		models.StageDownloading,
		models.StageWhitelist,
		models.StageGeneration,
	}
	var out []View
	for _, stage := range stages {
		if !stage.Before(p.Stage) {
			break
		}
		snap, ok := p.Snapshot(stage)
		if !ok {
			continue
		}
		out = append(out, frozenView(stage, snap))
	}
	return out
}
