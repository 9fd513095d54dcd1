package watch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/blockwatch/internal/countdown"
	"github.com/jonesrussell/blockwatch/internal/models"
)

// TableRenderer formats the reconciled job table for a terminal.
type TableRenderer struct {
	out io.Writer
	now func() time.Time
}

// NewTableRenderer creates a renderer writing to out.
func NewTableRenderer(out io.Writer) *TableRenderer {
	return &TableRenderer{out: out, now: time.Now}
}

// RenderJobs writes the job table, most recent first.
func (r *TableRenderer) RenderJobs(jobs []*models.Job, queue countdown.Display) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Job", "User", "Type", "Status", "Stage", "Progress", "Age"})
	for _, job := range jobs {
		t.AppendRow(table.Row{
			shortID(job.JobID),
			ownerLabel(job),
			job.Type,
			statusCell(job),
			stageCell(job, queue),
			progressCell(job),
			ageCell(r.now(), job.CreatedAt),
		})
	}
	t.Render()
}

// RenderSources writes one job's source table in display order.
func (r *TableRenderer) RenderSources(sources []models.SourceProgress) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Source", "Status", "Downloaded", "Domains"})
	for _, src := range sources {
		t.AppendRow(table.Row{
			src.Name,
			sourceStatusCell(src),
			downloadCell(src),
			domainCell(src),
		})
	}
	t.Render()
}

func shortID(id string) string {
	const max = 12
	if len(id) <= max {
		return id
	}
	return id[:max]
}

func ownerLabel(job *models.Job) string {
	if job.Username != "" {
		return job.Username
	}
	if owner := job.Owner(); owner != "" {
		return owner
	}
	return "default"
}

func statusCell(job *models.Job) string {
	label := string(job.Status)
	switch job.Status {
	case models.StatusCompleted:
		return text.FgGreen.Sprint(label)
	case models.StatusFailed:
		return text.FgRed.Sprint(label)
	case models.StatusSkipped:
		if job.Result != nil && job.Result.SkipReason != "" {
			label = fmt.Sprintf("%s (%s)", label, job.Result.SkipReason)
		}
		return text.FgYellow.Sprint(label)
	case models.StatusProcessing:
		return text.FgCyan.Sprint(label)
	default:
		return label
	}
}

func stageCell(job *models.Job, queue countdown.Display) string {
	if job.Status.Terminal() {
		return "-"
	}
	stage := string(job.Progress.Stage)
	if job.Progress.Stage != models.StageQueue {
		return stage
	}

	switch queue.Phase {
	case countdown.PhaseCounting:
		return fmt.Sprintf("queue (starts in %s)", queue.Remaining.Round(time.Second))
	case countdown.PhasePreparing:
		return "queue (preparing)"
	case countdown.PhasePosition:
		if queue.Position != nil {
			return fmt.Sprintf("queue (position %d)", *queue.Position)
		}
	}
	return stage
}

func progressCell(job *models.Job) string {
	p := &job.Progress
	switch p.Stage {
	case models.StageDownloading:
		if p.TotalSources == 0 {
			return ""
		}
		return fmt.Sprintf("%d/%d sources", p.ProcessedSources, p.TotalSources)
	case models.StageWhitelist:
		if p.Whitelist == nil {
			return ""
		}
		return fmt.Sprintf("%d removed", p.Whitelist.TotalRemoved)
	case models.StageGeneration:
		if p.Generation == nil {
			return ""
		}
		var parts []string
		for _, f := range p.Generation.Formats {
			parts = append(parts, fmt.Sprintf("%s %.0f%%", f.Format, f.Percent))
		}
		return strings.Join(parts, ", ")
	case models.StageCompleted:
		if job.Result != nil {
			return fmt.Sprintf("%d domains", job.Result.TotalDomains)
		}
	}
	return ""
}

func ageCell(now time.Time, created time.Time) string {
	if created.IsZero() {
		return "-"
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	return age.Round(time.Second).String()
}

func sourceStatusCell(src models.SourceProgress) string {
	label := string(src.Status)
	switch src.Status {
	case models.SourceFailed:
		if src.Error != nil {
			label = fmt.Sprintf("%s: %s", label, *src.Error)
		}
		return text.FgRed.Sprint(label)
	case models.SourceCompleted:
		if src.CacheHit != nil && *src.CacheHit {
			label += " (cached)"
		}
		return text.FgGreen.Sprint(label)
	case models.SourceDownloading:
		return text.FgCyan.Sprint(label)
	default:
		return label
	}
}

func downloadCell(src models.SourceProgress) string {
	if src.DownloadPercent != nil {
		return fmt.Sprintf("%.0f%%", *src.DownloadPercent)
	}
	if src.BytesDownloaded > 0 {
		return formatBytes(src.BytesDownloaded)
	}
	return "-"
}

func domainCell(src models.SourceProgress) string {
	if src.DomainCount == nil {
		return "-"
	}
	s := fmt.Sprintf("%d", *src.DomainCount)
	if src.DomainChange != nil && *src.DomainChange != 0 {
		s += fmt.Sprintf(" (%+d)", *src.DomainChange)
	}
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
