package watch

import (
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/blockwatch/internal/countdown"
	"github.com/jonesrussell/blockwatch/internal/models"
)

func TestRenderJobs(t *testing.T) {
	var buf strings.Builder
	r := NewTableRenderer(&buf)
	r.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 30, 0, time.UTC) }

	owner := "u1"
	jobs := []*models.Job{
		{
			JobID:    "0123456789abcdef",
			UserID:   &owner,
			Username: "russell",
			Type:     models.TypeManual,
			Status:   models.StatusProcessing,
			Progress: models.Progress{
				Stage:            models.StageDownloading,
				TotalSources:     10,
				ProcessedSources: 3,
			},
			CreatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		},
		{
			JobID:  "fedcba98",
			Type:   models.TypeScheduled,
			Status: models.StatusSkipped,
			Result: &models.Result{SkipReason: "no changes"},
		},
	}

	r.RenderJobs(jobs, countdown.Display{})
	out := buf.String()

	for _, want := range []string{"0123456789ab", "russell", "3/10 sources", "30s", "no changes", "default"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("job id not truncated")
	}
}

func TestRenderJobsQueueCountdown(t *testing.T) {
	var buf strings.Builder
	r := NewTableRenderer(&buf)

	pos := 2
	jobs := []*models.Job{{
		JobID:    "job-q",
		Status:   models.StatusQueued,
		Progress: models.Progress{Stage: models.StageQueue, QueuePosition: &pos},
	}}

	r.RenderJobs(jobs, countdown.Display{
		Phase:     countdown.PhaseCounting,
		Position:  &pos,
		Remaining: 42 * time.Second,
	})
	if !strings.Contains(buf.String(), "starts in 42s") {
		t.Errorf("countdown missing from output:\n%s", buf.String())
	}
}

func TestRenderSources(t *testing.T) {
	var buf strings.Builder
	r := NewTableRenderer(&buf)

	count := int64(120000)
	change := int64(-500)
	pct := 100.0
	hit := true
	errMsg := "connection refused"
	sources := []models.SourceProgress{
		{Name: "stevenblack", Status: models.SourceCompleted, CacheHit: &hit, DownloadPercent: &pct, DomainCount: &count, DomainChange: &change},
		{Name: "oisd", Status: models.SourceFailed, Error: &errMsg},
		{Name: "adaway", Status: models.SourceDownloading, BytesDownloaded: 2048},
	}

	r.RenderSources(sources)
	out := buf.String()

	for _, want := range []string{"(cached)", "120000 (-500)", "connection refused", "2.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
