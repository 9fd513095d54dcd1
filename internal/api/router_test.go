package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/blockwatch/internal/countdown"
	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/models"
	"github.com/jonesrussell/blockwatch/internal/reconciler"
	"github.com/jonesrussell/blockwatch/internal/transport"
)

func newTestEngine(t *testing.T) (*gin.Engine, *reconciler.Table) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNopLogger()
	table := reconciler.New(reconciler.DefaultConfig(), log, nil)
	conn := transport.New(nil, nil, transport.DefaultConfig(), log)
	router := NewRouter(table, conn, countdown.New(), nil, log, false)
	return router.Engine(), table
}

func seedJob(t *testing.T, table *reconciler.Table, id, owner string, status models.JobStatus) {
	t.Helper()
	job := &models.Job{
		JobID:    id,
		Status:   status,
		Revision: 1,
		Progress: models.Progress{Stage: models.StageQueue},
	}
	if owner != "" {
		job.UserID = &owner
	}
	if err := table.ApplyCreated(job); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestListJobsFilters(t *testing.T) {
	engine, table := newTestEngine(t)
	seedJob(t, table, "job-1", "u1", models.StatusCompleted)
	seedJob(t, table, "job-2", "u2", models.StatusProcessing)
	seedJob(t, table, "job-3", "u1", models.StatusProcessing)

	w := doRequest(t, engine, http.MethodGet, "/api/v1/jobs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Jobs  []*models.Job `json:"jobs"`
		Count int           `json:"count"`
	}
	decodeBody(t, w, &body)
	if body.Count != 3 || body.Jobs[0].JobID != "job-3" {
		t.Errorf("unfiltered list = %+v", body)
	}

	w = doRequest(t, engine, http.MethodGet, "/api/v1/jobs?user_id=u1&status=processing")
	decodeBody(t, w, &body)
	if body.Count != 1 || body.Jobs[0].JobID != "job-3" {
		t.Errorf("filtered list = %+v", body)
	}

	w = doRequest(t, engine, http.MethodGet, "/api/v1/jobs?limit=2")
	decodeBody(t, w, &body)
	if body.Count != 2 {
		t.Errorf("limited count = %d, want 2", body.Count)
	}
}

func TestGetJobNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doRequest(t, engine, http.MethodGet, "/api/v1/jobs/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetJobStage(t *testing.T) {
	engine, table := newTestEngine(t)

	job := &models.Job{
		JobID:    "job-1",
		Status:   models.StatusProcessing,
		Revision: 1,
		Progress: models.Progress{
			Stage:            models.StageDownloading,
			TotalSources:     5,
			ProcessedSources: 2,
		},
	}
	if err := table.ApplyCreated(job); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doRequest(t, engine, http.MethodGet, "/api/v1/jobs/job-1/stages/downloading")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var body struct {
		Stage  models.Stage `json:"stage"`
		Frozen bool         `json:"frozen"`
	}
	decodeBody(t, w, &body)
	if body.Stage != models.StageDownloading || body.Frozen {
		t.Errorf("stage payload = %+v", body)
	}

	// Stage not reached.
	w = doRequest(t, engine, http.MethodGet, "/api/v1/jobs/job-1/stages/generation")
	if w.Code != http.StatusNotFound {
		t.Errorf("unreached stage status = %d, want 404", w.Code)
	}

	// Unknown stage name.
	w = doRequest(t, engine, http.MethodGet, "/api/v1/jobs/job-1/stages/warmup")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown stage status = %d, want 400", w.Code)
	}
}

func TestMarkJobRead(t *testing.T) {
	engine, table := newTestEngine(t)
	seedJob(t, table, "job-1", "u1", models.StatusFailed)

	w := doRequest(t, engine, http.MethodPost, "/api/v1/jobs/job-1/read")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	job, err := table.Job("job-1")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if !job.Read {
		t.Error("Read flag not set through API")
	}
}

func TestHealthReflectsConnectionState(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Never opened: disconnected reports unhealthy.
	w := doRequest(t, engine, http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Status     string `json:"status"`
		Connection string `json:"connection"`
	}
	decodeBody(t, w, &body)
	if body.Status != "unhealthy" || body.Connection != "disconnected" {
		t.Errorf("health body = %+v", body)
	}
}
