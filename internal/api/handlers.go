package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/blockwatch/internal/models"
	"github.com/jonesrussell/blockwatch/internal/snapshot"
)

// listJobs returns tracked jobs, most recent first
// GET /api/v1/jobs?user_id=&status=&limit=
func (r *Router) listJobs(c *gin.Context) {
	ownerFilter := c.Query("user_id")
	statusFilter := c.Query("status")
	limit := parseLimit(c)

	jobs := r.table.Jobs()
	filtered := make([]*models.Job, 0, len(jobs))
	for _, job := range jobs {
		if ownerFilter != "" && job.Owner() != ownerFilter {
			continue
		}
		if statusFilter != "" && string(job.Status) != statusFilter {
			continue
		}
		filtered = append(filtered, job)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  filtered,
		"count": len(filtered),
	})
}

// getJob returns one tracked job
// GET /api/v1/jobs/:id
func (r *Router) getJob(c *gin.Context) {
	job, ok := r.lookupJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// getJobSources returns the job's sources in display order
// GET /api/v1/jobs/:id/sources
func (r *Router) getJobSources(c *gin.Context) {
	id := c.Param("id")
	sources, err := r.table.SortedSources(id)
	if err != nil {
		handleTableError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// getJobStage returns the typed payload of one stage, live or frozen
// GET /api/v1/jobs/:id/stages/:stage
func (r *Router) getJobStage(c *gin.Context) {
	job, ok := r.lookupJob(c)
	if !ok {
		return
	}

	stage := models.Stage(c.Param("stage"))
	view, err := snapshot.For(&job.Progress, stage)
	if err != nil {
		if errors.Is(err, models.ErrNoSnapshot) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no data for stage " + string(stage),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stage":  view.Stage(),
		"frozen": view.Frozen(),
		"data":   view,
	})
}

// markJobRead acknowledges a job locally
// POST /api/v1/jobs/:id/read
func (r *Router) markJobRead(c *gin.Context) {
	id := c.Param("id")
	if err := r.table.MarkRead(id); err != nil {
		handleTableError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job marked read"})
}

// getQueue returns the current queue display projection
// GET /api/v1/queue
func (r *Router) getQueue(c *gin.Context) {
	d := r.projector.Display()
	c.JSON(http.StatusOK, gin.H{
		"phase":        d.Phase.String(),
		"position":     d.Position,
		"remaining_ms": d.Remaining.Milliseconds(),
		"queue_info":   d.QueueInfo,
	})
}

func (r *Router) lookupJob(c *gin.Context) (*models.Job, bool) {
	job, err := r.table.Job(c.Param("id"))
	if err != nil {
		handleTableError(c, err)
		return nil, false
	}
	return job, true
}

func handleTableError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
