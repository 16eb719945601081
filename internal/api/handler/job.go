package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
)

// JobHandler exposes batch job progress for pollers.
type JobHandler struct {
	jobs service.JobStore
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs service.JobStore) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GetJob returns the current state of a batch job.
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        job.ID,
		"total":     job.Total,
		"processed": job.Processed,
		"done":      job.Done,
		"progress":  job.Progress(),
	})
}
