package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/service"
)

// Well-known job ids. Each operation owns a single pollable job, so a
// client that triggered a run knows what to poll without bookkeeping.
const (
	JobIDSync     = "sync"
	JobIDGenerate = "generate"
)

// SyncHandler triggers catalog reconciliation runs.
type SyncHandler struct {
	reconcile *service.ReconcileService
	processor *service.BatchProcessor
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(reconcile *service.ReconcileService, processor *service.BatchProcessor) *SyncHandler {
	return &SyncHandler{reconcile: reconcile, processor: processor}
}

// SyncRequest is the body for POST /api/v1/sync. With no ids the whole
// configured collection set is reconciled.
type SyncRequest struct {
	IDs []string `json:"ids"`
}

// StartSync starts a reconciliation run in the background and returns the
// job id to poll. Answers 409 if a run is already active.
// POST /api/v1/sync
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	// Reserve the job slot before answering so concurrent triggers get a
	// real 409 instead of a run that is silently rejected later.
	release, err := h.processor.Reserve(JobIDSync)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already running", "job_id": JobIDSync})
		return
	}

	// Detach from the request context; the run outlives the response.
	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldRequestID: logger.GetRequestID(c.Request.Context()),
		logger.FieldJobID:     JobIDSync,
		logger.FieldComponent: "sync",
	})

	go func() {
		defer release()
		var err error
		if len(req.IDs) > 0 {
			_, err = h.reconcile.SyncIDs(ctx, JobIDSync, req.IDs)
		} else {
			_, err = h.reconcile.SyncAll(ctx, JobIDSync)
		}
		if err != nil {
			logger.CtxError(ctx, "Sync run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job_id": JobIDSync})
}
