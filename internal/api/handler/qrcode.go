package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/api/middleware"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
)

// QRCodeHandler exposes artifact generation, bulk download and deletion.
type QRCodeHandler struct {
	generate  *service.GenerateService
	archive   *service.ArchiveService
	processor *service.BatchProcessor
}

// NewQRCodeHandler creates a new QR code handler.
func NewQRCodeHandler(generate *service.GenerateService, archive *service.ArchiveService, processor *service.BatchProcessor) *QRCodeHandler {
	return &QRCodeHandler{generate: generate, archive: archive, processor: processor}
}

// GenerateRequest is the body for POST /api/v1/qrcodes/generate. With no
// ids every product is swept; only_missing restricts the sweep to products
// without artifacts.
type GenerateRequest struct {
	IDs            []string `json:"ids"`
	IncludeBarcode bool     `json:"include_barcode"`
	Domain         string   `json:"domain"`
	OnlyMissing    bool     `json:"only_missing"`
}

// Generate starts an artifact generation run in the background and returns
// the job id to poll. Answers 409 if a run is already active.
// POST /api/v1/qrcodes/generate
func (h *QRCodeHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	// Reserve the job slot before answering so concurrent triggers get a
	// real 409 instead of a run that is silently rejected later.
	release, err := h.processor.Reserve(JobIDGenerate)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "generation already running", "job_id": JobIDGenerate})
		return
	}

	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldRequestID: logger.GetRequestID(c.Request.Context()),
		logger.FieldJobID:     JobIDGenerate,
		logger.FieldComponent: "generate",
	})

	opts := service.GenerateOptions{
		IncludeBarcode: req.IncludeBarcode,
		Domain:         req.Domain,
	}

	go func() {
		defer release()
		var err error
		if len(req.IDs) > 0 {
			_, err = h.generate.GenerateForProducts(ctx, JobIDGenerate, req.IDs, opts)
		} else {
			filter := repository.ListFilter{WithoutArtifacts: req.OnlyMissing}
			_, err = h.generate.GenerateAll(ctx, JobIDGenerate, filter, opts)
		}
		if err != nil {
			logger.CtxError(ctx, "Generation run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job_id": JobIDGenerate})
}

// Archive streams a zip of every stored artifact.
// GET /api/v1/qrcodes/archive
func (h *QRCodeHandler) Archive(c *gin.Context) {
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="qrcodes.zip"`)

	err := h.archive.BuildAll(c.Request.Context(), c.Writer)
	if err == nil {
		return
	}
	if errors.Is(err, service.ErrEmptyArchive) {
		// Nothing was written yet, a clean error response is still possible.
		c.Header("Content-Type", "application/json")
		c.Header("Content-Disposition", "")
		c.JSON(http.StatusNotFound, gin.H{"error": "no qr codes found"})
		return
	}
	middleware.GetLogger(c).WithError(err).Error("Failed to build archive")
	c.Abort()
}

// DeleteAll removes every stored artifact and blanks the references on the
// products.
// DELETE /api/v1/qrcodes
func (h *QRCodeHandler) DeleteAll(c *gin.Context) {
	deleted, err := h.generate.DeleteAllArtifacts(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoArtifacts) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no qr codes found"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to delete artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete qr codes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
