package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/domain"
	"github.com/olegk/qrsync/internal/repository"
)

type stubJobStore struct {
	jobs map[string]*domain.SyncJob
}

func (s *stubJobStore) CreateOrGet(_ context.Context, id string) (*domain.SyncJob, error) {
	return s.jobs[id], nil
}
func (s *stubJobStore) SetTotal(context.Context, string, int) error { return nil }
func (s *stubJobStore) Advance(context.Context, string, int) error  { return nil }
func (s *stubJobStore) MarkDone(context.Context, string) error      { return nil }
func (s *stubJobStore) Get(_ context.Context, id string) (*domain.SyncJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return j, nil
}

func newJobRouter(store *stubJobStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewJobHandler(store)
	r.GET("/api/v1/jobs/:id", h.GetJob)
	return r
}

func TestGetJob(t *testing.T) {
	store := &stubJobStore{jobs: map[string]*domain.SyncJob{
		"sync": {ID: "sync", Total: 10, Processed: 5},
	}}
	r := newJobRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/sync", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		ID        string `json:"id"`
		Total     int    `json:"total"`
		Processed int    `json:"processed"`
		Done      bool   `json:"done"`
		Progress  int    `json:"progress"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "sync" || body.Total != 10 || body.Processed != 5 || body.Done {
		t.Errorf("body = %+v", body)
	}
	if body.Progress != 50 {
		t.Errorf("progress = %d, want 50", body.Progress)
	}
}

func TestGetJobNotFound(t *testing.T) {
	r := newJobRouter(&stubJobStore{jobs: map[string]*domain.SyncJob{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
