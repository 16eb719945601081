package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/olegk/qrsync/internal/artifact"
	"github.com/olegk/qrsync/internal/domain"
)

// fakeStorage is an in-memory ObjectStorage with paginated listing.
type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  [][]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), pageSize: 2}
}

func (s *fakeStorage) EnsureBucket(context.Context) error { return nil }

func (s *fakeStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) GetURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, keys)
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) ListPage(_ context.Context, prefix, token string) ([]string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		for i, key := range keys {
			if key == token {
				start = i + 1
				break
			}
		}
	}
	if start >= len(keys) {
		return nil, "", nil
	}
	end := start + s.pageSize
	if end >= len(keys) {
		return keys[start:], "", nil
	}
	page := keys[start:end]
	return page, page[len(page)-1], nil
}

// fakeProducer renders fixed bytes into storage, or fails on demand.
type fakeProducer struct {
	storage  *fakeStorage
	failFor  map[string]bool
	payloads []artifact.Payload
}

func (p *fakeProducer) Produce(ctx context.Context, payload artifact.Payload, namingKey string) (*artifact.Artifact, error) {
	p.payloads = append(p.payloads, payload)
	if p.failFor[payload.Name] {
		return nil, errors.New("render failed")
	}
	art := &artifact.Artifact{
		RasterKey: namingKey + ".png",
		VectorKey: namingKey + ".eps",
	}
	_ = p.storage.Upload(ctx, art.RasterKey, bytes.NewReader([]byte("png")), 3, "image/png")
	_ = p.storage.Upload(ctx, art.VectorKey, bytes.NewReader([]byte("eps")), 3, "application/postscript")
	return art, nil
}

func seedProduct(store *fakeProductStore, key, name, barcode string) *domain.Product {
	p, _, _ := store.Upsert(context.Background(), key, domain.ProductFields{
		Name:    &name,
		Barcode: &barcode,
	})
	return p
}

func newTestGenerateService(products *fakeProductStore, store *fakeStorage, producer artifact.Producer, jobs JobStore) *GenerateService {
	processor := NewBatchProcessor(jobs, testLogger(), 1)
	return NewGenerateService(products, store, producer, processor, testLogger(), GenerateConfig{
		Prefix: "qrcodes/",
		Domain: "qr.example.com",
		Group:  "inriver",
	})
}

func TestGenerateForProductsStoresArtifactURLs(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	producer := &fakeProducer{storage: store}
	p := seedProduct(products, "100", "My Widget", "7350000000012")
	svc := newTestGenerateService(products, store, producer, newFakeJobStore())

	summary, err := svc.GenerateForProducts(context.Background(), "generate", []string{p.ID}, GenerateOptions{IncludeBarcode: true})
	if err != nil {
		t.Fatalf("GenerateForProducts failed: %v", err)
	}
	if summary.Updated != 1 {
		t.Fatalf("updated = %d, want 1", summary.Updated)
	}

	got := products.byKey["100"]
	want := domain.StringArray{
		"https://cdn.example.com/qrcodes/My_Widget.png",
		"https://cdn.example.com/qrcodes/My_Widget.eps",
	}
	if len(got.ArtifactURLs) != 2 || got.ArtifactURLs[0] != want[0] || got.ArtifactURLs[1] != want[1] {
		t.Errorf("artifact urls = %v, want %v", got.ArtifactURLs, want)
	}
	if !got.Visible {
		t.Error("generated product not visible")
	}

	if len(producer.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(producer.payloads))
	}
	payload := producer.payloads[0]
	if payload.BaseURL != "https://qr.example.com/01/0" {
		t.Errorf("base url = %q", payload.BaseURL)
	}
	if payload.Barcode != "7350000000012" || !payload.IncludeBarcode {
		t.Errorf("payload = %+v", payload)
	}
}

func TestGenerateFailureLeavesProductUntouched(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	producer := &fakeProducer{storage: store, failFor: map[string]bool{"Broken": true}}
	good := seedProduct(products, "100", "Good", "1")
	broken := seedProduct(products, "101", "Broken", "2")
	svc := newTestGenerateService(products, store, producer, newFakeJobStore())

	summary, err := svc.GenerateForProducts(context.Background(), "generate", []string{good.ID, broken.ID}, GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateForProducts failed: %v", err)
	}
	if summary.Updated != 1 || summary.Errored != 1 {
		t.Errorf("summary = %+v, want updated=1 errored=1", summary)
	}

	if len(products.byKey["101"].ArtifactURLs) != 0 {
		t.Error("failed item must leave the product record untouched")
	}
	if len(products.byKey["100"].ArtifactURLs) == 0 {
		t.Error("successful item lost its artifact urls")
	}
}

func TestGenerateWithoutNameErrors(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	p, _, _ := products.Upsert(context.Background(), "100", domain.ProductFields{})
	svc := newTestGenerateService(products, store, &fakeProducer{storage: store}, newFakeJobStore())

	summary, err := svc.GenerateForProducts(context.Background(), "generate", []string{p.ID}, GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateForProducts failed: %v", err)
	}
	if summary.Errored != 1 {
		t.Errorf("errored = %d, want 1", summary.Errored)
	}
}

func TestGenerateRerunOverwritesURLs(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	producer := &fakeProducer{storage: store}
	p := seedProduct(products, "100", "Widget", "1")
	svc := newTestGenerateService(products, store, producer, newFakeJobStore())

	for i := 0; i < 2; i++ {
		if _, err := svc.GenerateForProducts(context.Background(), "generate", []string{p.ID}, GenerateOptions{}); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}
	if got := len(products.byKey["100"].ArtifactURLs); got != 2 {
		t.Errorf("artifact urls = %d, want 2 after rerun", got)
	}
}

func TestDeleteAllArtifacts(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	producer := &fakeProducer{storage: store}
	p1 := seedProduct(products, "100", "A", "1")
	p2 := seedProduct(products, "101", "B", "2")
	svc := newTestGenerateService(products, store, producer, newFakeJobStore())

	if _, err := svc.GenerateForProducts(context.Background(), "generate", []string{p1.ID, p2.ID}, GenerateOptions{}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	// Folder marker keys are skipped, never deleted as artifacts.
	_ = store.Upload(context.Background(), "qrcodes/", bytes.NewReader(nil), 0, "")

	deleted, err := svc.DeleteAllArtifacts(context.Background())
	if err != nil {
		t.Fatalf("DeleteAllArtifacts failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	for key := range store.objects {
		if key != "qrcodes/" {
			t.Errorf("object %s not deleted", key)
		}
	}
	for _, p := range products.byKey {
		if len(p.ArtifactURLs) != 0 {
			t.Errorf("product %s kept artifact urls after delete-all", p.ID)
		}
	}
}

func TestDeleteAllArtifactsEmpty(t *testing.T) {
	products := newFakeProductStore()
	store := newFakeStorage()
	svc := newTestGenerateService(products, store, &fakeProducer{storage: store}, newFakeJobStore())

	_, err := svc.DeleteAllArtifacts(context.Background())
	if !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("err = %v, want ErrNoArtifacts", err)
	}
}
