package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
)

// newListServer fakes the S3 listing API: every list request answers a full
// truncated page, so a lister that is never stopped keeps producing forever.
func newListServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["location"]; ok {
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`))
			return
		}

		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		sb.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		sb.WriteString(`<Name>qrcodes</Name><Prefix>qrcodes/</Prefix>`)
		fmt.Fprintf(&sb, `<KeyCount>%d</KeyCount><MaxKeys>%d</MaxKeys>`, minioPageSize, minioPageSize)
		sb.WriteString(`<IsTruncated>true</IsTruncated>`)
		sb.WriteString(`<NextContinuationToken>next-page</NextContinuationToken>`)
		for i := 0; i < minioPageSize; i++ {
			fmt.Fprintf(&sb, `<Contents><Key>qrcodes/item-%04d.png</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>&quot;etag&quot;</ETag><Size>3</Size></Contents>`, i)
		}
		sb.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sb.String()))
	}))
}

func newTestMinIOStorage(t *testing.T, srv *httptest.Server) *MinIOStorage {
	t.Helper()
	store, err := NewMinIOStorage(&MinIOConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		UseSSL:    false,
		Bucket:    "qrcodes",
	})
	if err != nil {
		t.Fatalf("NewMinIOStorage failed: %v", err)
	}
	return store
}

func TestMinIOListPageFullPage(t *testing.T) {
	srv := newListServer(t)
	defer srv.Close()
	store := newTestMinIOStorage(t, srv)

	keys, next, err := store.ListPage(context.Background(), "qrcodes/", "")
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(keys) != minioPageSize {
		t.Fatalf("keys = %d, want %d", len(keys), minioPageSize)
	}
	if next != keys[len(keys)-1] {
		t.Errorf("next token = %q, want the last key %q", next, keys[len(keys)-1])
	}
}

func TestMinIOListPageStopsLister(t *testing.T) {
	srv := newListServer(t)
	defer srv.Close()
	store := newTestMinIOStorage(t, srv)

	ctx := context.Background()

	// Warm up the client so transport goroutines exist before measuring.
	if _, _, err := store.ListPage(ctx, "qrcodes/", ""); err != nil {
		t.Fatalf("warm-up ListPage failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	before := runtime.NumGoroutine()

	// Every one of these returns after a full page while the lister would
	// happily keep going; the call must not strand its producer on the
	// long-lived parent context.
	for i := 0; i < 5; i++ {
		if _, _, err := store.ListPage(ctx, "qrcodes/", ""); err != nil {
			t.Fatalf("ListPage %d failed: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n := runtime.NumGoroutine(); n <= before+2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after 5 calls, was %d before: lister goroutines not released",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
