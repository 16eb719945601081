package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/storage"
)

// ErrEmptyArchive is returned when no objects exist for the requested
// archive. No bytes have been written to the destination when this is
// returned, so callers can still answer with a plain error response.
var ErrEmptyArchive = errors.New("no artifacts to archive")

// ArchiveConfig holds configuration for the archive service.
type ArchiveConfig struct {
	// Prefix is the object-store folder holding generated artifacts.
	Prefix string
}

// ArchiveService streams stored artifacts into zip archives. Objects are
// pulled one at a time, so memory stays flat regardless of how many
// artifacts exist.
type ArchiveService struct {
	products ProductStore
	storage  storage.ObjectStorage
	logger   *logger.Logger
	cfg      ArchiveConfig
}

// NewArchiveService creates a new archive service.
// Parameters:
//   - products: product store for per-product lookups.
//   - store: object storage holding the artifacts.
//   - log: logger instance.
//   - cfg: archive configuration.
// Returns:
//   - *ArchiveService: initialized service.
func NewArchiveService(products ProductStore, store storage.ObjectStorage, log *logger.Logger, cfg ArchiveConfig) *ArchiveService {
	return &ArchiveService{
		products: products,
		storage:  store,
		logger:   log,
		cfg:      cfg,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ArchiveService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// BuildAll streams a zip of every artifact under the configured prefix
// into w. Folder marker keys are skipped. Returns ErrEmptyArchive, before
// any byte is written, when storage holds no artifacts.
func (s *ArchiveService) BuildAll(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	count := 0
	token := ""
	for {
		page, next, err := s.storage.ListPage(ctx, s.cfg.Prefix, token)
		if err != nil {
			return fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, key := range page {
			if strings.HasSuffix(key, "/") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.addEntry(ctx, zw, key); err != nil {
				return err
			}
			count++
		}
		if next == "" {
			break
		}
		token = next
	}

	if count == 0 {
		return ErrEmptyArchive
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	s.log(ctx).WithField(logger.FieldCount, count).Info("Built artifact archive")
	return nil
}

// BuildForProduct streams a zip of the artifacts belonging to one product
// into w. Returns repository.ErrNotFound for an unknown product and
// ErrEmptyArchive when none of its artifacts exist in storage.
func (s *ArchiveService) BuildForProduct(ctx context.Context, productID string, w io.Writer) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.Name == nil || *p.Name == "" {
		return ErrEmptyArchive
	}

	base := s.cfg.Prefix + sanitizeName(*p.Name)
	var keys []string
	for _, key := range []string{base + ".png", base + ".eps"} {
		ok, err := s.storage.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to check artifact %s: %w", key, err)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ErrEmptyArchive
	}

	zw := zip.NewWriter(w)
	for _, key := range keys {
		if err := s.addEntry(ctx, zw, key); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// addEntry copies one stored object into the archive under its key minus
// the folder prefix.
func (s *ArchiveService) addEntry(ctx context.Context, zw *zip.Writer, key string) error {
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer rc.Close()

	entry, err := zw.Create(strings.TrimPrefix(key, s.cfg.Prefix))
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", key, err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", key, err)
	}
	return nil
}
