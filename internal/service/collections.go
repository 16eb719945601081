package service

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olegk/qrsync/internal/logger"
)

// CollectionService maintains the set of catalog collection codes that
// scope a full reconciliation.
type CollectionService struct {
	collections CollectionStore
	logger      *logger.Logger
}

// NewCollectionService creates a new collection service.
func NewCollectionService(collections CollectionStore, log *logger.Logger) *CollectionService {
	return &CollectionService{collections: collections, logger: log}
}

// ReplaceFromFile reads collection codes from the file, one per line, and
// replaces the stored set with them. Blank lines are ignored.
// Returns:
//   - int: number of codes loaded.
//   - error: non-nil if the file cannot be read or the store fails.
func (s *CollectionService) ReplaceFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open collections file: %w", err)
	}
	defer f.Close()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		codes = append(codes, code)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read collections file: %w", err)
	}

	if err := s.collections.ReplaceAll(ctx, codes); err != nil {
		return 0, fmt.Errorf("failed to store collections: %w", err)
	}

	s.logger.WithField(logger.FieldCount, len(codes)).Info("Replaced collection codes")
	return len(codes), nil
}

// Codes returns the stored collection codes.
func (s *CollectionService) Codes(ctx context.Context) ([]string, error) {
	return s.collections.ListCodes(ctx)
}
