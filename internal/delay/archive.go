package delay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// archiveBatchSize caps how many entries one archive pass processes, keeping
// individual archive files and delete statements bounded.
const archiveBatchSize = 500

// ArchiveStore is the subset of the durable store the archiver needs.
type ArchiveStore interface {
	ListExhaustedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// Archiver moves exhausted delay entries past their retention window out of
// the hot table into zstd-compressed NDJSON files, one file per pass.
// Entries are only deleted after the archive file is fully written and
// synced, so a crash mid-pass duplicates rather than loses records.
type Archiver struct {
	store     ArchiveStore
	dir       string
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver writing into dir.
func NewArchiver(store ArchiveStore, dir string, retention time.Duration, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, dir: dir, retention: retention, logger: logger}
}

// Run performs one archive pass relative to now and returns the number of
// entries archived. A pass with nothing to do writes no file.
func (a *Archiver) Run(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.retention)
	entries, err := a.store.ListExhaustedBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing exhausted entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating archive dir: %w", err)
	}

	name := fmt.Sprintf("delay-entries-%s.ndjson.zst", now.Format("20060102T150405Z"))
	path := filepath.Join(a.dir, name)
	if err := a.writeArchive(path, entries); err != nil {
		return 0, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	deleted, err := a.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("pruning archived entries: %w", err)
	}

	a.logger.Info("archived exhausted delay entries",
		"archived", len(entries),
		"deleted", deleted,
		"file", path,
	)
	return len(entries), nil
}

// writeArchive serializes entries as one JSON document per line inside a
// zstd stream and syncs the file before returning.
func (a *Archiver) writeArchive(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			zw.Close()
			return fmt.Errorf("encoding entry %s: %w", e.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd stream: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing archive file: %w", err)
	}
	return nil
}
