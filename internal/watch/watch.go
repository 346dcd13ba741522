// Package watch feeds the ingestion pipeline from the filesystem: one-shot
// directory scans and a recursive fsnotify watcher for drop folders.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/pipeline"
)

// Sink accepts one document for ingestion. *pipeline.Ingestor satisfies it.
type Sink interface {
	Ingest(ctx context.Context, filename, mimeType string, raw []byte, declaredType constants.DocumentType) (*pipeline.IngestResult, error)
}

// Service ingests files by path, skipping anything without an ingestable
// extension.
type Service struct {
	sink   Sink
	logger *slog.Logger
}

func NewService(sink Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sink: sink, logger: logger}
}

// IngestPath reads one file and hands it to the pipeline. The declared type is
// always unknown for filesystem ingestion; classification decides.
func (s *Service) IngestPath(ctx context.Context, path string) (*pipeline.IngestResult, error) {
	mime := constants.MIMEFromExt(filepath.Ext(path))
	if mime == "" {
		return nil, &common.InputError{Reason: "unsupported_format", Detail: path}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.sink.Ingest(ctx, filepath.Base(path), mime, raw, constants.TypeUnknown)
}

// DirStats summarizes one directory scan.
type DirStats struct {
	Scanned    int
	Matched    int
	Ingested   int
	Duplicates int
	Failed     int
}

// ScanDirectory walks root and ingests every file with an ingestable
// extension. Hidden files and directories are skipped. Per-file failures are
// logged and counted, not fatal.
func (s *Service) ScanDirectory(ctx context.Context, root string) (DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return stats, errors.New("root path is required")
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Failed++
			s.logger.Warn("watch.scan.walk_error", "path", path, "error", walkErr)
			return nil
		}
		if isHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if constants.MIMEFromExt(filepath.Ext(path)) == "" {
			return nil
		}
		stats.Matched++

		res, err := s.IngestPath(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Failed++
			s.logger.Warn("watch.scan.ingest_failed", "path", path, "error", err)
			return nil
		}
		stats.Ingested++
		if res.Duplicate {
			stats.Duplicates++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	s.logger.Info("watch.scan.ok",
		"root", root,
		"matched", stats.Matched,
		"ingested", stats.Ingested,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)
	return stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func ingestable(path string) bool {
	return constants.MIMEFromExt(filepath.Ext(path)) != ""
}
