// Package ingest imports label photos from a local folder into a count
// session, once or continuously as a camera drops new files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/capture"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

type Capturer interface {
	Capture(ctx context.Context, in capture.Input) (*capture.Outcome, error)
}

type Sessions interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error)
}

// FileResult is the per-file import outcome.
type FileResult struct {
	Path       string    `json:"path"`
	RollID     uuid.UUID `json:"roll_id,omitempty"`
	SequenceNo int       `json:"sequence_no,omitempty"`
	Duplicate  bool      `json:"duplicate"`
	Err        string    `json:"error,omitempty"`
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned    uint32 `json:"scanned"`
	Matched    uint32 `json:"matched"`
	Imported   uint32 `json:"imported"`
	Duplicates uint32 `json:"duplicates"`
	Failed     uint32 `json:"failed"`
}

type Importer struct {
	captures Capturer
	sessions Sessions
	logger   *slog.Logger
}

func NewImporter(captures Capturer, sessions Sessions, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{captures: captures, sessions: sessions, logger: logger}
}

// ImportFile captures one image into the session. The session is reloaded
// every time so a long-running watch stops importing once it closes.
func (im *Importer) ImportFile(ctx context.Context, sessionID uuid.UUID, path string) (FileResult, error) {
	res := FileResult{Path: path}
	sess, err := im.sessions.Get(ctx, sessionID)
	if err != nil {
		return res, fmt.Errorf("load session: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	out, err := im.captures.Capture(ctx, capture.Input{
		Session:  sess,
		Filename: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		return res, err
	}
	res.RollID = out.Roll.ID
	res.SequenceNo = out.Roll.SequenceNo
	res.Duplicate = out.Duplicate.Duplicate
	im.logger.Info("imported label photo",
		"session_id", sessionID, "path", path, "sequence_no", res.SequenceNo, "duplicate", res.Duplicate)
	return res, nil
}

// ImportDirectory walks root in lexical order and imports every supported
// image. Per-file failures are recorded and the walk continues; the walk
// stops early only when ctx is done.
func (im *Importer) ImportDirectory(ctx context.Context, sessionID uuid.UUID, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !Supported(path) {
			return nil
		}
		stats.Matched++

		res, err := im.ImportFile(ctx, sessionID, path)
		if err != nil {
			res.Err = err.Error()
			stats.Failed++
			im.logger.Warn("import failed", "path", path, "err", err)
		} else {
			stats.Imported++
			if res.Duplicate {
				stats.Duplicates++
			}
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk %s: %w", root, err)
	}
	return results, stats, nil
}

// Supported reports whether path has an accepted image extension.
func Supported(path string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
