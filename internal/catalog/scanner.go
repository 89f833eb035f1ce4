package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ScanResult summarizes a directory scan, mirroring the per-file tolerant
// error collection the teacher's scanner used: one bad file never aborts the
// whole scan.
type ScanResult struct {
	Scanned int
	Skipped int
	Errors  []error
}

// ScanDirectory walks dir (typically config.MusicDir()) and upserts every
// supported audio file it finds into the catalog, so the module can run
// standalone against a plain folder of music without a separate admin tool.
func (s *Store) ScanDirectory(ctx context.Context, dir string) (ScanResult, error) {
	var result ScanResult

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("music directory does not exist yet", "dir", dir)
			return result, nil
		}
		return result, fmt.Errorf("catalog: stat music dir: %w", err)
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("walk %s: %w", path, err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if !IsSupportedFormat(ext) {
			return nil
		}

		rec, err := NewTrackRecordFromFile(path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			result.Skipped++
			return nil
		}

		songID, err := s.UpsertSong(ctx, *rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("upsert %s: %w", path, err))
			result.Skipped++
			return nil
		}

		// The file store serves audio from <dir>/<song_id>.<ext> (spec.md §6);
		// rename freshly-scanned files into that layout so Stream can find
		// them by the id UpsertSong just assigned.
		target := filepath.Join(dir, fmt.Sprintf("%d.%s", songID, rec.FileExt))
		if filepath.Clean(path) != target {
			if err := os.Rename(path, target); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("rename %s: %w", path, err))
			}
		}

		result.Scanned++
		return nil
	})

	if err != nil {
		return result, fmt.Errorf("catalog: scan directory: %w", err)
	}

	slog.Info("catalog scan complete", "dir", dir, "scanned", result.Scanned, "skipped", result.Skipped, "errors", len(result.Errors))
	return result, nil
}
