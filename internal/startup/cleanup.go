// Package startup provides recovery tasks that run before the server
// begins accepting work.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

// scratchPrefixes are the temp-directory name prefixes clipd creates
// under its work directory. A crash can strand any of them.
var scratchPrefixes = []string{"download-", "subtitles-", "transmux-"}

// DefaultCleanupAge is the maximum age before an orphaned scratch
// directory is considered abandoned.
const DefaultCleanupAge = 1 * time.Hour

// CleanupOrphanedScratchDirs removes scratch directories older than
// maxAge from baseDir. Directories newer than the cutoff are left
// alone since a running worker may still own them.
//
// Returns the number of directories removed.
func CleanupOrphanedScratchDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("work directory does not exist, skipping cleanup",
			slog.String("path", baseDir))
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !hasScratchPrefix(entry.Name()) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to stat scratch directory",
				slog.String("path", dirPath), slog.Any("error", err))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned scratch directory",
				slog.String("path", dirPath), slog.Any("error", err))
			continue
		}

		logger.Info("removed orphaned scratch directory",
			slog.String("path", dirPath),
			slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)))
		removed++
	}

	return removed, nil
}

func hasScratchPrefix(name string) bool {
	for _, prefix := range scratchPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// RecoverInterruptedJobs marks jobs stuck in processing as errored.
// A job can only be in processing while a worker owns it; after a
// restart no worker does, so the row would otherwise stay stuck
// forever. The error state keeps the retry endpoint usable.
//
// Returns the number of jobs recovered.
func RecoverInterruptedJobs(ctx context.Context, logger *slog.Logger, repos *repository.Repositories) (int, error) {
	jobs, err := repos.Jobs.List(ctx, repository.ListOptions{Status: models.JobStatusProcessing})
	if err != nil {
		return 0, err
	}

	var recovered int
	for _, job := range jobs {
		logger.Warn("recovering job interrupted by restart",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.String("uid", job.UID),
			slog.Int("output_version", job.OutputVersion))

		if err := repos.Jobs.Fail(ctx, job.ID, "interrupted by server restart"); err != nil {
			logger.Error("failed to recover interrupted job",
				slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", err))
			continue
		}
		recovered++
	}

	return recovered, nil
}
