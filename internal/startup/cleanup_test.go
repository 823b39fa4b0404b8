package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/database"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

func TestCleanupOrphanedScratchDirs(t *testing.T) {
	base := t.TempDir()
	logger := slog.Default()

	old := filepath.Join(base, "transmux-deadbeef-123")
	require.NoError(t, os.Mkdir(old, 0o755))
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	fresh := filepath.Join(base, "subtitles-cafebabe-456")
	require.NoError(t, os.Mkdir(fresh, 0o755))

	unrelated := filepath.Join(base, "keep-me")
	require.NoError(t, os.Mkdir(unrelated, 0o755))
	require.NoError(t, os.Chtimes(unrelated, stale, stale))

	removed, err := CleanupOrphanedScratchDirs(logger, base, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh, "recent scratch dirs may belong to a live worker")
	assert.DirExists(t, unrelated, "only clipd prefixes are touched")
}

func TestCleanupMissingBaseDirIsNoop(t *testing.T) {
	removed, err := CleanupOrphanedScratchDirs(slog.Default(),
		filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRecoverInterruptedJobs(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
	db, err := database.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	repos := repository.New(db.DB)
	ctx := context.Background()

	first := &models.Job{
		UID:    "uid-claimed",
		Input:  "https://example.com/a.mp4",
		Action: models.Operations{{Op: "extractAudio"}},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, repos.Jobs.Create(ctx, first))

	second := &models.Job{
		UID:    "uid-waiting",
		Input:  "https://example.com/b.mp4",
		Action: models.Operations{{Op: "extractAudio"}},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, repos.Jobs.Create(ctx, second))

	// Simulate a worker that claimed a job and then died.
	dq, err := repos.Jobs.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, dq)

	recovered, err := RecoverInterruptedJobs(ctx, slog.Default(), repos)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := repos.Jobs.GetByID(ctx, dq.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, got.Status)
	assert.Equal(t, "interrupted by server restart", got.Error)

	waiting, err := repos.Jobs.GetByUID(ctx, "uid-waiting")
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, models.JobStatusQueued, waiting[0].Status)
}
