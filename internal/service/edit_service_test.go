package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/database"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

func setupRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
	db, err := database.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return repository.New(db.DB)
}

func trimOp(t *testing.T, start, end float64) models.Operation {
	t.Helper()
	data, err := json.Marshal(map[string]float64{"start_sec": start, "end_sec": end})
	require.NoError(t, err)
	return models.Operation{Op: "trim", Data: data}
}

func TestCreateEditEnqueuesOneJob(t *testing.T) {
	repos := setupRepos(t)
	svc := NewEditService(repos)

	job, err := svc.CreateEdit(context.Background(), "https://example.com/in.mp4",
		[]models.Operation{trimOp(t, 0, 10)})
	require.NoError(t, err)
	assert.NotEmpty(t, job.UID)
	assert.Equal(t, 0, job.OutputVersion)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	jobs, err := repos.Jobs.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestCreateEditRejectsUnknownOp(t *testing.T) {
	repos := setupRepos(t)
	svc := NewEditService(repos)

	_, err := svc.CreateEdit(context.Background(), "https://example.com/in.mp4",
		[]models.Operation{{Op: "explode"}})
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	jobs, err := repos.Jobs.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "invalid recipes never reach the queue")
}

func TestCreateEditRejectsShortConcat(t *testing.T) {
	repos := setupRepos(t)
	svc := NewEditService(repos)

	data, _ := json.Marshal(map[string]any{"input_paths": []string{"a.mp4"}})
	_, err := svc.CreateEdit(context.Background(), "https://example.com/in.mp4",
		[]models.Operation{{Op: "concat", Data: data}})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestCreateEditRequiresMedia(t *testing.T) {
	svc := NewEditService(setupRepos(t))
	_, err := svc.CreateEdit(context.Background(), "", []models.Operation{trimOp(t, 0, 10)})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestRetryResetsErrorState(t *testing.T) {
	repos := setupRepos(t)
	svc := NewEditService(repos)

	job, err := svc.CreateEdit(context.Background(), "https://example.com/in.mp4",
		[]models.Operation{trimOp(t, 0, 10)})
	require.NoError(t, err)

	dq, err := repos.Jobs.Dequeue(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, dq)
	require.NoError(t, repos.Jobs.Fail(context.Background(), job.ID, "engine exploded"))

	retried, err := svc.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, retried.Status)
	assert.Empty(t, retried.Error)
	assert.Zero(t, retried.Retries)

	dq, err = repos.Jobs.Dequeue(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, dq)
	assert.Equal(t, job.ID, dq.Job.ID, "retried job is dequeued normally")
}

type stubCanceler struct {
	cancelled []uint
}

func (s *stubCanceler) Cancel(jobID uint) bool {
	s.cancelled = append(s.cancelled, jobID)
	return true
}

func TestCancelMarksRowAndDispatchesToPool(t *testing.T) {
	repos := setupRepos(t)
	canceler := &stubCanceler{}
	svc := NewEditService(repos).WithCanceler(canceler)

	job, err := svc.CreateEdit(context.Background(), "https://example.com/in.mp4",
		[]models.Operation{trimOp(t, 0, 10)})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.Equal(t, []uint{job.ID}, canceler.cancelled)

	dq, err := repos.Jobs.Dequeue(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, dq, "cancelled jobs are never dequeued")
}

func TestRetryUnknownJob(t *testing.T) {
	svc := NewEditService(setupRepos(t))
	_, err := svc.Retry(context.Background(), 9999)
	require.Error(t, err)
}
