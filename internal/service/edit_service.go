// Package service provides the high-level operations behind the HTTP
// surface: creating edits, planning workflows, and streaming progress.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/clipd/internal/media"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/observability"
	"github.com/jmylchreest/clipd/internal/repository"
)

// JobCanceler aborts in-flight jobs; implemented by the worker pool.
type JobCanceler interface {
	Cancel(jobID uint) bool
}

// EditService manages single-recipe edit jobs.
type EditService struct {
	repos    *repository.Repositories
	canceler JobCanceler
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEditService creates an EditService.
func NewEditService(repos *repository.Repositories) *EditService {
	return &EditService{repos: repos, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *EditService) WithLogger(logger *slog.Logger) *EditService {
	s.logger = logger
	return s
}

// WithCanceler sets the pool used to abort in-flight jobs.
func (s *EditService) WithCanceler(c JobCanceler) *EditService {
	s.canceler = c
	return s
}

// WithMetrics sets the metrics registry.
func (s *EditService) WithMetrics(m *observability.Metrics) *EditService {
	s.metrics = m
	return s
}

// CreateEdit validates the recipe and enqueues one job under a fresh
// uid. Validation failures surface as InvalidRequest without touching
// the queue.
func (s *EditService) CreateEdit(ctx context.Context, mediaURL string, ops []models.Operation) (*models.Job, error) {
	if mediaURL == "" {
		return nil, fmt.Errorf("%w: media URL is required", models.ErrInvalidRequest)
	}
	if err := media.ValidateOps(ops); err != nil {
		return nil, err
	}

	started := time.Now()
	job := &models.Job{
		UID:           uuid.NewString(),
		OutputVersion: 0,
		Input:         mediaURL,
		Action:        models.Operations(ops),
		Status:        models.JobStatusQueued,
	}
	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.EnqueueDuration.Observe(time.Since(started).Seconds())
		s.metrics.JobStatus.WithLabelValues(string(models.JobStatusQueued)).Inc()
	}
	s.logger.Info("edit enqueued",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("uid", job.UID),
		slog.Int("operations", len(ops)))
	return job, nil
}

// GetByID returns one job.
func (s *EditService) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	return s.repos.Jobs.GetByID(ctx, id)
}

// List returns jobs matching the options.
func (s *EditService) List(ctx context.Context, opts repository.ListOptions) ([]*models.Job, error) {
	return s.repos.Jobs.List(ctx, opts)
}

// Update revalidates the recipe and persists the job row.
func (s *EditService) Update(ctx context.Context, job *models.Job) error {
	if err := media.ValidateOps(job.Action); err != nil {
		return err
	}
	return s.repos.Jobs.Update(ctx, job)
}

// Retry requeues a job: status back to queued, error cleared, retry
// counter reset. The next dequeue picks it up like any fresh job.
func (s *EditService) Retry(ctx context.Context, id uint) (*models.Job, error) {
	if _, err := s.repos.Jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repos.Jobs.Requeue(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("job requeued", slog.Uint64("job_id", uint64(id)))
	return s.repos.Jobs.GetByID(ctx, id)
}

// Cancel marks the job cancelled and aborts its in-flight task when a
// worker currently owns it. Jobs still queued simply never run.
func (s *EditService) Cancel(ctx context.Context, id uint) (*models.Job, error) {
	if _, err := s.repos.Jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repos.Jobs.Cancel(ctx, id); err != nil {
		return nil, err
	}
	if s.canceler != nil {
		s.canceler.Cancel(id)
	}
	if s.metrics != nil {
		s.metrics.JobStatus.WithLabelValues(string(models.JobStatusCancelled)).Inc()
	}
	s.logger.Info("job cancelled", slog.Uint64("job_id", uint64(id)))
	return s.repos.Jobs.GetByID(ctx, id)
}

// Delete removes a job row.
func (s *EditService) Delete(ctx context.Context, id uint) error {
	return s.repos.Jobs.Delete(ctx, id)
}
