package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

// DefaultStreamInterval is the poll period for progress streams.
const DefaultStreamInterval = time.Second

// ProgressService turns job-row polling into an update stream for one
// uid.
type ProgressService struct {
	repos    *repository.Repositories
	interval time.Duration
	logger   *slog.Logger
}

// NewProgressService creates a ProgressService.
func NewProgressService(repos *repository.Repositories, interval time.Duration) *ProgressService {
	if interval < time.Second {
		interval = DefaultStreamInterval
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}
	return &ProgressService{repos: repos, interval: interval, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *ProgressService) WithLogger(logger *slog.Logger) *ProgressService {
	s.logger = logger
	return s
}

// Stream polls the jobs of the given uid and calls emit for every row
// whose updated_at changed since the last poll. It returns when ctx is
// cancelled, emit fails (client gone), or every job has reached a
// terminal status and its final state has been emitted.
func (s *ProgressService) Stream(ctx context.Context, uid string, emit func(*models.Job) error) error {
	lastSeen := make(map[uint]time.Time)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		jobs, err := s.repos.Jobs.GetByUID(ctx, uid)
		if err != nil {
			return err
		}

		allDone := len(jobs) > 0
		for _, job := range jobs {
			if !job.Status.Terminal() {
				allDone = false
			}
			if seen, ok := lastSeen[job.ID]; ok && seen.Equal(job.UpdatedAt) {
				continue
			}
			if err := emit(job); err != nil {
				return err
			}
			lastSeen[job.ID] = job.UpdatedAt
		}
		if allDone {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
