package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmylchreest/clipd/internal/media"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

// WorkflowSelector identifies a stored workflow by exactly one of its
// id, name, or search term.
type WorkflowSelector struct {
	ID     uint
	Name   string
	Search string
}

// WorkflowService manages stored workflows and plans their executions
// as job chains.
type WorkflowService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(repos *repository.Repositories) *WorkflowService {
	return &WorkflowService{repos: repos, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *WorkflowService) WithLogger(logger *slog.Logger) *WorkflowService {
	s.logger = logger
	return s
}

// Create validates every step and stores the workflow.
func (s *WorkflowService) Create(ctx context.Context, wf *models.Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("%w: workflow name is required", models.ErrInvalidRequest)
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", models.ErrInvalidRequest)
	}
	for i, step := range wf.Steps {
		if err := media.ValidateOps(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	if err := s.repos.Workflows.Create(ctx, wf); err != nil {
		return err
	}
	s.logger.Info("workflow created",
		slog.Uint64("workflow_id", uint64(wf.ID)),
		slog.String("name", wf.Name),
		slog.Int("steps", len(wf.Steps)))
	return nil
}

// GetByID returns one workflow.
func (s *WorkflowService) GetByID(ctx context.Context, id uint) (*models.Workflow, error) {
	return s.repos.Workflows.GetByID(ctx, id)
}

// List returns all workflows.
func (s *WorkflowService) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.repos.Workflows.List(ctx)
}

// Update validates changed steps and persists the workflow.
func (s *WorkflowService) Update(ctx context.Context, wf *models.Workflow) error {
	for i, step := range wf.Steps {
		if err := media.ValidateOps(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return s.repos.Workflows.Update(ctx, wf)
}

// Delete removes a workflow.
func (s *WorkflowService) Delete(ctx context.Context, id uint) error {
	return s.repos.Workflows.Delete(ctx, id)
}

// Resolve finds the workflow the selector names.
func (s *WorkflowService) Resolve(ctx context.Context, sel WorkflowSelector) (*models.Workflow, error) {
	switch {
	case sel.ID != 0:
		return s.repos.Workflows.GetByID(ctx, sel.ID)
	case sel.Name != "":
		return s.repos.Workflows.GetByName(ctx, sel.Name)
	case sel.Search != "":
		return s.repos.Workflows.Search(ctx, sel.Search)
	default:
		return nil, fmt.Errorf("%w: workflow selector is empty", models.ErrInvalidRequest)
	}
}

// Execute plans one run of the workflow against the given media URL:
// a fresh uid shared by all steps, one queued job per step ordered by
// output_version, and an execution row, inserted atomically. Only the
// first step carries the media input; later steps consume their
// predecessor's artifact.
func (s *WorkflowService) Execute(ctx context.Context, sel WorkflowSelector, mediaURL string) (*models.WorkflowExecution, []*models.Job, error) {
	if mediaURL == "" {
		return nil, nil, fmt.Errorf("%w: media URL is required", models.ErrInvalidRequest)
	}
	wf, err := s.Resolve(ctx, sel)
	if err != nil {
		return nil, nil, err
	}

	uid := uuid.NewString()
	jobs := make([]*models.Job, 0, len(wf.Steps))
	for i, step := range wf.Steps {
		if err := media.ValidateOps(step); err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", i, err)
		}
		input := ""
		if i == 0 {
			input = mediaURL
		}
		jobs = append(jobs, &models.Job{
			UID:           uid,
			OutputVersion: i,
			Input:         input,
			Action:        models.Operations(step),
			Status:        models.JobStatusQueued,
		})
	}

	exec := &models.WorkflowExecution{WorkflowID: wf.ID, UID: uid}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Jobs.CreateBatch(ctx, jobs); err != nil {
			return err
		}
		return tx.Workflows.CreateExecution(ctx, exec)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("workflow execution planned",
		slog.Uint64("workflow_id", uint64(wf.ID)),
		slog.String("uid", uid),
		slog.Int("steps", len(jobs)))
	return exec, jobs, nil
}

// RetryByUID requeues every job of the execution whose status is error
// or cancelled.
func (s *WorkflowService) RetryByUID(ctx context.Context, uid string) ([]*models.Job, error) {
	jobs, err := s.repos.Jobs.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no jobs for uid %s", models.ErrNotFound, uid)
	}
	for _, job := range jobs {
		if job.Status != models.JobStatusError && job.Status != models.JobStatusCancelled {
			continue
		}
		if err := s.repos.Jobs.Requeue(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return s.repos.Jobs.GetByUID(ctx, uid)
}

// ListExecutions returns all execution rows.
func (s *WorkflowService) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return s.repos.Workflows.ListExecutions(ctx)
}

// ExecutionJobs returns the jobs of one execution ordered by step.
func (s *WorkflowService) ExecutionJobs(ctx context.Context, execID uint) ([]*models.Job, error) {
	exec, err := s.repos.Workflows.GetExecutionByID(ctx, execID)
	if err != nil {
		return nil, err
	}
	return s.repos.Jobs.GetByUID(ctx, exec.UID)
}
