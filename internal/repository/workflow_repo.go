package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/clipd/internal/models"
)

// workflowRepo implements WorkflowRepository using GORM.
type workflowRepo struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepo{db: db}
}

// Create creates a new workflow.
func (r *workflowRepo) Create(ctx context.Context, wf *models.Workflow) error {
	if err := r.db.WithContext(ctx).Create(wf).Error; err != nil {
		return fmt.Errorf("creating workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow by ID.
func (r *workflowRepo) GetByID(ctx context.Context, id uint) (*models.Workflow, error) {
	var wf models.Workflow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workflow %d", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting workflow by ID: %w", err)
	}
	return &wf, nil
}

// GetByName retrieves a workflow by exact name.
func (r *workflowRepo) GetByName(ctx context.Context, name string) (*models.Workflow, error) {
	var wf models.Workflow
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workflow %q", models.ErrNotFound, name)
		}
		return nil, fmt.Errorf("getting workflow by name: %w", err)
	}
	return &wf, nil
}

// Search retrieves the first workflow whose search string matches.
func (r *workflowRepo) Search(ctx context.Context, term string) (*models.Workflow, error) {
	var wf models.Workflow
	if err := r.db.WithContext(ctx).Where("search = ?", term).Order("id ASC").First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no workflow matches %q", models.ErrNotFound, term)
		}
		return nil, fmt.Errorf("searching workflows: %w", err)
	}
	return &wf, nil
}

// List retrieves all workflows.
func (r *workflowRepo) List(ctx context.Context) ([]*models.Workflow, error) {
	var wfs []*models.Workflow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&wfs).Error; err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	return wfs, nil
}

// Update saves the full workflow record.
func (r *workflowRepo) Update(ctx context.Context, wf *models.Workflow) error {
	if err := r.db.WithContext(ctx).Save(wf).Error; err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}
	return nil
}

// Delete removes a workflow by ID.
func (r *workflowRepo) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Workflow{}, id).Error; err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	return nil
}

// CreateExecution records a new workflow execution.
func (r *workflowRepo) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("creating workflow execution: %w", err)
	}
	return nil
}

// GetExecutionByID retrieves a workflow execution by ID.
func (r *workflowRepo) GetExecutionByID(ctx context.Context, id uint) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&exec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: execution %d", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting workflow execution: %w", err)
	}
	return &exec, nil
}

// ListExecutions retrieves all workflow executions.
func (r *workflowRepo) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	var execs []*models.WorkflowExecution
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("listing workflow executions: %w", err)
	}
	return execs, nil
}
