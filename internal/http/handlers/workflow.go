package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/service"
)

// WorkflowHandler handles workflow API endpoints.
type WorkflowHandler struct {
	service *service.WorkflowService
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// Register registers the workflow routes with the API.
func (h *WorkflowHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createWorkflow",
		Method:        "POST",
		Path:          "/workflows",
		Summary:       "Create workflow",
		Description:   "Validates every step and stores the workflow",
		Tags:          []string{"Workflows"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listWorkflows",
		Method:      "GET",
		Path:        "/workflows",
		Summary:     "List workflows",
		Description: "Returns all stored workflows",
		Tags:        []string{"Workflows"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "executeWorkflow",
		Method:      "POST",
		Path:        "/workflows/execute",
		Summary:     "Execute workflow",
		Description: "Plans and enqueues one job per step of the selected workflow",
		Tags:        []string{"Workflows"},
	}, h.Execute)

	huma.Register(api, huma.Operation{
		OperationID: "listWorkflowExecutions",
		Method:      "GET",
		Path:        "/workflows/executions",
		Summary:     "List executions",
		Description: "Returns all workflow execution records",
		Tags:        []string{"Workflows"},
	}, h.ListExecutions)

	huma.Register(api, huma.Operation{
		OperationID: "listExecutionJobs",
		Method:      "GET",
		Path:        "/workflows/executions/{id}/jobs",
		Summary:     "List execution jobs",
		Description: "Returns the jobs of one execution ordered by step",
		Tags:        []string{"Workflows"},
	}, h.ExecutionJobs)

	huma.Register(api, huma.Operation{
		OperationID: "getWorkflow",
		Method:      "GET",
		Path:        "/workflows/{id}",
		Summary:     "Get workflow",
		Description: "Returns a workflow by ID",
		Tags:        []string{"Workflows"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "updateWorkflow",
		Method:      "PATCH",
		Path:        "/workflows/{id}",
		Summary:     "Update workflow",
		Description: "Updates a workflow's name, search term, or steps",
		Tags:        []string{"Workflows"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "deleteWorkflow",
		Method:      "DELETE",
		Path:        "/workflows/{id}",
		Summary:     "Delete workflow",
		Description: "Deletes a workflow",
		Tags:        []string{"Workflows"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "retryWorkflowExecution",
		Method:      "POST",
		Path:        "/workflows/{id}/retry",
		Summary:     "Retry execution",
		Description: "Requeues the execution's jobs whose status is error or cancelled",
		Tags:        []string{"Workflows"},
	}, h.RetryByUID)
}

// WorkflowBody is the request body for creating a workflow.
type WorkflowBody struct {
	Name   string               `json:"name" doc:"Unique workflow name"`
	Search string               `json:"search,omitempty" doc:"Free-text term for search resolution"`
	Steps  models.WorkflowSteps `json:"steps" doc:"One operation list per step"`
}

// CreateWorkflowInput is the input for creating a workflow.
type CreateWorkflowInput struct {
	Body WorkflowBody
}

// WorkflowOutput carries one workflow.
type WorkflowOutput struct {
	Body *models.Workflow
}

// Create validates and stores a workflow.
func (h *WorkflowHandler) Create(ctx context.Context, input *CreateWorkflowInput) (*WorkflowOutput, error) {
	wf := &models.Workflow{
		Name:   input.Body.Name,
		Search: input.Body.Search,
		Steps:  input.Body.Steps,
	}
	if err := h.service.Create(ctx, wf); err != nil {
		return nil, apiError(err)
	}
	return &WorkflowOutput{Body: wf}, nil
}

// ListWorkflowsBody is the response body for listing workflows.
type ListWorkflowsBody struct {
	Workflows []*models.Workflow `json:"workflows"`
}

// ListWorkflowsOutput is the output for listing workflows.
type ListWorkflowsOutput struct {
	Body ListWorkflowsBody
}

// List returns all workflows.
func (h *WorkflowHandler) List(ctx context.Context, _ *struct{}) (*ListWorkflowsOutput, error) {
	workflows, err := h.service.List(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListWorkflowsOutput{Body: ListWorkflowsBody{Workflows: workflows}}, nil
}

// WorkflowInput identifies one workflow by ID.
type WorkflowInput struct {
	ID uint `path:"id" doc:"Workflow ID"`
}

// GetByID returns one workflow.
func (h *WorkflowHandler) GetByID(ctx context.Context, input *WorkflowInput) (*WorkflowOutput, error) {
	wf, err := h.service.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &WorkflowOutput{Body: wf}, nil
}

// UpdateWorkflowBody is the request body for updating a workflow.
// Absent fields are left untouched.
type UpdateWorkflowBody struct {
	Name   *string              `json:"name,omitempty"`
	Search *string              `json:"search,omitempty"`
	Steps  models.WorkflowSteps `json:"steps,omitempty"`
}

// UpdateWorkflowInput is the input for updating a workflow.
type UpdateWorkflowInput struct {
	ID   uint `path:"id" doc:"Workflow ID"`
	Body UpdateWorkflowBody
}

// Update patches a workflow.
func (h *WorkflowHandler) Update(ctx context.Context, input *UpdateWorkflowInput) (*WorkflowOutput, error) {
	wf, err := h.service.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if input.Body.Name != nil {
		wf.Name = *input.Body.Name
	}
	if input.Body.Search != nil {
		wf.Search = *input.Body.Search
	}
	if input.Body.Steps != nil {
		wf.Steps = input.Body.Steps
	}
	if err := h.service.Update(ctx, wf); err != nil {
		return nil, apiError(err)
	}
	return &WorkflowOutput{Body: wf}, nil
}

// Delete removes a workflow.
func (h *WorkflowHandler) Delete(ctx context.Context, input *WorkflowInput) (*struct{}, error) {
	if _, err := h.service.GetByID(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	if err := h.service.Delete(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{}{}, nil
}

// ExecuteWorkflowInput selects a workflow and the media to run it on.
// Exactly one of id, name, or search must be set.
type ExecuteWorkflowInput struct {
	Media  string `query:"media" doc:"Source media URL"`
	ID     uint   `query:"id" doc:"Select workflow by ID"`
	Name   string `query:"name" doc:"Select workflow by name"`
	Search string `query:"search" doc:"Select workflow by search term"`
}

// PlannedJob is one step of a planned execution.
type PlannedJob struct {
	UID        string             `json:"uid"`
	Media      string             `json:"media,omitempty"`
	Operations []models.Operation `json:"operations"`
}

// ExecuteWorkflowBody is the response body for executing a workflow.
type ExecuteWorkflowBody struct {
	Workflows []PlannedJob `json:"workflows"`
}

// ExecuteWorkflowOutput is the output for executing a workflow.
type ExecuteWorkflowOutput struct {
	Body ExecuteWorkflowBody
}

// Execute resolves the workflow and enqueues its job chain.
func (h *WorkflowHandler) Execute(ctx context.Context, input *ExecuteWorkflowInput) (*ExecuteWorkflowOutput, error) {
	_, jobs, err := h.service.Execute(ctx, service.WorkflowSelector{
		ID:     input.ID,
		Name:   input.Name,
		Search: input.Search,
	}, input.Media)
	if err != nil {
		return nil, apiError(err)
	}

	planned := make([]PlannedJob, 0, len(jobs))
	for _, job := range jobs {
		planned = append(planned, PlannedJob{
			UID:        job.UID,
			Media:      job.Input,
			Operations: []models.Operation(job.Action),
		})
	}
	return &ExecuteWorkflowOutput{Body: ExecuteWorkflowBody{Workflows: planned}}, nil
}

// RetryExecutionInput identifies an execution by its uid. The path
// parameter shares the {id} name with the other workflow routes but
// carries the execution uid, not a workflow row id.
type RetryExecutionInput struct {
	UID string `path:"id" doc:"Execution UID"`
}

// RetryExecutionBody is the response body for retrying an execution.
type RetryExecutionBody struct {
	Jobs []*models.Job `json:"jobs"`
}

// RetryExecutionOutput is the output for retrying an execution.
type RetryExecutionOutput struct {
	Body RetryExecutionBody
}

// RetryByUID requeues failed or cancelled jobs of the execution.
func (h *WorkflowHandler) RetryByUID(ctx context.Context, input *RetryExecutionInput) (*RetryExecutionOutput, error) {
	jobs, err := h.service.RetryByUID(ctx, input.UID)
	if err != nil {
		return nil, apiError(err)
	}
	return &RetryExecutionOutput{Body: RetryExecutionBody{Jobs: jobs}}, nil
}

// ListExecutionsBody is the response body for listing executions.
type ListExecutionsBody struct {
	Executions []*models.WorkflowExecution `json:"executions"`
}

// ListExecutionsOutput is the output for listing executions.
type ListExecutionsOutput struct {
	Body ListExecutionsBody
}

// ListExecutions returns all execution records.
func (h *WorkflowHandler) ListExecutions(ctx context.Context, _ *struct{}) (*ListExecutionsOutput, error) {
	execs, err := h.service.ListExecutions(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListExecutionsOutput{Body: ListExecutionsBody{Executions: execs}}, nil
}

// ExecutionJobsInput identifies one execution by ID.
type ExecutionJobsInput struct {
	ID uint `path:"id" doc:"Execution ID"`
}

// ExecutionJobsBody is the response body for listing an execution's jobs.
type ExecutionJobsBody struct {
	Jobs []*models.Job `json:"jobs"`
}

// ExecutionJobsOutput is the output for listing an execution's jobs.
type ExecutionJobsOutput struct {
	Body ExecutionJobsBody
}

// ExecutionJobs returns the jobs of one execution.
func (h *WorkflowHandler) ExecutionJobs(ctx context.Context, input *ExecutionJobsInput) (*ExecutionJobsOutput, error) {
	jobs, err := h.service.ExecutionJobs(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ExecutionJobsOutput{Body: ExecutionJobsBody{Jobs: jobs}}, nil
}
