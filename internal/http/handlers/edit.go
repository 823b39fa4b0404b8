package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/service"
)

// EditHandler handles edit-job API endpoints.
type EditHandler struct {
	service *service.EditService
}

// NewEditHandler creates an edit handler.
func NewEditHandler(svc *service.EditService) *EditHandler {
	return &EditHandler{service: svc}
}

// Register registers the edit routes with the API.
func (h *EditHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createEdit",
		Method:        "POST",
		Path:          "/edits",
		Summary:       "Create edit",
		Description:   "Validates the recipe and enqueues one job",
		Tags:          []string{"Edits"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listEdits",
		Method:      "GET",
		Path:        "/edits",
		Summary:     "List edits",
		Description: "Returns jobs, optionally filtered by uid or status",
		Tags:        []string{"Edits"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getEdit",
		Method:      "GET",
		Path:        "/edits/{id}",
		Summary:     "Get edit",
		Description: "Returns a job by ID",
		Tags:        []string{"Edits"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "updateEdit",
		Method:      "PATCH",
		Path:        "/edits/{id}",
		Summary:     "Update edit",
		Description: "Updates the input or operations of a queued job",
		Tags:        []string{"Edits"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "retryEdit",
		Method:      "POST",
		Path:        "/edits/{id}/retry",
		Summary:     "Retry edit",
		Description: "Requeues the job and clears its error state",
		Tags:        []string{"Edits"},
	}, h.Retry)

	huma.Register(api, huma.Operation{
		OperationID: "cancelEdit",
		Method:      "POST",
		Path:        "/edits/{id}/cancel",
		Summary:     "Cancel edit",
		Description: "Cancels the job, aborting it when a worker owns it",
		Tags:        []string{"Edits"},
	}, h.Cancel)
}

// CreateEditBody is the request body for creating an edit.
type CreateEditBody struct {
	Media      string             `json:"media" doc:"Source media URL"`
	Operations []models.Operation `json:"operations" doc:"Ordered edit recipe"`
}

// CreateEditInput is the input for creating an edit.
type CreateEditInput struct {
	Body CreateEditBody
}

// EditReceipt echoes the accepted recipe back to the client with the
// uid that identifies the job chain.
type EditReceipt struct {
	ID         string             `json:"id" doc:"UID shared by all jobs of the recipe"`
	Media      string             `json:"media"`
	Operations []models.Operation `json:"operations"`
}

// CreateEditOutput is the output for creating an edit.
type CreateEditOutput struct {
	Body EditReceipt
}

// Create validates the recipe and enqueues it.
func (h *EditHandler) Create(ctx context.Context, input *CreateEditInput) (*CreateEditOutput, error) {
	job, err := h.service.CreateEdit(ctx, input.Body.Media, input.Body.Operations)
	if err != nil {
		return nil, apiError(err)
	}
	return &CreateEditOutput{Body: EditReceipt{
		ID:         job.UID,
		Media:      job.Input,
		Operations: input.Body.Operations,
	}}, nil
}

// ListEditsInput is the input for listing edits.
type ListEditsInput struct {
	UID    string `query:"uid" doc:"Filter by uid"`
	Status string `query:"status" doc:"Filter by job status"`
	Limit  int    `query:"limit" doc:"Maximum rows to return"`
	LastID uint   `query:"last_id" doc:"Return rows with id greater than this"`
}

// ListEditsBody is the response body for listing edits.
type ListEditsBody struct {
	Jobs []*models.Job `json:"jobs"`
}

// ListEditsOutput is the output for listing edits.
type ListEditsOutput struct {
	Body ListEditsBody
}

// List returns jobs matching the filters.
func (h *EditHandler) List(ctx context.Context, input *ListEditsInput) (*ListEditsOutput, error) {
	if input.Status != "" && !models.JobStatus(input.Status).Valid() {
		return nil, huma.Error400BadRequest("unknown status " + input.Status)
	}
	jobs, err := h.service.List(ctx, repository.ListOptions{
		UID:    input.UID,
		Status: models.JobStatus(input.Status),
		Limit:  input.Limit,
		LastID: input.LastID,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &ListEditsOutput{Body: ListEditsBody{Jobs: jobs}}, nil
}

// EditInput identifies one job by ID.
type EditInput struct {
	ID uint `path:"id" doc:"Job ID"`
}

// EditOutput carries one job.
type EditOutput struct {
	Body *models.Job
}

// GetByID returns one job.
func (h *EditHandler) GetByID(ctx context.Context, input *EditInput) (*EditOutput, error) {
	job, err := h.service.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &EditOutput{Body: job}, nil
}

// UpdateEditBody is the request body for updating an edit. Absent
// fields are left untouched.
type UpdateEditBody struct {
	Media      *string            `json:"media,omitempty" doc:"Replacement source media URL"`
	Operations []models.Operation `json:"operations,omitempty" doc:"Replacement recipe"`
}

// UpdateEditInput is the input for updating an edit.
type UpdateEditInput struct {
	ID   uint `path:"id" doc:"Job ID"`
	Body UpdateEditBody
}

// Update patches a queued job's input or recipe.
func (h *EditHandler) Update(ctx context.Context, input *UpdateEditInput) (*EditOutput, error) {
	job, err := h.service.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if job.Status != models.JobStatusQueued {
		return nil, huma.Error400BadRequest("only queued jobs can be updated")
	}
	if input.Body.Media != nil {
		job.Input = *input.Body.Media
	}
	if input.Body.Operations != nil {
		job.Action = models.Operations(input.Body.Operations)
	}
	if err := h.service.Update(ctx, job); err != nil {
		return nil, apiError(err)
	}
	return &EditOutput{Body: job}, nil
}

// Retry requeues the job.
func (h *EditHandler) Retry(ctx context.Context, input *EditInput) (*EditOutput, error) {
	job, err := h.service.Retry(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &EditOutput{Body: job}, nil
}

// Cancel cancels the job.
func (h *EditHandler) Cancel(ctx context.Context, input *EditInput) (*EditOutput, error) {
	job, err := h.service.Cancel(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &EditOutput{Body: job}, nil
}
