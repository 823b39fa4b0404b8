package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/http/handlers"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/service"
)

func setupWorkflowRouter(t *testing.T) (http.Handler, *repository.Repositories) {
	t.Helper()
	_, repos := setupDB(t)
	router, api := newTestRouter()
	handlers.NewWorkflowHandler(service.NewWorkflowService(repos)).Register(api)
	return router, repos
}

func createWorkflow(t *testing.T, router http.Handler) *models.Workflow {
	t.Helper()
	rec := postJSON(t, router, "/workflows", map[string]any{
		"name":   "social-clip",
		"search": "social clip vertical",
		"steps": models.WorkflowSteps{
			{trimOp(t, 0, 10)},
			{{Op: "extractAudio"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var wf models.Workflow
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wf))
	require.NotZero(t, wf.ID)
	return &wf
}

func TestWorkflowHandler_CreateAndGet(t *testing.T) {
	router, _ := setupWorkflowRouter(t)
	wf := createWorkflow(t, router)

	req := httptest.NewRequest("GET", fmt.Sprintf("/workflows/%d", wf.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Workflow
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "social-clip", got.Name)
	assert.Len(t, got.Steps, 2)
}

func TestWorkflowHandler_CreateRejectsBadStep(t *testing.T) {
	router, _ := setupWorkflowRouter(t)

	rec := postJSON(t, router, "/workflows", map[string]any{
		"name":  "broken",
		"steps": models.WorkflowSteps{{{Op: "explode"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestWorkflowHandler_Execute(t *testing.T) {
	router, repos := setupWorkflowRouter(t)
	createWorkflow(t, router)

	rec := postJSON(t, router,
		"/workflows/execute?media=https%3A%2F%2Fexample.com%2Fin.mp4&name=social-clip", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body handlers.ExecuteWorkflowBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Workflows, 2)
	assert.Equal(t, body.Workflows[0].UID, body.Workflows[1].UID)
	assert.Equal(t, "https://example.com/in.mp4", body.Workflows[0].Media)
	assert.Empty(t, body.Workflows[1].Media)

	jobs, err := repos.Jobs.GetByUID(context.Background(), body.Workflows[0].UID)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestWorkflowHandler_ExecuteUnknownIs404(t *testing.T) {
	router, _ := setupWorkflowRouter(t)

	rec := postJSON(t, router,
		"/workflows/execute?media=https%3A%2F%2Fexample.com%2Fin.mp4&name=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestWorkflowHandler_MutatingMissingIs404(t *testing.T) {
	router, _ := setupWorkflowRouter(t)

	patch, err := json.Marshal(map[string]any{"name": "renamed"})
	require.NoError(t, err)
	req := httptest.NewRequest("PATCH", "/workflows/9999", strings.NewReader(string(patch)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("DELETE", "/workflows/9999", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("GET", "/workflows/executions/9999/jobs", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowHandler_ExecuteEmptySelectorIs400(t *testing.T) {
	router, _ := setupWorkflowRouter(t)

	rec := postJSON(t, router,
		"/workflows/execute?media=https%3A%2F%2Fexample.com%2Fin.mp4", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestWorkflowHandler_RetryExecution(t *testing.T) {
	router, repos := setupWorkflowRouter(t)
	createWorkflow(t, router)
	ctx := context.Background()

	rec := postJSON(t, router,
		"/workflows/execute?media=https%3A%2F%2Fexample.com%2Fin.mp4&name=social-clip", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.ExecuteWorkflowBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	uid := body.Workflows[0].UID

	dq, err := repos.Jobs.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, dq)
	require.NoError(t, repos.Jobs.Fail(ctx, dq.Job.ID, "boom"))

	req := httptest.NewRequest("POST", "/workflows/"+uid+"/retry", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var retried handlers.RetryExecutionBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&retried))
	for _, job := range retried.Jobs {
		assert.Equal(t, models.JobStatusQueued, job.Status)
	}
}

func TestWorkflowHandler_Executions(t *testing.T) {
	router, _ := setupWorkflowRouter(t)
	createWorkflow(t, router)

	rec := postJSON(t, router,
		"/workflows/execute?media=https%3A%2F%2Fexample.com%2Fin.mp4&name=social-clip", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest("GET", "/workflows/executions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing handlers.ListExecutionsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	require.Len(t, listing.Executions, 1)

	req = httptest.NewRequest("GET",
		fmt.Sprintf("/workflows/executions/%d/jobs", listing.Executions[0].ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs handlers.ExecutionJobsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
	assert.Len(t, jobs.Jobs, 2)
}

func TestWorkflowHandler_UpdateAndDelete(t *testing.T) {
	router, _ := setupWorkflowRouter(t)
	wf := createWorkflow(t, router)

	body, _ := json.Marshal(map[string]any{"name": "renamed"})
	req := httptest.NewRequest("PATCH", fmt.Sprintf("/workflows/%d", wf.ID), bytesReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Workflow
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "renamed", got.Name)

	req = httptest.NewRequest("DELETE", fmt.Sprintf("/workflows/%d", wf.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	req = httptest.NewRequest("GET", fmt.Sprintf("/workflows/%d", wf.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
