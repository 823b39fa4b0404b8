package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/http/handlers"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/service"
)

func setupProgressRouter(t *testing.T) (*chi.Mux, *repository.Repositories) {
	t.Helper()
	_, repos := setupDB(t)
	handler := handlers.NewProgressHandler(service.NewProgressService(repos, time.Second))
	handler.SetHeartbeatInterval(100 * time.Millisecond)
	router := chi.NewRouter()
	handler.RegisterSSE(router)
	return router, repos
}

func TestProgressSSE_RequiresUID(t *testing.T) {
	router, _ := setupProgressRouter(t)

	req := httptest.NewRequest("GET", "/edits/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressSSE_StreamsTerminalState(t *testing.T) {
	router, repos := setupProgressRouter(t)
	ctx := context.Background()

	job := &models.Job{
		UID:    "uid-sse",
		Input:  "https://example.com/in.mp4",
		Action: models.Operations{trimOp(t, 0, 10)},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, repos.Jobs.Create(ctx, job))

	dq, err := repos.Jobs.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, dq)
	require.NoError(t, repos.Jobs.SetProgress(ctx, job.ID, 100))
	require.NoError(t, repos.Jobs.Complete(ctx, job.ID))

	// All jobs are terminal, so the stream emits the final state and
	// closes on its own.
	req := httptest.NewRequest("GET", "/edits/status?uid=uid-sse", nil)
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req = req.WithContext(reqCtx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, ":connected")
	require.Contains(t, body, "event: job_update")

	// Parse the data line of the first job_update event.
	var payload string
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "event: job_update" && i+1 < len(lines) {
			payload = strings.TrimPrefix(lines[i+1], "data: ")
			break
		}
	}
	require.NotEmpty(t, payload)

	var got models.Job
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, "uid-sse", got.UID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestProgressSSE_UnknownUIDKeepsPolling(t *testing.T) {
	router, _ := setupProgressRouter(t)

	// No jobs exist for the uid, so the stream stays open polling
	// until the client goes away.
	reqCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/edits/status?uid=uid-none", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, ":connected")
	assert.NotContains(t, body, "event: job_update")
}
