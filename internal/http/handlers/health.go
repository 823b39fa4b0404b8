package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/clipd/internal/database"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db      *database.DB
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *database.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns ok when the process is up and the database answers",
		Tags:        []string{"System"},
	}, h.Check)
}

// HealthBody is the response body for the health check.
type HealthBody struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// HealthOutput is the output for the health check.
type HealthOutput struct {
	Body HealthBody
}

// Check pings the database and reports status.
func (h *HealthHandler) Check(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	body := HealthBody{Status: "ok", Version: h.version, Database: "ok"}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			body.Status = "degraded"
			body.Database = err.Error()
		}
	}
	if body.Status != "ok" {
		return nil, huma.Error503ServiceUnavailable("database unreachable")
	}
	return &HealthOutput{Body: body}, nil
}
