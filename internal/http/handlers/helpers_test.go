package handlers_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/database"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
)

func setupDB(t *testing.T) (*database.DB, *repository.Repositories) {
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
	return db, repository.New(db.DB)
}

func newTestRouter() (*chi.Mux, huma.API) {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	return router, api
}

func bytesReader(b []byte) *strings.Reader {
	return strings.NewReader(string(b))
}

func trimOp(t *testing.T, start, end float64) models.Operation {
	t.Helper()
	data, err := json.Marshal(map[string]float64{"start_sec": start, "end_sec": end})
	require.NoError(t, err)
	return models.Operation{Op: "trim", Data: data}
}
