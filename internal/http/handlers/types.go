// Package handlers implements the clipd API operations.
package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/clipd/internal/models"
)

// apiError maps service errors onto huma status errors. Recipe and
// selector problems become 400s, missing records 404s, and anything
// else surfaces as a 500.
func apiError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, models.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
