package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/clipd/internal/models"
)

// downloadRepo implements DownloadRepository using GORM.
type downloadRepo struct {
	db *gorm.DB
}

// NewDownloadRepository creates a new DownloadRepository.
func NewDownloadRepository(db *gorm.DB) DownloadRepository {
	return &downloadRepo{db: db}
}

// Create records a completed external download.
func (r *downloadRepo) Create(ctx context.Context, d *models.Download) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("creating download record: %w", err)
	}
	return nil
}

// Find looks up a prior download with the same source and options.
// Returns (nil, nil) when no matching record exists.
func (r *downloadRepo) Find(ctx context.Context, externalURL, quality, format string, audioOnly bool) (*models.Download, error) {
	var d models.Download
	err := r.db.WithContext(ctx).
		Where("external_url = ? AND quality = ? AND format = ? AND audio_only = ?",
			externalURL, quality, format, audioOnly).
		Order("id DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding download record: %w", err)
	}
	return &d, nil
}
