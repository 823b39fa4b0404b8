package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/clipd/internal/models"
)

// fileRepo implements FileRepository using GORM.
type fileRepo struct {
	db *gorm.DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepo{db: db}
}

// CreateFile registers an artifact in the files table.
func (r *fileRepo) CreateFile(ctx context.Context, f *models.File) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("creating file record: %w", err)
	}
	return nil
}

// ListFiles retrieves registered files, optionally filtered by bucket.
func (r *fileRepo) ListFiles(ctx context.Context, bucket string) ([]*models.File, error) {
	q := r.db.WithContext(ctx).Model(&models.File{})
	if bucket != "" {
		q = q.Where("bucket_name = ?", bucket)
	}
	var files []*models.File
	if err := q.Order("id ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// EnsureBucket returns the bucket row with the given name, creating it
// when missing.
func (r *fileRepo) EnsureBucket(ctx context.Context, name string) (*models.Bucket, error) {
	var bucket models.Bucket
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&bucket).Error
	if err == nil {
		return &bucket, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up bucket: %w", err)
	}

	bucket = models.Bucket{Name: name}
	if err := r.db.WithContext(ctx).Create(&bucket).Error; err != nil {
		return nil, fmt.Errorf("creating bucket record: %w", err)
	}
	return &bucket, nil
}
