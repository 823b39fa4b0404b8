package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/models"
)

func TestEnsureBucketIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFileRepository(db.DB)
	ctx := context.Background()

	b1, err := repo.EnsureBucket(ctx, "primary")
	require.NoError(t, err)
	b2, err := repo.EnsureBucket(ctx, "primary")
	require.NoError(t, err)
	assert.Equal(t, b1.ID, b2.ID)
}

func TestListFilesByBucket(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFileRepository(db.DB)
	ctx := context.Background()

	require.NoError(t, repo.CreateFile(ctx, &models.File{Name: "a.mp4", BucketName: "primary", FileType: "mp4"}))
	require.NoError(t, repo.CreateFile(ctx, &models.File{Name: "b.mp3", BucketName: "other", FileType: "mp3"}))

	files, err := repo.ListFiles(ctx, "primary")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.mp4", files[0].Name)

	all, err := repo.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDownloadDedupLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDownloadRepository(db.DB)
	ctx := context.Background()

	miss, err := repo.Find(ctx, "https://videos.example/watch?v=1", "best", "", false)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, repo.Create(ctx, &models.Download{
		ExternalURL: "https://videos.example/watch?v=1",
		Filename:    "clip.mp4",
		BucketName:  "primary",
		Quality:     "best",
	}))

	hit, err := repo.Find(ctx, "https://videos.example/watch?v=1", "best", "", false)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "clip.mp4", hit.Filename)

	// Different options are a distinct download.
	other, err := repo.Find(ctx, "https://videos.example/watch?v=1", "best", "", true)
	require.NoError(t, err)
	assert.Nil(t, other)
}
