package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/storage"
)

// FileHandler lists registered artifacts with presigned GET URLs.
type FileHandler struct {
	repos  *repository.Repositories
	store  storage.ObjectStore
	bucket string
	logger *slog.Logger
}

// NewFileHandler creates a file handler. bucket is the default bucket
// listed when the client does not name one.
func NewFileHandler(repos *repository.Repositories, store storage.ObjectStore, bucket string) *FileHandler {
	return &FileHandler{repos: repos, store: store, bucket: bucket, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *FileHandler) WithLogger(logger *slog.Logger) *FileHandler {
	h.logger = logger
	return h
}

// Register registers the file routes with the API.
func (h *FileHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listFiles",
		Method:      "GET",
		Path:        "/files",
		Summary:     "List files",
		Description: "Returns stored artifacts with presigned download URLs",
		Tags:        []string{"Files"},
	}, h.List)
}

// ListFilesInput is the input for listing files.
type ListFilesInput struct {
	Bucket string `query:"bucket" doc:"Bucket to list; defaults to the primary bucket"`
}

// FileEntry is one artifact in a listing.
type FileEntry struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	BucketName string    `json:"bucketname"`
	FileType   string    `json:"filetype,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilesBody is the response body for listing files.
type ListFilesBody struct {
	Files []FileEntry `json:"files"`
}

// ListFilesOutput is the output for listing files.
type ListFilesOutput struct {
	Body ListFilesBody
}

// List returns the bucket's registered files. Presigning is best
// effort: a store hiccup leaves the url empty rather than failing the
// listing.
func (h *FileHandler) List(ctx context.Context, input *ListFilesInput) (*ListFilesOutput, error) {
	bucket := input.Bucket
	if bucket == "" {
		bucket = h.bucket
	}

	files, err := h.repos.Files.ListFiles(ctx, bucket)
	if err != nil {
		return nil, apiError(err)
	}

	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entry := FileEntry{
			ID:         f.ID,
			Name:       f.Name,
			BucketName: f.BucketName,
			FileType:   f.FileType,
			CreatedAt:  f.CreatedAt,
		}
		if h.store != nil {
			url, err := h.store.PresignGet(ctx, f.BucketName, f.Name, 0)
			if err != nil {
				h.logger.Warn("presign failed",
					slog.String("bucket", f.BucketName),
					slog.String("key", f.Name),
					slog.Any("error", err))
			} else {
				entry.URL = url
			}
		}
		entries = append(entries, entry)
	}
	return &ListFilesOutput{Body: ListFilesBody{Files: entries}}, nil
}
