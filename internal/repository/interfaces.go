// Package repository provides data access layers for clipd entities.
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jmylchreest/clipd/internal/models"
)

// ListOptions narrows a listing query. Zero values mean "no filter".
// Pagination is monotonic: only rows with id > LastID are returned.
type ListOptions struct {
	UID    string
	Status models.JobStatus
	Limit  int
	LastID uint
}

// DequeuedJob is the result of an atomic dequeue: the claimed job plus
// the output of its predecessor step, when one exists.
type DequeuedJob struct {
	Job            *models.Job
	PreviousOutput *models.JobOutput
}

// JobRepository defines data access for jobs, including the atomic
// queue operations used by workers.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	CreateBatch(ctx context.Context, jobs []*models.Job) error
	GetByID(ctx context.Context, id uint) (*models.Job, error)
	GetByUID(ctx context.Context, uid string) ([]*models.Job, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, id uint) error

	// Dequeue atomically claims the oldest eligible queued job and
	// transitions it to processing. Returns (nil, nil) when no job is
	// eligible.
	Dequeue(ctx context.Context, maxRetries int) (*DequeuedJob, error)

	SetProgress(ctx context.Context, id uint, progress int) error
	SetOutput(ctx context.Context, id uint, output *models.JobOutput) error
	Complete(ctx context.Context, id uint) error
	Cancel(ctx context.Context, id uint) error
	Fail(ctx context.Context, id uint, errText string) error
	Requeue(ctx context.Context, id uint) error

	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

// WorkflowRepository defines data access for workflows and their
// executions.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *models.Workflow) error
	GetByID(ctx context.Context, id uint) (*models.Workflow, error)
	GetByName(ctx context.Context, name string) (*models.Workflow, error)
	Search(ctx context.Context, term string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Update(ctx context.Context, wf *models.Workflow) error
	Delete(ctx context.Context, id uint) error

	CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error
	GetExecutionByID(ctx context.Context, id uint) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error)
}

// FileRepository defines data access for buckets and registered files.
type FileRepository interface {
	CreateFile(ctx context.Context, f *models.File) error
	ListFiles(ctx context.Context, bucket string) ([]*models.File, error)
	EnsureBucket(ctx context.Context, name string) (*models.Bucket, error)
}

// DownloadRepository defines data access for external-download records.
type DownloadRepository interface {
	Create(ctx context.Context, d *models.Download) error
	Find(ctx context.Context, externalURL, quality, format string, audioOnly bool) (*models.Download, error)
}

// Repositories bundles all repositories over one database handle and
// supports running a group of operations in a single transaction.
type Repositories struct {
	db        *gorm.DB
	Jobs      JobRepository
	Workflows WorkflowRepository
	Files     FileRepository
	Downloads DownloadRepository
}

// New creates the repository bundle over the given database handle.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:        db,
		Jobs:      NewJobRepository(db),
		Workflows: NewWorkflowRepository(db),
		Files:     NewFileRepository(db),
		Downloads: NewDownloadRepository(db),
	}
}

// Transaction runs fn with a repository bundle bound to a single
// database transaction. The transaction commits when fn returns nil and
// rolls back otherwise.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
