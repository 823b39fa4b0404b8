package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/clipd/internal/models"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

// Create creates a new job.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// CreateBatch inserts multiple jobs in one statement.
func (r *jobRepo) CreateBatch(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(jobs).Error; err != nil {
		return fmt.Errorf("creating jobs: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByUID retrieves all jobs of an execution ordered by output version.
func (r *jobRepo) GetByUID(ctx context.Context, uid string) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).Order("output_version ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting jobs by UID: %w", err)
	}
	return jobs, nil
}

// List retrieves jobs matching the given options, newest last, paginated
// by monotonic id.
func (r *jobRepo) List(ctx context.Context, opts ListOptions) ([]*models.Job, error) {
	q := r.db.WithContext(ctx).Model(&models.Job{})
	if opts.UID != "" {
		q = q.Where("uid = ?", opts.UID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.LastID > 0 {
		q = q.Where("id > ?", opts.LastID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var jobs []*models.Job
	if err := q.Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// Update saves the full job record.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// Delete removes a job by ID.
func (r *jobRepo) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Job{}, id).Error; err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	return nil
}

// dequeueEligible is the shared predicate for claimable jobs: queued,
// within the retry budget, and with a completed predecessor (or at the
// head of its chain).
const dequeueEligible = `
    status = 'queued'
    AND retries <= ?
    AND (
        output_version = 0
        OR EXISTS (
            SELECT 1 FROM jobs prev
            WHERE prev.uid = jobs.uid
              AND prev.output_version = jobs.output_version - 1
              AND prev.status = 'completed'
        )
    )`

// dequeuePostgres claims the oldest eligible job in a single statement.
// The CTE locks the candidate row with SKIP LOCKED so concurrent
// workers never claim the same job; the outer UPDATE flips it to
// processing and returns the row plus the predecessor output.
const dequeuePostgres = `
WITH next_job AS (
    SELECT id FROM jobs
    WHERE` + dequeueEligible + `
    ORDER BY id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status = 'processing', updated_at = NOW()
FROM next_job
WHERE jobs.id = next_job.id
RETURNING jobs.id, jobs.uid, jobs.created_at, jobs.updated_at,
          jobs.output_version, jobs.input, jobs.output, jobs.action,
          jobs.status, jobs.retries, jobs.error, jobs.progress,
          (SELECT prev.output FROM jobs prev
           WHERE prev.uid = jobs.uid
             AND prev.output_version = jobs.output_version - 1) AS previous_output`

// dequeueRow receives the RETURNING projection of the postgres dequeue.
type dequeueRow struct {
	ID             uint              `gorm:"column:id"`
	UID            string            `gorm:"column:uid"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at"`
	OutputVersion  int               `gorm:"column:output_version"`
	Input          string            `gorm:"column:input"`
	Output         *models.JobOutput `gorm:"column:output"`
	Action         models.Operations `gorm:"column:action"`
	Status         models.JobStatus  `gorm:"column:status"`
	Retries        int               `gorm:"column:retries"`
	Error          string            `gorm:"column:error"`
	Progress       int               `gorm:"column:progress"`
	PreviousOutput *models.JobOutput `gorm:"column:previous_output"`
}

// Dequeue atomically claims the oldest eligible queued job. On postgres
// this is one CTE statement; the sqlite variant used in tests runs the
// same predicate inside a transaction (sqlite has a single writer, so
// SKIP LOCKED is unnecessary).
func (r *jobRepo) Dequeue(ctx context.Context, maxRetries int) (*DequeuedJob, error) {
	if r.db.Dialector.Name() == "postgres" {
		return r.dequeuePostgres(ctx, maxRetries)
	}
	return r.dequeueTx(ctx, maxRetries)
}

func (r *jobRepo) dequeuePostgres(ctx context.Context, maxRetries int) (*DequeuedJob, error) {
	var rows []dequeueRow
	if err := r.db.WithContext(ctx).Raw(dequeuePostgres, maxRetries).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	job := &models.Job{
		BaseModel: models.BaseModel{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		UID:           row.UID,
		OutputVersion: row.OutputVersion,
		Input:         row.Input,
		Action:        row.Action,
		Output:        row.Output,
		Status:        row.Status,
		Retries:       row.Retries,
		Error:         row.Error,
		Progress:      row.Progress,
	}
	return &DequeuedJob{Job: job, PreviousOutput: row.PreviousOutput}, nil
}

func (r *jobRepo) dequeueTx(ctx context.Context, maxRetries int) (*DequeuedJob, error) {
	var result *DequeuedJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		err := tx.Where(dequeueEligible, maxRetries).Order("id ASC").First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("selecting eligible job: %w", err)
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.JobStatusQueued).
			Update("status", models.JobStatusProcessing)
		if res.Error != nil {
			return fmt.Errorf("claiming job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		job.Status = models.JobStatusProcessing

		dq := &DequeuedJob{Job: &job}
		if job.OutputVersion > 0 {
			var prev models.Job
			err := tx.Where("uid = ? AND output_version = ?", job.UID, job.OutputVersion-1).First(&prev).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("loading predecessor: %w", err)
			}
			if err == nil {
				dq.PreviousOutput = prev.Output
			}
		}
		result = dq
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetProgress updates the progress column, clamped to 0..100.
func (r *jobRepo) SetProgress(ctx context.Context, id uint, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("progress", progress).Error; err != nil {
		return fmt.Errorf("setting job progress: %w", err)
	}
	return nil
}

// SetOutput writes the output record of a job.
func (r *jobRepo) SetOutput(ctx context.Context, id uint, output *models.JobOutput) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("output", output).Error; err != nil {
		return fmt.Errorf("setting job output: %w", err)
	}
	return nil
}

// Complete transitions a job to completed with full progress.
func (r *jobRepo) Complete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.JobStatusCompleted,
			"progress": 100,
		}).Error; err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// Cancel transitions a job to cancelled.
func (r *jobRepo) Cancel(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("status", models.JobStatusCancelled).Error; err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	return nil
}

// Fail transitions a job to error, recording the error text and
// incrementing the retry counter.
func (r *jobRepo) Fail(ctx context.Context, id uint, errText string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  models.JobStatusError,
			"error":   errText,
			"retries": gorm.Expr("retries + 1"),
		}).Error; err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

// Requeue resets a terminal job back to queued, clearing its error and
// retry count so the next dequeue picks it up normally.
func (r *jobRepo) Requeue(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.JobStatusQueued,
			"error":    "",
			"retries":  0,
			"progress": 0,
		}).Error; err != nil {
		return fmt.Errorf("requeuing job: %w", err)
	}
	return nil
}

// CountByStatus returns the number of jobs per status.
func (r *jobRepo) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	type row struct {
		Status models.JobStatus
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", err)
	}
	counts := make(map[models.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
