// Package worker runs the job execution loop: claiming queued jobs,
// compiling their recipes, driving the engine, and publishing the
// resulting artifacts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/clipd/internal/downloader"
	"github.com/jmylchreest/clipd/internal/ffmpeg"
	"github.com/jmylchreest/clipd/internal/media"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/observability"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/storage"
)

// knownExtensions are the artifact extensions a job may legitimately
// produce; anything else falls back to mp4.
var knownExtensions = map[string]bool{
	"mp4":  true,
	"gif":  true,
	"mp3":  true,
	"m4a":  true,
	"wav":  true,
	"flac": true,
}

// Deps are the collaborators a worker needs.
type Deps struct {
	Repos      *repository.Repositories
	Runner     *ffmpeg.Runner
	Prober     *ffmpeg.Prober
	Transmuxer *media.Transmuxer
	Store      storage.ObjectStore
	Downloader downloader.Downloader
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Worker executes jobs one at a time.
type Worker struct {
	id           int
	maxRetries   int
	pollInterval time.Duration
	bucket       string
	workDir      string
	deps         Deps

	mu         sync.Mutex
	currentJob uint
	cancelJob  context.CancelFunc
}

// NewWorker creates one worker.
func NewWorker(id, maxRetries int, pollInterval time.Duration, bucket, workDir string, deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With(slog.Int("worker_id", id))
	return &Worker{
		id:           id,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
		bucket:       bucket,
		workDir:      workDir,
		deps:         deps,
	}
}

// CurrentJobID returns the id of the job the worker is executing, or
// zero when idle.
func (w *Worker) CurrentJobID() uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentJob
}

// CancelCurrent aborts the in-flight job, if any.
func (w *Worker) CancelCurrent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelJob != nil {
		w.cancelJob()
	}
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.deps.Logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			w.deps.Logger.Info("worker stopped")
			return
		}
		if worked := w.runOnce(ctx); !worked {
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// runOnce claims and executes at most one job. Returns false when the
// queue had nothing eligible.
func (w *Worker) runOnce(ctx context.Context) bool {
	dq, err := w.deps.Repos.Jobs.Dequeue(ctx, w.maxRetries)
	if err != nil {
		if ctx.Err() == nil {
			w.deps.Logger.Error("dequeue failed", slog.String("error", err.Error()))
		}
		return false
	}
	if dq == nil {
		return false
	}

	job := dq.Job
	jobCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.currentJob = job.ID
	w.cancelJob = cancel
	w.mu.Unlock()
	defer func() {
		cancel()
		w.mu.Lock()
		w.currentJob = 0
		w.cancelJob = nil
		w.mu.Unlock()
	}()

	if m := w.deps.Metrics; m != nil {
		m.JobsPicked.WithLabelValues(strconv.Itoa(w.id)).Inc()
		m.JobStatus.WithLabelValues(string(models.JobStatusProcessing)).Inc()
	}
	w.deps.Logger.Info("picked job",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("uid", job.UID),
		slog.Int("output_version", job.OutputVersion))

	started := time.Now()
	err = w.process(jobCtx, dq)
	switch {
	case err == nil:
		w.observeProcessing(models.JobStatusCompleted, started)
		w.deps.Logger.Info("job completed", slog.Uint64("job_id", uint64(job.ID)))
	case errors.Is(err, context.Canceled):
		// The cancel path marks the row; nothing further is recorded.
		w.observeProcessing(models.JobStatusCancelled, started)
		w.deps.Logger.Info("job cancelled", slog.Uint64("job_id", uint64(job.ID)))
	default:
		w.observeProcessing(models.JobStatusError, started)
		errText := err.Error()
		var engErr *ffmpeg.EngineError
		if errors.As(err, &engErr) {
			errText = engErr.Stderr
		}
		if ferr := w.deps.Repos.Jobs.Fail(context.WithoutCancel(jobCtx), job.ID, errText); ferr != nil {
			w.deps.Logger.Error("recording job failure failed", slog.String("error", ferr.Error()))
		}
		w.deps.Logger.Error("job failed",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
	return true
}

func (w *Worker) observeProcessing(status models.JobStatus, started time.Time) {
	if m := w.deps.Metrics; m != nil {
		m.ProcessingDuration.WithLabelValues(string(status)).Observe(time.Since(started).Seconds())
		m.JobStatus.WithLabelValues(string(status)).Inc()
	}
}

// process executes one claimed job end to end.
func (w *Worker) process(ctx context.Context, dq *repository.DequeuedJob) error {
	job := dq.Job
	input := job.Input

	// Chained steps carry no input of their own; it is the previous
	// step's artifact, fetched through a presigned URL.
	if input == "" && dq.PreviousOutput != nil && dq.PreviousOutput.Filename != "" {
		resolved, err := w.deps.Store.PresignGet(ctx, w.bucket, dq.PreviousOutput.Filename, 0)
		if err != nil {
			return fmt.Errorf("presigning predecessor output: %w", err)
		}
		input = resolved
	}

	ops := make([]models.Operation, 0, len(job.Action))
	var downloadedName string
	for _, op := range job.Action {
		if op.Op != media.OpExternalDownload {
			ops = append(ops, op)
			continue
		}
		if w.deps.Downloader == nil {
			return errors.New("job requests external download but no downloader is configured")
		}
		opts := media.NewDownloadOptions()
		if len(op.Data) > 0 {
			if err := json.Unmarshal(op.Data, &opts); err != nil {
				return fmt.Errorf("%w: bad external_download payload: %v", models.ErrInvalidRequest, err)
			}
		}
		name, presigned, err := w.deps.Downloader.Download(ctx, input, opts)
		if err != nil {
			return fmt.Errorf("external download: %w", err)
		}
		downloadedName = name
		input = presigned
	}

	// A download-only job publishes the staged file as its output.
	if len(ops) == 0 {
		if downloadedName == "" {
			return fmt.Errorf("%w: job has no operations", models.ErrInvalidRequest)
		}
		output := &models.JobOutput{Filename: downloadedName}
		if err := w.deps.Repos.Jobs.SetOutput(ctx, job.ID, output); err != nil {
			return err
		}
		return w.deps.Repos.Jobs.Complete(ctx, job.ID)
	}

	builder := media.NewBuilder(input).
		WithProber(w.deps.Prober).
		WithWorkDir(w.workDir)
	defer builder.Cleanup()
	if job.Output != nil && job.Output.AudioFormat != "" {
		builder.SetAudioFormat(media.AudioFormat(job.Output.AudioFormat), job.Output.AudioBitrate)
	}
	if err := media.ApplyAll(builder, ops); err != nil {
		return err
	}

	// Concat jobs reference their inputs in the payload; probing the
	// job input would fail and is not needed.
	var info ffmpeg.VideoInfo
	if !job.HasOp("concat") {
		info = w.deps.Prober.Probe(ctx, input)
		if info.Err != nil {
			return fmt.Errorf("probing input: %w", info.Err)
		}
	}

	inv, err := builder.Build(ctx, info)
	if err != nil {
		return err
	}

	data, err := w.deps.Runner.RunBytes(ctx, ffmpeg.RunSpec{
		Args:          inv.Args,
		SourceInput:   input,
		Stdin:         inv.Stdin,
		TotalDuration: firstPositive(inv.TotalDuration, info.Duration),
		Progress: func(pct float64) {
			p := int(pct + 0.5)
			// Progress writes are best effort.
			if perr := w.deps.Repos.Jobs.SetProgress(ctx, job.ID, p); perr != nil {
				w.deps.Logger.Debug("progress update failed", slog.String("error", perr.Error()))
			}
		},
	})
	if err != nil {
		return err
	}

	if inv.Transmux != nil && w.deps.Transmuxer != nil {
		data, err = w.deps.Transmuxer.Transmux(ctx, data, *inv.Transmux)
		if err != nil {
			return err
		}
	}

	kind := "output"
	if builder.Mode() == media.ModeExtractAudio {
		kind = "audio"
	}
	filename := deriveFilename(input, kind, job.UID, job.OutputVersion, inv.OutputExt)

	output := &models.JobOutput{
		Filename:     filename,
		VideoFormat:  inv.VideoFormat,
		AudioFormat:  inv.AudioFormat,
		AudioBitrate: inv.AudioBitrate,
	}
	// Upload before recording: a failed upload must not leave an
	// output record or files row pointing at a missing artifact.
	if err := w.deps.Store.Put(ctx, w.bucket, filename, data); err != nil {
		return err
	}

	err = w.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Jobs.SetOutput(ctx, job.ID, output); err != nil {
			return err
		}
		return tx.Files.CreateFile(ctx, &models.File{
			Name:       filename,
			BucketName: w.bucket,
			FileType:   kind,
		})
	})
	if err != nil {
		return err
	}
	return w.deps.Repos.Jobs.Complete(ctx, job.ID)
}

// deriveFilename builds the artifact name from the input URL's basename
// plus kind, uid, and step version. Unknown extensions fall back to mp4.
func deriveFilename(input, kind, uid string, version int, ext string) string {
	base := "output"
	if input != "" {
		if u, err := url.Parse(input); err == nil && u.Path != "" {
			base = path.Base(u.Path)
		} else {
			base = path.Base(input)
		}
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
	}
	if !knownExtensions[strings.ToLower(ext)] {
		ext = "mp4"
	}
	return fmt.Sprintf("%s_%s_%s_%d.%s", base, kind, uid, version, ext)
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
