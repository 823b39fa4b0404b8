package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/models"
)

// stopAttempts is how many times Stop waits for a worker before giving
// up on it.
const stopAttempts = 5

// stopWait is how long each stop attempt waits.
const stopWait = 2 * time.Second

// depthSampleInterval is how often the queue-depth gauge is refreshed.
const depthSampleInterval = 15 * time.Second

// Pool runs a fixed set of workers.
type Pool struct {
	workers       []*Worker
	deps          Deps
	cancels       []context.CancelFunc
	done          []chan struct{}
	samplerCancel context.CancelFunc
	samplerDone   chan struct{}
	logger        *slog.Logger
	running       bool
}

// NewPool builds a pool of cfg.Count workers sharing the given
// collaborators.
func NewPool(cfg config.WorkerConfig, bucket, workDir string, deps Deps) *Pool {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	count := cfg.Count
	if count <= 0 {
		count = 1
	}
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(i+1, cfg.MaxRetries, cfg.PollInterval, bucket, workDir, deps)
	}
	return &Pool{workers: workers, deps: deps, logger: logger}
}

// Start spawns all worker loops. Calling Start on a running pool is a
// no-op.
func (p *Pool) Start(ctx context.Context) {
	if p.running {
		return
	}
	p.running = true
	p.cancels = make([]context.CancelFunc, len(p.workers))
	p.done = make([]chan struct{}, len(p.workers))
	for i, w := range p.workers {
		workerCtx, cancel := context.WithCancel(ctx)
		p.cancels[i] = cancel
		done := make(chan struct{})
		p.done[i] = done
		go func(w *Worker) {
			defer close(done)
			w.Run(workerCtx)
		}(w)
	}
	p.samplerCancel = nil
	p.samplerDone = nil
	if p.deps.Metrics != nil && p.deps.Repos != nil {
		samplerCtx, cancel := context.WithCancel(ctx)
		p.samplerCancel = cancel
		done := make(chan struct{})
		p.samplerDone = done
		go func() {
			defer close(done)
			p.sampleQueueDepth(samplerCtx)
		}()
	}
	p.logger.Info("worker pool started", slog.Int("workers", len(p.workers)))
}

// sampleQueueDepth refreshes the per-status depth gauge until the pool
// context ends. Absent statuses are reported as zero so the gauge does
// not hold stale values.
func (p *Pool) sampleQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(depthSampleInterval)
	defer ticker.Stop()
	for {
		p.recordQueueDepth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) recordQueueDepth(ctx context.Context) {
	counts, err := p.deps.Repos.Jobs.CountByStatus(ctx)
	if err != nil {
		p.logger.Debug("queue depth sample failed", slog.String("error", err.Error()))
		return
	}
	for _, status := range models.JobStatuses {
		p.deps.Metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// Stop cancels every worker and waits for termination, retrying up to
// stopAttempts times per worker before giving up on it.
func (p *Pool) Stop() {
	if !p.running {
		return
	}
	for _, cancel := range p.cancels {
		cancel()
	}
	for i, done := range p.done {
		stopped := false
		for attempt := 1; attempt <= stopAttempts && !stopped; attempt++ {
			select {
			case <-done:
				stopped = true
			case <-time.After(stopWait):
				p.logger.Warn("worker still running",
					slog.Int("worker_id", i+1),
					slog.Int("attempt", attempt))
				p.workers[i].CancelCurrent()
			}
		}
		if !stopped {
			p.logger.Error("giving up waiting for worker", slog.Int("worker_id", i+1))
		}
	}
	if p.samplerCancel != nil {
		p.samplerCancel()
		<-p.samplerDone
	}
	p.running = false
	p.logger.Info("worker pool stopped")
}

// Cancel aborts the in-flight job with the given id. When no worker
// holds it, the call is a no-op: a job that is still queued will never
// run once its row leaves the queued status.
func (p *Pool) Cancel(jobID uint) bool {
	for _, w := range p.workers {
		if w.CurrentJobID() == jobID {
			w.CancelCurrent()
			p.logger.Info("cancelled in-flight job", slog.Uint64("job_id", uint64(jobID)))
			return true
		}
	}
	return false
}
