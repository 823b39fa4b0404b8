// Package ffmpeg drives the external media engine: spawning ffmpeg
// subprocesses, streaming their output, parsing progress, and probing
// media metadata with ffprobe.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultChunkSize is the stdout read size used when none is configured.
const DefaultChunkSize = 8192

// stderrTailLines is how many trailing stderr lines are kept for error
// reporting.
const stderrTailLines = 100

// EngineError is returned when the engine exits non-zero. It carries
// the tail of the process's stderr output.
type EngineError struct {
	ExitCode int
	Stderr   string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Result describes a finished engine invocation.
type Result struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	ProcessingTime time.Duration
}

// RunSpec describes one engine invocation.
type RunSpec struct {
	// Args is the argument vector excluding the binary name. The runner
	// appends the progress and stdout-output flags before spawning.
	Args []string

	// SourceInput is the primary input URL; used to probe the total
	// duration when TotalDuration is not set.
	SourceInput string

	// Stdin, when non-nil, is written to the process's standard input
	// on a concurrent goroutine.
	Stdin []byte

	// TotalDuration in seconds, used to scale progress. Zero means
	// probe SourceInput.
	TotalDuration float64

	// Progress receives percentages in [0,100] as the engine reports
	// out_time_ms records. May be nil.
	Progress func(float64)

	// OnComplete is invoked after a successful run. May be nil.
	OnComplete func(Result)
}

// Runner spawns engine subprocesses and streams their output.
type Runner struct {
	binaryPath string
	chunkSize  int
	prober     *Prober
	logger     *slog.Logger
}

// NewRunner creates a Runner for the given engine binary.
func NewRunner(binaryPath string, chunkSize int, prober *Prober, logger *slog.Logger) *Runner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{binaryPath: binaryPath, chunkSize: chunkSize, prober: prober, logger: logger}
}

// RunBytes runs the engine and gathers its standard output into memory.
func (r *Runner) RunBytes(ctx context.Context, spec RunSpec) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.RunTo(ctx, spec, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunTo runs the engine, writing its standard output to w in fixed-size
// chunks as they arrive. stdin feeding, stderr progress parsing, and
// stdout streaming proceed concurrently; backpressure from w throttles
// the child through its stdout pipe.
func (r *Runner) RunTo(ctx context.Context, spec RunSpec, w io.Writer) error {
	total := spec.TotalDuration
	if total <= 0 && spec.SourceInput != "" && r.prober != nil {
		if info := r.prober.Probe(ctx, spec.SourceInput); info.Err == nil {
			total = info.Duration
		}
	}

	args := append(append([]string{}, spec.Args...), "-progress", "pipe:2", "pipe:1")
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)

	var stdin io.WriteCloser
	var err error
	if spec.Stdin != nil {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("opening stdin pipe: %w", err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	monitor := NewProcessMonitor(cmd.Process.Pid)
	monitor.Start()
	defer monitor.Stop()

	var wg sync.WaitGroup
	var stdinErr error
	if stdin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stdin.Close()
			if _, werr := stdin.Write(spec.Stdin); werr != nil {
				stdinErr = fmt.Errorf("writing stdin: %w", werr)
			}
		}()
	}

	tail := newTailBuffer(stderrTailLines)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.Add(line)
			if spec.Progress == nil || total <= 0 {
				continue
			}
			if micros, ok := parseOutTime(line); ok {
				pct := float64(micros) / 1e6 / total * 100
				if pct > 100 {
					pct = 100
				}
				spec.Progress(pct)
			}
		}
	}()

	buf := make([]byte, r.chunkSize)
	var copyErr error
	for {
		n, rerr := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				copyErr = fmt.Errorf("writing output: %w", werr)
				break
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			copyErr = fmt.Errorf("reading engine output: %w", rerr)
			break
		}
	}

	wg.Wait()
	waitErr := cmd.Wait()
	finished := time.Now()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if stdinErr != nil {
		return stdinErr
	}
	if copyErr != nil {
		return copyErr
	}
	if waitErr != nil {
		code := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return &EngineError{ExitCode: code, Stderr: tail.String()}
	}

	if spec.OnComplete != nil {
		spec.OnComplete(Result{
			StartedAt:      started,
			FinishedAt:     finished,
			ProcessingTime: finished.Sub(started),
		})
	}
	return nil
}

// parseOutTime extracts the microsecond value from an out_time_ms
// progress record.
func parseOutTime(line string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "out_time_ms=")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// tailBuffer keeps the last n lines added to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{lines: make([]string, n)}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// String returns the retained lines joined by newlines, oldest first.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	if t.full {
		out = append(out, t.lines[t.next:]...)
	}
	out = append(out, t.lines[:t.next]...)
	return strings.Join(out, "\n")
}
