package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/clipd/internal/ffmpeg"
)

// DefaultTransmuxTimeout bounds one delivery pass.
const DefaultTransmuxTimeout = 60 * time.Minute

// Transmuxer converts gathered intermediate bytes into the delivery
// container. Faststart MP4 needs a seekable output, so this pass works
// through scratch files rather than pipes.
type Transmuxer struct {
	binaryPath string
	workDir    string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewTransmuxer creates a Transmuxer using the given engine binary.
// An empty workDir means the system temp directory.
func NewTransmuxer(binaryPath, workDir string, logger *slog.Logger) *Transmuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transmuxer{
		binaryPath: binaryPath,
		workDir:    workDir,
		timeout:    DefaultTransmuxTimeout,
		logger:     logger,
	}
}

// WithTimeout returns the transmuxer with a custom pass timeout.
func (t *Transmuxer) WithTimeout(timeout time.Duration) *Transmuxer {
	if timeout > 0 {
		t.timeout = timeout
	}
	return t
}

// Transmux writes data to a scratch file, re-encodes it into a
// faststart MP4, and returns the resulting bytes. The scratch directory
// is removed on every exit path.
func (t *Transmuxer) Transmux(ctx context.Context, data []byte, opts ConvertToPlatformOptions) ([]byte, error) {
	dir, err := os.MkdirTemp(t.workDir, "transmux-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("creating transmux scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "intermediate.mkv")
	outPath := filepath.Join(dir, "delivery.mp4")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing intermediate file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inPath,
		"-c:v", opts.Codec,
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-c:a", opts.AudioCodec,
	}
	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}
	if opts.Scale != "" {
		args = append(args, "-vf", "scale="+opts.Scale)
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4", outPath)

	t.logger.Debug("running delivery transmux",
		slog.String("platform", opts.Platform),
		slog.String("codec", opts.Codec),
		slog.Int("input_bytes", len(data)))

	cmd := exec.CommandContext(ctx, t.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ffmpeg.EngineError{
			ExitCode: exitCode,
			Stderr:   tailLines(stderr.String(), 100),
		}
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading delivery file: %w", err)
	}
	return out, nil
}

// tailLines keeps the last n lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
