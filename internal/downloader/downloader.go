// Package downloader fetches external media through yt-dlp and stages
// it in the object store so jobs can consume it like any other input.
package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/media"
	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/storage"
)

// DefaultTimeout bounds one external download.
const DefaultTimeout = 30 * time.Minute

// Downloader resolves an external source URL into an object-store
// artifact and a presigned URL the worker can feed to the engine.
type Downloader interface {
	Download(ctx context.Context, sourceURL string, opts media.DownloadOptions) (filename, presignedURL string, err error)
}

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	binaryPath string
	workDir    string
	bucket     string
	timeout    time.Duration
	dedup      bool
	store      storage.ObjectStore
	repos      *repository.Repositories
	logger     *slog.Logger
}

// New builds a YTDLP downloader.
func New(cfg config.DownloaderConfig, bucket, workDir string, store storage.ObjectStore, repos *repository.Repositories, logger *slog.Logger) *YTDLP {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{
		binaryPath: binary,
		workDir:    workDir,
		bucket:     bucket,
		timeout:    timeout,
		dedup:      cfg.Dedup,
		store:      store,
		repos:      repos,
		logger:     logger,
	}
}

// mediaInfo is the slice of yt-dlp's info JSON the downloader records.
type mediaInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Download fetches the source, uploads it under a unique artifact name,
// and returns the name together with a presigned GET URL. When dedup is
// on, a previous download of the same (url, quality, format, audio_only)
// tuple is reused without touching the network.
func (d *YTDLP) Download(ctx context.Context, sourceURL string, opts media.DownloadOptions) (string, string, error) {
	if sourceURL == "" {
		return "", "", fmt.Errorf("%w: download source URL is empty", models.ErrInvalidRequest)
	}
	if opts.Quality == "" {
		opts.Quality = "best"
	}

	if d.dedup {
		prev, err := d.repos.Downloads.Find(ctx, sourceURL, opts.Quality, opts.Format, opts.AudioOnly)
		if err != nil {
			return "", "", fmt.Errorf("looking up previous download: %w", err)
		}
		if prev != nil {
			url, perr := d.store.PresignGet(ctx, prev.BucketName, prev.Filename, 0)
			if perr == nil {
				d.logger.Info("reusing previous download",
					slog.String("source", sourceURL),
					slog.String("filename", prev.Filename))
				return prev.Filename, url, nil
			}
			d.logger.Warn("presigning cached download failed, re-downloading",
				slog.String("filename", prev.Filename), slog.String("error", perr.Error()))
		}
	}

	dir, err := os.MkdirTemp(d.workDir, "download-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", "", fmt.Errorf("creating download scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := d.buildArgs(sourceURL, opts, dir)
	d.logger.Info("starting external download",
		slog.String("source", sourceURL),
		slog.String("quality", opts.Quality),
		slog.Bool("audio_only", opts.AudioOnly))

	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		return "", "", fmt.Errorf("download failed: %w: %s", err, lastLine(stderr.String()))
	}

	var info mediaInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		d.logger.Warn("parsing downloader metadata failed", slog.String("error", err.Error()))
	}

	path, err := locateDownloaded(dir)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading downloaded file: %w", err)
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("downloaded file is empty: %s", path)
	}

	filename := fmt.Sprintf("external_%s_%s", uuid.NewString()[:12], filepath.Base(path))
	if err := d.store.Put(ctx, d.bucket, filename, data); err != nil {
		return "", "", err
	}
	url, err := d.store.PresignGet(ctx, d.bucket, filename, 0)
	if err != nil {
		return "", "", err
	}

	if err := d.record(ctx, sourceURL, filename, info, opts); err != nil {
		// The artifact is already usable; losing the bookkeeping row
		// only costs future dedup hits.
		d.logger.Warn("recording download failed", slog.String("error", err.Error()))
	}

	d.logger.Info("external download staged",
		slog.String("filename", filename),
		slog.Int("bytes", len(data)))
	return filename, url, nil
}

func (d *YTDLP) buildArgs(sourceURL string, opts media.DownloadOptions, dir string) []string {
	args := []string{
		"--no-part",
		"--no-playlist",
		"--no-warnings",
		"--dump-json",
		"--no-simulate",
		"-o", filepath.Join(dir, "media.%(ext)s"),
	}
	switch {
	case opts.AudioOnly:
		args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", "mp3")
	case opts.Format != "":
		args = append(args, "-f", fmt.Sprintf(
			"bestvideo[ext=%s]+bestaudio[ext=%s]/best[ext=%s]/best",
			opts.Format, opts.Format, opts.Format))
	case opts.Quality != "" && opts.Quality != "best":
		if height, ok := strings.CutSuffix(opts.Quality, "p"); ok {
			args = append(args, "-f", fmt.Sprintf(
				"bestvideo[height<=%s]+bestaudio/best[height<=%s]", height, height))
		} else {
			args = append(args, "-f", opts.Quality)
		}
	}
	return append(args, sourceURL)
}

func (d *YTDLP) record(ctx context.Context, sourceURL, filename string, info mediaInfo, opts media.DownloadOptions) error {
	return d.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		file := &models.File{
			Name:       filename,
			BucketName: d.bucket,
			FileType:   "download",
		}
		if err := tx.Files.CreateFile(ctx, file); err != nil {
			return err
		}
		return tx.Downloads.Create(ctx, &models.Download{
			ExternalURL: sourceURL,
			RemoteID:    info.ID,
			Title:       info.Title,
			Filename:    filename,
			BucketName:  d.bucket,
			FileID:      file.ID,
			Quality:     opts.Quality,
			Format:      opts.Format,
			AudioOnly:   opts.AudioOnly,
		})
	})
}

// locateDownloaded finds the single non-empty media file yt-dlp left in
// the scratch directory.
func locateDownloaded(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading download scratch dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil || fi.Size() == 0 {
			continue
		}
		return filepath.Join(dir, entry.Name()), nil
	}
	return "", errors.New("downloader produced no output file")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
