package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/clipd/internal/models"
	"github.com/jmylchreest/clipd/internal/service"
)

// ProgressHandler streams job updates over SSE. Huma does not stream,
// so this registers directly on the chi router.
type ProgressHandler struct {
	service           *service.ProgressService
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewProgressHandler creates a progress handler.
func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{
		service:           svc,
		heartbeatInterval: 30 * time.Second,
		logger:            slog.Default(),
	}
}

// SetHeartbeatInterval overrides the SSE heartbeat period (for tests).
func (h *ProgressHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// WithLogger sets a custom logger.
func (h *ProgressHandler) WithLogger(logger *slog.Logger) *ProgressHandler {
	h.logger = logger
	return h
}

// RegisterSSE registers the status stream on a chi-style router.
func (h *ProgressHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/edits/status", h.handleStatus)
}

// handleStatus streams job_update events for every job of the
// requested uid until all jobs are terminal or the client disconnects.
func (h *ProgressHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, "uid query parameter is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The poller runs on its own goroutine so heartbeats keep flowing
	// between updates.
	events := make(chan *models.Job, 16)
	done := make(chan error, 1)
	go func() {
		done <- h.service.Stream(ctx, uid, func(job *models.Job) error {
			select {
			case events <- job:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Debug("initial SSE flush failed", slog.Any("error", err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected",
					slog.Any("error", err))
				return
			}
		case job := <-events:
			if err := h.writeJobEvent(w, rc, job); err != nil {
				return
			}
		case err := <-done:
			// Drain updates emitted just before the stream ended so
			// terminal states always reach the client.
			for {
				select {
				case job := <-events:
					if werr := h.writeJobEvent(w, rc, job); werr != nil {
						return
					}
				default:
					if err != nil && err != context.Canceled {
						h.logger.Debug("progress stream ended",
							slog.String("uid", uid), slog.Any("error", err))
					}
					return
				}
			}
		}
	}
}

func (h *ProgressHandler) writeJobEvent(w http.ResponseWriter, rc *http.ResponseController, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		h.logger.Error("marshaling job update", slog.Any("error", err))
		return err
	}
	if _, err := fmt.Fprintf(w, "event: job_update\ndata: %s\n\n", data); err != nil {
		h.logger.Debug("writing SSE event failed", slog.Any("error", err))
		return err
	}
	if err := rc.Flush(); err != nil {
		h.logger.Debug("event flush failed, client likely disconnected",
			slog.Any("error", err))
		return err
	}
	return nil
}
