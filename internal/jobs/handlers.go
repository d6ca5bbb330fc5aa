package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/media"
)

// Exporter produces a backup document
type Exporter interface {
	Export(ctx context.Context) (backup.Document, error)
}

// Handlers runs jobs in the worker process
type Handlers struct {
	Backups Exporter
	Storage media.Storage
	Log     zerolog.Logger
	Now     func() time.Time
}

// Register mounts every handler on mux
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskBackupExport, h.HandleBackupExport)
	mux.HandleFunc(TaskMediaRemove, h.HandleMediaRemove)
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleBackupExport exports all content and stores it in the backups bucket
func (h *Handlers) HandleBackupExport(ctx context.Context, t *asynq.Task) error {
	var p BackupExportPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			h.Log.Error().Err(err).Msg("[backup] bad payload")
			return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	start := time.Now()

	err := h.exportAndStore(ctx)
	return h.finish("backup", err, start, zerolog.Dict().Str("requested_by", p.RequestedBy).Bool("scheduled", p.Scheduled))
}

func (h *Handlers) exportAndStore(ctx context.Context) error {
	doc, err := h.Backups.Export(ctx)
	if err != nil {
		return err
	}
	raw, err := backup.Marshal(doc)
	if err != nil {
		return err
	}
	name := backup.FileName(h.now())
	if _, err := h.Storage.Upload(ctx, media.BackupBucket, name, "application/json", bytes.NewReader(raw)); err != nil {
		return err
	}
	h.Log.Info().Str("object", name).Interface("rows", doc.Rows()).Msg("[backup] stored")
	return nil
}

// HandleMediaRemove deletes storage objects left behind by deleted content
func (h *Handlers) HandleMediaRemove(ctx context.Context, t *asynq.Task) error {
	var p MediaRemovePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.Bucket == "" {
		h.Log.Error().Err(err).Msg("[media] bad payload")
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}
	start := time.Now()
	err := h.Storage.Remove(ctx, p.Bucket, p.Paths)
	return h.finish("media", err, start, zerolog.Dict().Str("bucket", p.Bucket).Strs("paths", p.Paths))
}

// finish logs the outcome and decides whether asynq retries
func (h *Handlers) finish(job string, err error, start time.Time, fields *zerolog.Event) error {
	duration := time.Since(start)
	if err == nil {
		h.Log.Info().Dict("job", fields).Dur("duration", duration).Msgf("[%s] done", job)
		return nil
	}
	if IsRetryable(err) {
		h.Log.Warn().Err(err).Dict("job", fields).Dur("duration", duration).Msgf("[%s] retryable error", job)
		return err
	}
	h.Log.Error().Err(err).Dict("job", fields).Dur("duration", duration).Msgf("[%s] permanent error (dropping job)", job)
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// IsRetryable determines if an error should trigger a job retry
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, media.ErrDisabled) || errors.Is(err, context.Canceled) {
		return false
	}
	errStr := strings.ToLower(err.Error())

	// Network/connectivity issues and an open circuit breaker
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "circuit breaker is open") {
		return true
	}

	// Rate limiting
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	// Temporary server errors
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Everything else (auth failures, bad data, etc.) - don't retry
	return false
}
