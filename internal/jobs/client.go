package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Enqueuer is implemented by *asynq.Client
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewBackupExportTask(p BackupExportPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal backup payload: %w", err)
	}
	return asynq.NewTask(TaskBackupExport, payload, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

func NewMediaRemoveTask(p MediaRemovePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal media payload: %w", err)
	}
	return asynq.NewTask(TaskMediaRemove, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// Client enqueues jobs from the API process
type Client struct {
	enq Enqueuer
	log zerolog.Logger
}

func NewClient(enq Enqueuer, log zerolog.Logger) *Client {
	return &Client{enq: enq, log: log}
}

// EnqueueBackup queues an export; the worker uploads it to the backups bucket
func (c *Client) EnqueueBackup(ctx context.Context, requestedBy string) (string, error) {
	task, err := NewBackupExportTask(BackupExportPayload{RequestedBy: requestedBy})
	if err != nil {
		return "", err
	}
	info, err := c.enq.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue backup: %w", err)
	}
	c.log.Info().Str("task_id", info.ID).Str("requested_by", requestedBy).Msg("backup job queued")
	return info.ID, nil
}

// EnqueueMediaRemove queues deletion of storage objects. Failures are
// logged; an orphaned object is harmless.
func (c *Client) EnqueueMediaRemove(ctx context.Context, bucket string, paths []string) {
	if len(paths) == 0 {
		return
	}
	task, err := NewMediaRemoveTask(MediaRemovePayload{Bucket: bucket, Paths: paths})
	if err == nil {
		_, err = c.enq.EnqueueContext(ctx, task)
	}
	if err != nil {
		c.log.Error().Err(err).Str("bucket", bucket).Strs("paths", paths).Msg("failed to queue media removal")
		return
	}
	c.log.Info().Str("bucket", bucket).Strs("paths", paths).Msg("media removal queued")
}
