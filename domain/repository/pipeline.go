package repository

import (
	"context"

	"github.com/contentplane/index-reconciler/domain/entity"
)

// BatchProgress is the outcome of one replication send step.
type BatchProgress struct {
	// Sent is how many documents the step flushed to the outbound queue.
	Sent int
	// QueueEmpty reports the benign "nothing left to send" condition.
	QueueEmpty bool
}

// ReplicationPipeline is the driver-side contract of the asynchronous
// mechanism that propagates post changes to the search index. The pipeline
// itself lives outside this service; the reconciler only drives it to force
// re-synchronization. It is a process-wide singleton with one outbound
// queue, so at most one full-sync cycle may be in flight at a time.
type ReplicationPipeline interface {
	// IsFullSyncActive reports whether a full-sync cycle has been started.
	IsFullSyncActive() bool

	// IsFullSyncFinished reports whether the started cycle has drained.
	IsFullSyncFinished() bool

	// StartFullSync stages the given identifier set for re-indexing.
	StartFullSync(ctx context.Context, ids []int64) error

	// SendNextBatch flushes one batch from the outbound queue. It reports
	// progress, the benign queue-empty condition, or a hard error.
	SendNextBatch(ctx context.Context) (BatchProgress, error)

	// GetSettings returns the pipeline's current pacing settings.
	GetSettings() entity.ReplicationSettings

	// SetSettings replaces the pipeline's pacing settings.
	SetSettings(settings entity.ReplicationSettings)
}
