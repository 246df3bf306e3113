package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// repairState tracks where a repair is in its lifecycle, for logging.
type repairState string

const (
	repairStateIdle      repairState = "idle"
	repairStatePriming   repairState = "priming"
	repairStateDraining  repairState = "draining"
	repairStateCompleted repairState = "completed"
	repairStateStalled   repairState = "stalled"
)

// RepairDispatcher drives the replication pipeline to force
// re-synchronization of a set of post ids. It owns the drain loop and the
// pacing-settings override: the pipeline's settings are captured before the
// repair, replaced with a minimum-latency override, and restored on every
// exit path, including failures mid-drain.
//
// The pipeline is a process-wide singleton with one outbound queue, so the
// dispatcher refuses to start while another full-sync cycle is active.
type RepairDispatcher struct {
	pipeline repository.ReplicationPipeline
	logger   *zap.Logger

	// afterBatch runs between drain steps. Callers use it for operational
	// concerns such as bounding resident memory during long drains; the
	// dispatcher does not own what it does.
	afterBatch func(ctx context.Context)
}

// NewRepairDispatcher creates a repair dispatcher. afterBatch may be nil.
func NewRepairDispatcher(pipeline repository.ReplicationPipeline, afterBatch func(ctx context.Context), logger *zap.Logger) *RepairDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepairDispatcher{
		pipeline:   pipeline,
		afterBatch: afterBatch,
		logger:     logger,
	}
}

// Repair re-drives the replication pipeline for the given ids and drains
// the outbound queue until empty. It returns nil on completion,
// ErrAlreadyRunning when another cycle is active (settings untouched),
// ErrSyncUnavailable when the cycle cannot be started, or a *DrainError
// when a send step fails or the queue was empty before anything was sent.
func (d *RepairDispatcher) Repair(ctx context.Context, ids []int64) error {
	if d.pipeline.IsFullSyncActive() && !d.pipeline.IsFullSyncFinished() {
		d.logger.Warn("Repair refused, full sync already in flight", zap.Int("requested", len(ids)))
		return entity.ErrAlreadyRunning
	}

	d.logState(repairStateIdle, repairStatePriming, len(ids))

	guard := newSettingsGuard(d.pipeline)
	defer guard.restore(d.logger)

	d.pipeline.SetSettings(guard.captured.RepairOverride())

	if err := d.pipeline.StartFullSync(ctx, ids); err != nil {
		d.logState(repairStatePriming, repairStateStalled, len(ids))
		return fmt.Errorf("%w: %v", entity.ErrSyncUnavailable, err)
	}

	d.logState(repairStatePriming, repairStateDraining, len(ids))
	return d.drain(ctx)
}

// drain repeatedly invokes one send step until the queue empties or a step
// fails. Queue-empty on the very first step means nothing was ever queued,
// which is reported as an error rather than a trivially successful repair.
func (d *RepairDispatcher) drain(ctx context.Context) error {
	for step := 0; ; step++ {
		progress, err := d.pipeline.SendNextBatch(ctx)
		if err != nil {
			d.logState(repairStateDraining, repairStateStalled, step)
			if drainErr, ok := entity.AsDrainError(err); ok {
				return drainErr
			}
			return entity.NewDrainError("send_failed", err.Error())
		}

		if progress.QueueEmpty {
			if step == 0 {
				d.logState(repairStateDraining, repairStateStalled, step)
				return entity.NewDrainError("empty_queue", "queue was empty before anything was sent")
			}
			d.logState(repairStateDraining, repairStateCompleted, step)
			return nil
		}

		d.logger.Debug("Drain step completed",
			zap.Int("step", step),
			zap.Int("sent", progress.Sent))

		if d.afterBatch != nil {
			d.afterBatch(ctx)
		}
	}
}

func (d *RepairDispatcher) logState(from, to repairState, n int) {
	d.logger.Info("Repair state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("n", n))
}

// settingsGuard captures the pipeline's ambient settings and restores them
// exactly once, so restoration is structurally guaranteed by defer rather
// than paired manually at every call site.
type settingsGuard struct {
	pipeline repository.ReplicationPipeline
	captured entity.ReplicationSettings
	restored bool
}

func newSettingsGuard(pipeline repository.ReplicationPipeline) *settingsGuard {
	return &settingsGuard{
		pipeline: pipeline,
		captured: pipeline.GetSettings(),
	}
}

func (g *settingsGuard) restore(logger *zap.Logger) {
	if g.restored {
		return
	}
	g.pipeline.SetSettings(g.captured)
	g.restored = true
	logger.Debug("Replication settings restored")
}
