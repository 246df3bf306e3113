package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
	"github.com/contentplane/index-reconciler/domain/service"
	"github.com/contentplane/index-reconciler/pkg/metrics"
)

// DefaultBatchSize balances bulk-query payload size against latency.
const DefaultBatchSize = 100

// IndexSummary compares aggregate counts between the primary store and the
// search index, grouped by post type and status.
type IndexSummary struct {
	GeneratedAt time.Time                                        `json:"generated_at"`
	Primary     map[entity.PostType]map[entity.PostStatus]int64 `json:"primary"`
	Indexed     map[entity.PostType]map[entity.PostStatus]int64 `json:"indexed"`
}

// SummaryCache caches the cross-store summary between requests.
type SummaryCache interface {
	GetSummary(ctx context.Context) (*IndexSummary, bool)
	SetSummary(ctx context.Context, summary *IndexSummary) error
}

// AuditOrchestrator streams the primary-store population, batches it, and
// submits each batch to the auditor, folding failures into a single report.
// Batch-level errors (bad input, malformed envelope) abort the run and
// propagate; per-post failures are collected and returned as data.
type AuditOrchestrator struct {
	posts      repository.PostRepository
	auditor    *service.Auditor
	dispatcher *service.RepairDispatcher
	store      repository.DocumentStore
	cache      SummaryCache
	collector  *metrics.Collector
	batchSize  int
	logger     *zap.Logger
}

// NewAuditOrchestrator creates an orchestrator. cache and collector may be
// nil; batchSize falls back to DefaultBatchSize when not positive.
func NewAuditOrchestrator(
	posts repository.PostRepository,
	store repository.DocumentStore,
	auditor *service.Auditor,
	dispatcher *service.RepairDispatcher,
	cache SummaryCache,
	collector *metrics.Collector,
	batchSize int,
	logger *zap.Logger,
) *AuditOrchestrator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditOrchestrator{
		posts:      posts,
		store:      store,
		auditor:    auditor,
		dispatcher: dispatcher,
		cache:      cache,
		collector:  collector,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// BatchSize returns the configured batch size.
func (o *AuditOrchestrator) BatchSize() int {
	return o.batchSize
}

// Run audits every post matching the filter and returns the aggregated
// report. Posts created during the run are not guaranteed inclusion.
func (o *AuditOrchestrator) Run(ctx context.Context, filter repository.PostFilter) (*entity.AuditReport, error) {
	started := time.Now()
	report := &entity.AuditReport{RunID: uuid.NewString()}

	o.logger.Info("Audit run started",
		zap.String("run_id", report.RunID),
		zap.Int("batch_size", o.batchSize))

	it := o.posts.Stream(ctx, filter)
	batch := make([]*entity.Post, 0, o.batchSize)

	for {
		post, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if post == nil {
			break
		}
		batch = append(batch, post)
		if len(batch) == o.batchSize {
			if err := o.flush(ctx, report, batch); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}

	// Partial final batch goes through the same path.
	if len(batch) > 0 {
		if err := o.flush(ctx, report, batch); err != nil {
			return nil, err
		}
	}

	if o.collector != nil {
		o.collector.AuditDuration.Observe(time.Since(started).Seconds())
	}

	o.logger.Info("Audit run finished",
		zap.String("run_id", report.RunID),
		zap.Int("passed", report.Passed),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("elapsed", time.Since(started)))

	return report, nil
}

// RunAndRepair audits and then feeds every failing id to the repair
// dispatcher. The report is returned even when the repair step fails.
func (o *AuditOrchestrator) RunAndRepair(ctx context.Context, filter repository.PostFilter) (*entity.AuditReport, error) {
	report, err := o.Run(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(report.Failures) == 0 {
		return report, nil
	}

	repairErr := o.dispatcher.Repair(ctx, report.FailedIDs())
	if o.collector != nil {
		outcome := "completed"
		if repairErr != nil {
			outcome = "failed"
		}
		o.collector.RepairsTotal.WithLabelValues(outcome).Inc()
	}
	if repairErr != nil {
		o.logger.Error("Repair after audit failed",
			zap.String("run_id", report.RunID),
			zap.Error(repairErr))
		return report, repairErr
	}
	return report, nil
}

// Summary returns aggregate counts from both stores for the reporting
// surface. Index-side failures degrade to empty counts rather than errors.
func (o *AuditOrchestrator) Summary(ctx context.Context) (*IndexSummary, error) {
	if o.cache != nil {
		if cached, ok := o.cache.GetSummary(ctx); ok {
			return cached, nil
		}
	}

	primary, err := o.posts.CountByTypeStatus(ctx)
	if err != nil {
		return nil, err
	}

	summary := &IndexSummary{
		GeneratedAt: time.Now().UTC(),
		Primary:     primary,
		Indexed:     o.store.CountByTypeStatus(ctx),
	}

	if o.cache != nil {
		if err := o.cache.SetSummary(ctx, summary); err != nil {
			o.logger.Warn("Failed to cache summary", zap.Error(err))
		}
	}
	return summary, nil
}

// flush submits one batch to the auditor and folds the outcome into the
// report, preserving batch order for the failure entries.
func (o *AuditOrchestrator) flush(ctx context.Context, report *entity.AuditReport, batch []*entity.Post) error {
	failures, err := o.auditor.AuditMany(ctx, batch)
	if err != nil {
		return err
	}

	if o.collector != nil {
		o.collector.AuditBatches.Inc()
	}

	for _, post := range batch {
		reason, failed := failures[post.ID]
		if failed {
			report.Failures = append(report.Failures, entity.AuditFailure{PostID: post.ID, Reason: reason})
			// A duplicate id later in the batch counts as a pass.
			delete(failures, post.ID)
			if o.collector != nil {
				o.collector.AuditedPosts.WithLabelValues("fail").Inc()
				o.collector.AuditFailures.WithLabelValues(reason).Inc()
			}
			continue
		}
		report.Passed++
		if o.collector != nil {
			o.collector.AuditedPosts.WithLabelValues("pass").Inc()
		}
	}
	return nil
}
