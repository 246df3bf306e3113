package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// TenantSwitcher retargets the reconciler's store views at one tenant's
// data partition. Current returns the tenant in effect so a caller can
// restore it after a scoped switch.
type TenantSwitcher interface {
	Current() entity.TenantContext
	Switch(ctx context.Context, tenant entity.TenantContext) error
}

// FleetRunner repeats the audit orchestrator across every tenant of a
// multi-tenant deployment and produces a cross-tenant summary with a
// consolidated error report.
type FleetRunner struct {
	switcher     TenantSwitcher
	orchestrator *AuditOrchestrator
	logger       *zap.Logger
}

// NewFleetRunner creates a fleet runner.
func NewFleetRunner(switcher TenantSwitcher, orchestrator *AuditOrchestrator, logger *zap.Logger) *FleetRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FleetRunner{
		switcher:     switcher,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// RunFleet audits each tenant in order. The starting tenant context is
// restored on every exit path, including mid-loop errors and an empty
// tenant list. Per-tenant audit errors abort the fleet run and propagate.
func (f *FleetRunner) RunFleet(ctx context.Context, tenants []entity.TenantContext, filter repository.PostFilter) (*entity.FleetSummary, error) {
	start := f.switcher.Current()
	defer func() {
		if err := f.switcher.Switch(ctx, start); err != nil {
			f.logger.Error("Failed to restore starting tenant context",
				zap.String("tenant_id", start.TenantID),
				zap.Error(err))
		}
	}()

	summary := &entity.FleetSummary{
		Rows:     make([]entity.FleetRow, 0, len(tenants)),
		Failures: make([]entity.FleetFailure, 0),
	}

	for _, tenant := range tenants {
		if err := f.switcher.Switch(ctx, tenant); err != nil {
			return nil, err
		}

		f.logger.Info("Fleet audit: tenant started", zap.String("tenant_id", tenant.TenantID))

		report, err := f.orchestrator.Run(ctx, filter)
		if err != nil {
			return nil, err
		}

		summary.Rows = append(summary.Rows, entity.FleetRow{
			TenantID: tenant.TenantID,
			Passed:   report.Passed,
			Failed:   len(report.Failures),
		})
		for _, failure := range report.Failures {
			summary.Failures = append(summary.Failures, entity.FleetFailure{
				TenantID: tenant.TenantID,
				PostID:   failure.PostID,
				Reason:   failure.Reason,
			})
		}

		f.logger.Info("Fleet audit: tenant finished",
			zap.String("tenant_id", tenant.TenantID),
			zap.Int("passed", report.Passed),
			zap.Int("failed", len(report.Failures)))
	}

	return summary, nil
}
