package http

import (
	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// AuditRequest scopes an audit run. All fields are optional; an empty
// request audits the full public population.
type AuditRequest struct {
	IDs          []int64  `json:"ids"`
	PostTypes    []string `json:"post_types"`
	PostStatuses []string `json:"post_statuses"`

	// Repair triggers a repair drive for every failing post.
	Repair bool `json:"repair"`
}

// Filter converts the request scope to a repository filter.
func (r *AuditRequest) Filter() repository.PostFilter {
	filter := repository.PostFilter{IDs: r.IDs}
	for _, t := range r.PostTypes {
		filter.Types = append(filter.Types, entity.PostType(t))
	}
	for _, s := range r.PostStatuses {
		filter.Statuses = append(filter.Statuses, entity.PostStatus(s))
	}
	return filter
}

// SyncRequest asks for a repair drive over an explicit identifier set.
type SyncRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// FleetAuditRequest scopes a fleet-wide audit run.
type FleetAuditRequest struct {
	Tenants      []TenantDTO `json:"tenants" binding:"required"`
	PostTypes    []string    `json:"post_types"`
	PostStatuses []string    `json:"post_statuses"`
}

// TenantDTO identifies one tenant in a fleet request.
type TenantDTO struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Name     string `json:"name"`
}

// AuditResponse is the report payload for a single-tenant audit run.
type AuditResponse struct {
	RunID    string                `json:"run_id"`
	Total    int                   `json:"total"`
	Passed   int                   `json:"passed"`
	Failures []entity.AuditFailure `json:"failures"`

	// RepairError carries a repair failure alongside the report when the
	// audit itself succeeded.
	RepairError string `json:"repair_error,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newAuditResponse(report *entity.AuditReport) AuditResponse {
	resp := AuditResponse{
		RunID:    report.RunID,
		Total:    report.Total(),
		Passed:   report.Passed,
		Failures: report.Failures,
	}
	if resp.Failures == nil {
		resp.Failures = []entity.AuditFailure{}
	}
	return resp
}
