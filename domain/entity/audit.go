package entity

// FailureReasonMissing is the audit failure reason recorded for a post that
// exists in the primary store but has no document in the search index. It is
// report data, not an infrastructure error.
const FailureReasonMissing = "Missing"

// AuditResult is the verdict for a single post. It lives only for the
// duration of one audit pass and is never persisted.
type AuditResult struct {
	Passed bool
	Reason string
}

// Pass returns a passing audit result.
func Pass() AuditResult {
	return AuditResult{Passed: true}
}

// Fail returns a failing audit result with the given reason.
func Fail(reason string) AuditResult {
	return AuditResult{Passed: false, Reason: reason}
}

// AuditFailure is one failed post within a report.
type AuditFailure struct {
	PostID int64  `json:"post_id"`
	Reason string `json:"reason"`
}

// AuditReport aggregates the outcome of a batch or a full run. It is built
// incrementally by the orchestrator and immutable once returned.
// Passed + len(Failures) always equals the number of posts submitted.
type AuditReport struct {
	RunID    string         `json:"run_id"`
	Passed   int            `json:"passed"`
	Failures []AuditFailure `json:"failures"`
}

// Total returns the number of posts covered by the report.
func (r *AuditReport) Total() int {
	return r.Passed + len(r.Failures)
}

// FailedIDs returns the post ids of all failure entries in report order.
func (r *AuditReport) FailedIDs() []int64 {
	ids := make([]int64, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.PostID)
	}
	return ids
}

// TenantContext identifies one isolated data partition (site) in a
// multi-tenant deployment. The fleet runner switches into and out of this
// context around each per-tenant audit pass.
type TenantContext struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// FleetRow is the per-tenant summary line of a fleet run.
type FleetRow struct {
	TenantID string `json:"tenant_id"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
}

// FleetFailure is one audit failure tagged with the tenant it belongs to.
type FleetFailure struct {
	TenantID string `json:"tenant_id"`
	PostID   int64  `json:"post_id"`
	Reason   string `json:"reason"`
}

// FleetSummary aggregates an audit run across every tenant: one row per
// tenant plus a consolidated, ordered failure list.
type FleetSummary struct {
	Rows     []FleetRow     `json:"rows"`
	Failures []FleetFailure `json:"failures"`
}
