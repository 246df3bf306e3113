package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// DocumentCheck is one stage of the auditor's validation chain. It receives
// the verdict so far, the primary-store post, and its indexed counterpart,
// and returns either the unchanged verdict or a failure. The chain runs in
// registration order and short-circuits on the first failure.
type DocumentCheck func(verdict entity.AuditResult, post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult

// Auditor compares posts from the primary store against their documents in
// the search index through a pluggable validation chain. Deployments extend
// the chain with RegisterCheck without touching the auditor itself.
type Auditor struct {
	store  repository.DocumentStore
	checks []DocumentCheck
	logger *zap.Logger
}

// NewAuditor creates an auditor with the built-in checks registered.
func NewAuditor(store repository.DocumentStore, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		store:  store,
		checks: []DocumentCheck{CheckTypeMatch, CheckStatusMatch, CheckContentHash},
		logger: logger,
	}
}

// RegisterCheck appends a caller-supplied stage to the validation chain.
func (a *Auditor) RegisterCheck(check DocumentCheck) {
	a.checks = append(a.checks, check)
}

// AuditOne audits a single post against the index.
func (a *Auditor) AuditOne(ctx context.Context, post *entity.Post) entity.AuditResult {
	if !post.Valid() {
		return entity.Fail("invalid post descriptor")
	}
	doc, ok := a.store.FetchByID(ctx, post.ID)
	if !ok {
		return entity.Fail(entity.FailureReasonMissing)
	}
	return a.runChecks(post, doc)
}

// AuditMany audits an ordered batch of posts with a single bulk fetch
// against the index. It returns the failure reasons keyed by post id; an
// empty map means every post passed.
//
// An invalid entry fails the whole call, naming its position; no partial
// results are returned. A malformed index response fails the whole call as
// an infrastructure error, distinct from per-post audit failures.
func (a *Auditor) AuditMany(ctx context.Context, posts []*entity.Post) (map[int64]string, error) {
	failures := make(map[int64]string)
	if len(posts) == 0 {
		return failures, nil
	}

	// Last write wins if the same id appears twice in one batch.
	pending := make(map[int64]*entity.Post, len(posts))
	ids := make([]int64, 0, len(posts))
	for i, post := range posts {
		if !post.Valid() {
			return nil, fmt.Errorf("%w: entry %d is %v", entity.ErrInvalidAuditInput, i, post)
		}
		if _, seen := pending[post.ID]; !seen {
			ids = append(ids, post.ID)
		}
		pending[post.ID] = post
	}

	docs, err := a.store.FetchByIDs(ctx, ids)
	if err != nil {
		a.logger.Error("Bulk document fetch failed",
			zap.Int("batch_size", len(ids)),
			zap.Error(err))
		return nil, err
	}

	for id, doc := range docs {
		post, ok := pending[id]
		if !ok {
			// The index returned a document we never asked for.
			a.logger.Warn("Unexpected document in bulk response", zap.Int64("post_id", id))
			continue
		}
		if verdict := a.runChecks(post, doc); !verdict.Passed {
			failures[id] = verdict.Reason
		}
		delete(pending, id)
	}

	// Everything still pending was requested but never returned.
	for id := range pending {
		failures[id] = entity.FailureReasonMissing
	}

	return failures, nil
}

func (a *Auditor) runChecks(post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult {
	verdict := entity.Pass()
	for _, check := range a.checks {
		verdict = check(verdict, post, doc)
		if !verdict.Passed {
			break
		}
	}
	return verdict
}

// Built-in validation stages

// CheckTypeMatch fails when the indexed post type disagrees with the
// primary store.
func CheckTypeMatch(verdict entity.AuditResult, post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult {
	if doc.PostType != string(post.Type) {
		return entity.Fail(fmt.Sprintf("type mismatch: indexed %q, expected %q", doc.PostType, post.Type))
	}
	return verdict
}

// CheckStatusMatch fails when the indexed post status disagrees with the
// primary store.
func CheckStatusMatch(verdict entity.AuditResult, post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult {
	if doc.PostStatus != string(post.Status) {
		return entity.Fail(fmt.Sprintf("status mismatch: indexed %q, expected %q", doc.PostStatus, post.Status))
	}
	return verdict
}

// CheckContentHash fails when the indexed content hash is stale.
func CheckContentHash(verdict entity.AuditResult, post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult {
	if doc.ContentHash != post.ContentHash() {
		return entity.Fail("stale content")
	}
	return verdict
}
