package repository

import (
	"context"

	"github.com/contentplane/index-reconciler/domain/entity"
)

// SearchQuery is the structured query the reconciler issues against the
// search index. Empty fields are omitted from the generated DSL.
type SearchQuery struct {
	IDs      []int64             `json:"ids,omitempty"`
	Types    []entity.PostType   `json:"post_types,omitempty"`
	Statuses []entity.PostStatus `json:"post_statuses,omitempty"`
	Size     int                 `json:"size,omitempty"`
}

// SearchResult is the parsed result envelope of one index query.
type SearchResult struct {
	Total     int64                     `json:"total"`
	Documents []*entity.IndexedDocument `json:"documents"`
}

// DocumentStore is the reconciler's read-only view of the search index.
//
// Read paths degrade to empty results when the index reports an error: the
// returned result is never nil, and the accompanying error is a side channel
// for callers that must distinguish "no matches" from "index is down".
// Counting and reporting code ignores it by design of the degrade policy;
// the bulk audit path does not.
type DocumentStore interface {
	// Search runs a structured query. On store failure it returns an empty
	// result together with the underlying error.
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)

	// FetchByID fetches one document; absent on miss or store failure.
	FetchByID(ctx context.Context, id int64) (*entity.IndexedDocument, bool)

	// FetchByIDs fetches the full identifier set in a single round trip.
	// Unlike the other read paths it fails hard: a transport failure or a
	// malformed result envelope is an infrastructure-level error, distinct
	// from a per-document audit failure.
	FetchByIDs(ctx context.Context, ids []int64) (map[int64]*entity.IndexedDocument, error)

	// CountByTypeStatus aggregates document counts grouped by type and
	// status. Degrades to an empty map on store failure.
	CountByTypeStatus(ctx context.Context) map[entity.PostType]map[entity.PostStatus]int64
}
