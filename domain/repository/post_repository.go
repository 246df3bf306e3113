package repository

import (
	"context"
	"errors"

	"github.com/contentplane/index-reconciler/domain/entity"
)

// ErrPostNotFound is returned when a post id has no row in the primary store.
var ErrPostNotFound = errors.New("post not found")

// PostFilter narrows which posts an audit pass covers.
type PostFilter struct {
	IDs      []int64             `json:"ids,omitempty"`
	Types    []entity.PostType   `json:"post_types,omitempty"`
	Statuses []entity.PostStatus `json:"post_statuses,omitempty"`
}

// PostIterator is a lazy, finite traversal of the primary-store population.
// Next returns (nil, nil) once the sequence is exhausted. Each Stream call
// produces a fresh iterator; posts created or deleted while a traversal is
// in flight are not guaranteed to be observed (best effort, no snapshot
// isolation).
type PostIterator interface {
	Next(ctx context.Context) (*entity.Post, error)
}

// PostRepository is the reconciler's read-only view of the primary store.
type PostRepository interface {
	// GetByID fetches a single post, ErrPostNotFound when absent.
	GetByID(ctx context.Context, id int64) (*entity.Post, error)

	// Stream lazily iterates all posts matching the filter, ordered by id.
	Stream(ctx context.Context, filter PostFilter) PostIterator

	// CountByTypeStatus aggregates post counts grouped by type and status,
	// scoped to the registered public post types.
	CountByTypeStatus(ctx context.Context) (map[entity.PostType]map[entity.PostStatus]int64, error)
}
