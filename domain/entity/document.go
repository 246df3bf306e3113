package entity

import "time"

// IndexedDocument is the search index's denormalized snapshot of a Post,
// keyed by the same identifier. It is eventually consistent with the primary
// store: it may be stale, absent, or (rarely) duplicated. The replication
// pipeline owns it; the reconciler only reads it.
type IndexedDocument struct {
	PostID      int64     `json:"post_id"`
	PostType    string    `json:"post_type"`
	PostStatus  string    `json:"post_status"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	IndexedAt   time.Time `json:"indexed_at"`
}
