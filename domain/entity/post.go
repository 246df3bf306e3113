package entity

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// PostType represents the content type of a post in the primary store
type PostType string

const (
	PostTypePost       PostType = "post"
	PostTypePage       PostType = "page"
	PostTypeAttachment PostType = "attachment"
	PostTypeRevision   PostType = "revision"
)

// PostStatus represents the publication status of a post
type PostStatus string

const (
	PostStatusPublish PostStatus = "publish"
	PostStatusDraft   PostStatus = "draft"
	PostStatusPending PostStatus = "pending"
	PostStatusPrivate PostStatus = "private"
	PostStatusTrash   PostStatus = "trash"
)

// DefaultPublicPostTypes lists the post types that are indexable by default.
// Revisions and attachments never reach the search index.
var DefaultPublicPostTypes = []PostType{PostTypePost, PostTypePage}

// Post is the canonical content entity owned by the primary store. The
// reconciler treats it as read-only input; all mutation happens upstream.
type Post struct {
	ID        int64      `json:"id" db:"id"`
	Type      PostType   `json:"post_type" db:"post_type"`
	Status    PostStatus `json:"post_status" db:"post_status"`
	Title     string     `json:"title" db:"title"`
	Content   string     `json:"content" db:"content"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Valid reports whether the post is a usable record descriptor.
func (p *Post) Valid() bool {
	return p != nil && p.ID > 0 && p.Type != ""
}

// ContentHash returns the hash of the post content that the indexer stores
// alongside each document, used to detect stale index entries.
func (p *Post) ContentHash() string {
	sum := sha256.Sum256([]byte(p.Content))
	return fmt.Sprintf("%x", sum)
}
