package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// defaultStreamPageSize is the keyset page size for Stream.
const defaultStreamPageSize = 500

// PostgresPostRepository implements repository.PostRepository against the
// content platform's PostgreSQL database. Each tenant's posts live in a
// dedicated schema; UseTenant retargets the repository.
type PostgresPostRepository struct {
	db          *sqlx.DB
	logger      *zap.Logger
	publicTypes []entity.PostType
	pageSize    int

	mu     sync.RWMutex
	schema string
}

var _ repository.PostRepository = (*PostgresPostRepository)(nil)

// NewPostgresPostRepository creates a post repository bound to a tenant
// schema. publicTypes scopes the count baseline; empty falls back to the
// default public types.
func NewPostgresPostRepository(db *sqlx.DB, tenant entity.TenantContext, publicTypes []entity.PostType, logger *zap.Logger) *PostgresPostRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(publicTypes) == 0 {
		publicTypes = entity.DefaultPublicPostTypes
	}
	return &PostgresPostRepository{
		db:          db,
		logger:      logger,
		publicTypes: publicTypes,
		pageSize:    defaultStreamPageSize,
		schema:      schemaFor(tenant),
	}
}

// UseTenant retargets the repository at another tenant's schema.
func (r *PostgresPostRepository) UseTenant(tenant entity.TenantContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schema = schemaFor(tenant)
}

// GetByID retrieves a post by its id.
func (r *PostgresPostRepository) GetByID(ctx context.Context, id int64) (*entity.Post, error) {
	query := fmt.Sprintf(`
		SELECT id, post_type, post_status, title, content, updated_at
		FROM %s.posts WHERE id = $1`, r.table())

	var post entity.Post
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrPostNotFound
		}
		r.logger.Error("Failed to get post", zap.Int64("post_id", id), zap.Error(err))
		return nil, errors.Wrap(err, "failed to get post")
	}
	return &post, nil
}

// Stream lazily iterates posts matching the filter in id order via keyset
// pagination. Rows written after the traversal passes their id range are
// not observed; there is no snapshot isolation.
func (r *PostgresPostRepository) Stream(ctx context.Context, filter repository.PostFilter) repository.PostIterator {
	return &postIterator{repo: r, filter: filter}
}

// CountByTypeStatus aggregates post counts grouped by type and status,
// restricted to the registered public post types.
func (r *PostgresPostRepository) CountByTypeStatus(ctx context.Context) (map[entity.PostType]map[entity.PostStatus]int64, error) {
	query := fmt.Sprintf(`
		SELECT post_type, post_status, COUNT(*) AS total
		FROM %s.posts
		WHERE post_type IN (?)
		GROUP BY post_type, post_status`, r.table())

	query, args, err := sqlx.In(query, r.publicTypes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build count query")
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to count posts", zap.Error(err))
		return nil, errors.Wrap(err, "failed to count posts")
	}
	defer rows.Close()

	counts := make(map[entity.PostType]map[entity.PostStatus]int64)
	for rows.Next() {
		var row struct {
			PostType   entity.PostType   `db:"post_type"`
			PostStatus entity.PostStatus `db:"post_status"`
			Total      int64             `db:"total"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.Wrap(err, "failed to scan count row")
		}
		if counts[row.PostType] == nil {
			counts[row.PostType] = make(map[entity.PostStatus]int64)
		}
		counts[row.PostType][row.PostStatus] = row.Total
	}
	return counts, rows.Err()
}

func (r *PostgresPostRepository) table() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pq.QuoteIdentifier(r.schema)
}

func schemaFor(tenant entity.TenantContext) string {
	if tenant.TenantID == "" {
		return "public"
	}
	return "tenant_" + tenant.TenantID
}

// postIterator pages through the posts table keyed on id.
type postIterator struct {
	repo   *PostgresPostRepository
	filter repository.PostFilter
	lastID int64
	buf    []*entity.Post
	done   bool
}

// Next returns the next post, or (nil, nil) once exhausted.
func (it *postIterator) Next(ctx context.Context) (*entity.Post, error) {
	if len(it.buf) == 0 && !it.done {
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	if len(it.buf) == 0 {
		return nil, nil
	}
	post := it.buf[0]
	it.buf = it.buf[1:]
	it.lastID = post.ID
	return post, nil
}

func (it *postIterator) fetchPage(ctx context.Context) error {
	query := fmt.Sprintf(`
		SELECT id, post_type, post_status, title, content, updated_at
		FROM %s.posts
		WHERE id > ?`, it.repo.table())
	args := []interface{}{it.lastID}

	if len(it.filter.IDs) > 0 {
		query += " AND id IN (?)"
		args = append(args, it.filter.IDs)
	}
	if len(it.filter.Types) > 0 {
		query += " AND post_type IN (?)"
		args = append(args, it.filter.Types)
	}
	if len(it.filter.Statuses) > 0 {
		query += " AND post_status IN (?)"
		args = append(args, it.filter.Statuses)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, it.repo.pageSize)

	query, flat, err := sqlx.In(query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to build stream query")
	}
	query = it.repo.db.Rebind(query)

	posts := make([]*entity.Post, 0, it.repo.pageSize)
	if err := it.repo.db.SelectContext(ctx, &posts, query, flat...); err != nil {
		it.repo.logger.Error("Failed to stream posts", zap.Int64("after_id", it.lastID), zap.Error(err))
		return errors.Wrap(err, "failed to stream posts")
	}

	if len(posts) < it.repo.pageSize {
		it.done = true
	}
	it.buf = posts
	return nil
}
