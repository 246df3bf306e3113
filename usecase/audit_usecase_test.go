package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
	"github.com/contentplane/index-reconciler/domain/service"
)

// slicePostRepository streams a fixed slice of posts.
type slicePostRepository struct {
	posts    []*entity.Post
	counts   map[entity.PostType]map[entity.PostStatus]int64
	countErr error
}

func (r *slicePostRepository) GetByID(ctx context.Context, id int64) (*entity.Post, error) {
	for _, p := range r.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrPostNotFound
}

func (r *slicePostRepository) Stream(ctx context.Context, filter repository.PostFilter) repository.PostIterator {
	return &sliceIterator{posts: r.posts}
}

func (r *slicePostRepository) CountByTypeStatus(ctx context.Context) (map[entity.PostType]map[entity.PostStatus]int64, error) {
	return r.counts, r.countErr
}

type sliceIterator struct {
	posts []*entity.Post
	pos   int
}

func (it *sliceIterator) Next(ctx context.Context) (*entity.Post, error) {
	if it.pos >= len(it.posts) {
		return nil, nil
	}
	post := it.posts[it.pos]
	it.pos++
	return post, nil
}

// countingStore mirrors the primary store and records bulk fetch sizes.
type countingStore struct {
	docs      map[int64]*entity.IndexedDocument
	counts    map[entity.PostType]map[entity.PostStatus]int64
	bulkSizes []int
}

func (s *countingStore) Search(ctx context.Context, query repository.SearchQuery) (*repository.SearchResult, error) {
	return &repository.SearchResult{Documents: []*entity.IndexedDocument{}}, nil
}

func (s *countingStore) FetchByID(ctx context.Context, id int64) (*entity.IndexedDocument, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *countingStore) FetchByIDs(ctx context.Context, ids []int64) (map[int64]*entity.IndexedDocument, error) {
	s.bulkSizes = append(s.bulkSizes, len(ids))
	out := make(map[int64]*entity.IndexedDocument)
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (s *countingStore) CountByTypeStatus(ctx context.Context) map[entity.PostType]map[entity.PostStatus]int64 {
	if s.counts == nil {
		return map[entity.PostType]map[entity.PostStatus]int64{}
	}
	return s.counts
}

// recordingPipeline completes any repair drive in a single batch.
type recordingPipeline struct {
	settings entity.ReplicationSettings
	queued   []int64
	sent     bool
	startErr error
}

func (p *recordingPipeline) IsFullSyncActive() bool   { return false }
func (p *recordingPipeline) IsFullSyncFinished() bool { return true }

func (p *recordingPipeline) StartFullSync(ctx context.Context, ids []int64) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.queued = append([]int64(nil), ids...)
	p.sent = false
	return nil
}

func (p *recordingPipeline) SendNextBatch(ctx context.Context) (repository.BatchProgress, error) {
	if p.sent || len(p.queued) == 0 {
		return repository.BatchProgress{QueueEmpty: true}, nil
	}
	p.sent = true
	return repository.BatchProgress{Sent: len(p.queued)}, nil
}

func (p *recordingPipeline) GetSettings() entity.ReplicationSettings         { return p.settings }
func (p *recordingPipeline) SetSettings(settings entity.ReplicationSettings) { p.settings = settings }

// memoryCache is an in-process SummaryCache.
type memoryCache struct {
	summary *IndexSummary
	sets    int
}

func (c *memoryCache) GetSummary(ctx context.Context) (*IndexSummary, bool) {
	return c.summary, c.summary != nil
}

func (c *memoryCache) SetSummary(ctx context.Context, summary *IndexSummary) error {
	c.summary = summary
	c.sets++
	return nil
}

func population(n int) ([]*entity.Post, map[int64]*entity.IndexedDocument) {
	posts := make([]*entity.Post, 0, n)
	docs := make(map[int64]*entity.IndexedDocument, n)
	for i := 1; i <= n; i++ {
		post := &entity.Post{
			ID:      int64(i),
			Type:    entity.PostTypePost,
			Status:  entity.PostStatusPublish,
			Content: fmt.Sprintf("content %d", i),
		}
		posts = append(posts, post)
		docs[post.ID] = &entity.IndexedDocument{
			PostID:      post.ID,
			PostType:    string(post.Type),
			PostStatus:  string(post.Status),
			ContentHash: post.ContentHash(),
		}
	}
	return posts, docs
}

func newOrchestrator(posts []*entity.Post, store *countingStore, pipe *recordingPipeline, cache SummaryCache, batchSize int) *AuditOrchestrator {
	repo := &slicePostRepository{posts: posts}
	auditor := service.NewAuditor(store, nil)
	dispatcher := service.NewRepairDispatcher(pipe, nil, nil)
	return NewAuditOrchestrator(repo, store, auditor, dispatcher, cache, nil, batchSize, nil)
}

func TestRunBatchesThePopulation(t *testing.T) {
	posts, docs := population(250)
	store := &countingStore{docs: docs}
	orchestrator := newOrchestrator(posts, store, &recordingPipeline{}, nil, 100)

	report, err := orchestrator.Run(context.Background(), repository.PostFilter{})
	require.NoError(t, err)

	assert.Equal(t, 250, report.Passed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []int{100, 100, 50}, store.bulkSizes, "full batches plus the partial tail")
	assert.NotEmpty(t, report.RunID)
}

func TestRunCollectsFailuresInOrder(t *testing.T) {
	posts, docs := population(5)
	delete(docs, 2)
	docs[4].ContentHash = "stale"
	store := &countingStore{docs: docs}
	orchestrator := newOrchestrator(posts, store, &recordingPipeline{}, nil, 3)

	report, err := orchestrator.Run(context.Background(), repository.PostFilter{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Passed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, int64(2), report.Failures[0].PostID)
	assert.Equal(t, entity.FailureReasonMissing, report.Failures[0].Reason)
	assert.Equal(t, int64(4), report.Failures[1].PostID)
	assert.Equal(t, 5, report.Total())
}

func TestRunEmptyPopulation(t *testing.T) {
	store := &countingStore{docs: map[int64]*entity.IndexedDocument{}}
	orchestrator := newOrchestrator(nil, store, &recordingPipeline{}, nil, 100)

	report, err := orchestrator.Run(context.Background(), repository.PostFilter{})
	require.NoError(t, err)
	assert.Zero(t, report.Total())
	assert.Empty(t, store.bulkSizes, "no bulk fetch without posts")
}

func TestRunAndRepairQueuesFailedIDs(t *testing.T) {
	posts, docs := population(4)
	delete(docs, 1)
	delete(docs, 3)
	store := &countingStore{docs: docs}
	pipe := &recordingPipeline{}
	orchestrator := newOrchestrator(posts, store, pipe, nil, 100)

	report, err := orchestrator.RunAndRepair(context.Background(), repository.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, report.Failures, 2)
	assert.Equal(t, []int64{1, 3}, pipe.queued, "exactly the failing ids are re-driven")
}

func TestRunAndRepairSkipsRepairWhenClean(t *testing.T) {
	posts, docs := population(3)
	store := &countingStore{docs: docs}
	pipe := &recordingPipeline{startErr: errors.New("must not be called")}
	orchestrator := newOrchestrator(posts, store, pipe, nil, 100)

	report, err := orchestrator.RunAndRepair(context.Background(), repository.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Passed)
}

func TestRunAndRepairReturnsReportWithRepairError(t *testing.T) {
	posts, docs := population(2)
	delete(docs, 1)
	store := &countingStore{docs: docs}
	pipe := &recordingPipeline{startErr: errors.New("pipeline refused")}
	orchestrator := newOrchestrator(posts, store, pipe, nil, 100)

	report, err := orchestrator.RunAndRepair(context.Background(), repository.PostFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrSyncUnavailable)
	require.NotNil(t, report, "the audit outcome survives a failed repair")
	assert.Len(t, report.Failures, 1)
}

func TestSummaryComparesBothStores(t *testing.T) {
	primary := map[entity.PostType]map[entity.PostStatus]int64{
		entity.PostTypePost: {entity.PostStatusPublish: 10},
	}
	indexed := map[entity.PostType]map[entity.PostStatus]int64{
		entity.PostTypePost: {entity.PostStatusPublish: 8},
	}
	repo := &slicePostRepository{counts: primary}
	store := &countingStore{counts: indexed}
	auditor := service.NewAuditor(store, nil)
	dispatcher := service.NewRepairDispatcher(&recordingPipeline{}, nil, nil)
	cache := &memoryCache{}
	orchestrator := NewAuditOrchestrator(repo, store, auditor, dispatcher, cache, nil, 100, nil)

	summary, err := orchestrator.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, primary, summary.Primary)
	assert.Equal(t, indexed, summary.Indexed)
	assert.WithinDuration(t, time.Now().UTC(), summary.GeneratedAt, time.Minute)
	assert.Equal(t, 1, cache.sets)

	// Second call is served from the cache.
	again, err := orchestrator.Summary(context.Background())
	require.NoError(t, err)
	assert.Same(t, summary, again)
	assert.Equal(t, 1, cache.sets)
}

func TestSummaryPrimaryErrorPropagates(t *testing.T) {
	repo := &slicePostRepository{countErr: errors.New("db down")}
	store := &countingStore{}
	auditor := service.NewAuditor(store, nil)
	dispatcher := service.NewRepairDispatcher(&recordingPipeline{}, nil, nil)
	orchestrator := NewAuditOrchestrator(repo, store, auditor, dispatcher, nil, nil, 100, nil)

	_, err := orchestrator.Summary(context.Background())
	assert.Error(t, err, "primary-store counts do not degrade")
}
