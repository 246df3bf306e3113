package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// fakeDocumentStore serves canned documents and records bulk fetch calls.
type fakeDocumentStore struct {
	docs      map[int64]*entity.IndexedDocument
	fetchErr  error
	bulkCalls [][]int64
}

func (f *fakeDocumentStore) Search(ctx context.Context, query repository.SearchQuery) (*repository.SearchResult, error) {
	return &repository.SearchResult{Documents: []*entity.IndexedDocument{}}, nil
}

func (f *fakeDocumentStore) FetchByID(ctx context.Context, id int64) (*entity.IndexedDocument, bool) {
	doc, ok := f.docs[id]
	return doc, ok
}

func (f *fakeDocumentStore) FetchByIDs(ctx context.Context, ids []int64) (map[int64]*entity.IndexedDocument, error) {
	f.bulkCalls = append(f.bulkCalls, append([]int64(nil), ids...))
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[int64]*entity.IndexedDocument)
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) CountByTypeStatus(ctx context.Context) map[entity.PostType]map[entity.PostStatus]int64 {
	return map[entity.PostType]map[entity.PostStatus]int64{}
}

func makePost(id int64, content string) *entity.Post {
	return &entity.Post{
		ID:      id,
		Type:    entity.PostTypePost,
		Status:  entity.PostStatusPublish,
		Content: content,
	}
}

func makeDoc(post *entity.Post) *entity.IndexedDocument {
	return &entity.IndexedDocument{
		PostID:      post.ID,
		PostType:    string(post.Type),
		PostStatus:  string(post.Status),
		ContentHash: post.ContentHash(),
	}
}

func TestAuditManyEmptyInput(t *testing.T) {
	store := &fakeDocumentStore{}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Empty(t, store.bulkCalls, "no bulk fetch for an empty batch")
}

func TestAuditManyAllInSync(t *testing.T) {
	posts := []*entity.Post{makePost(1, "a"), makePost(2, "b")}
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{
		1: makeDoc(posts[0]),
		2: makeDoc(posts[1]),
	}}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), posts)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, store.bulkCalls, 1, "one bulk fetch per batch")
	assert.Equal(t, []int64{1, 2}, store.bulkCalls[0])
}

func TestAuditManyMissingDocument(t *testing.T) {
	posts := []*entity.Post{makePost(1, "a"), makePost(2, "b")}
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{
		1: makeDoc(posts[0]),
	}}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), posts)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{2: entity.FailureReasonMissing}, failures)
}

func TestAuditManyStaleContent(t *testing.T) {
	post := makePost(7, "fresh content")
	stale := makeDoc(makePost(7, "old content"))
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{7: stale}}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), []*entity.Post{post})
	require.NoError(t, err)
	assert.Equal(t, "stale content", failures[7])
}

func TestAuditManyTypeMismatchShortCircuits(t *testing.T) {
	post := makePost(3, "body")
	doc := makeDoc(post)
	doc.PostType = "page"
	doc.ContentHash = "also wrong"
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{3: doc}}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), []*entity.Post{post})
	require.NoError(t, err)
	// The first failing check wins; the hash check never runs.
	assert.Contains(t, failures[3], "type mismatch")
}

func TestAuditManyInvalidEntryNamesPosition(t *testing.T) {
	posts := []*entity.Post{makePost(1, "a"), nil, makePost(3, "c")}
	store := &fakeDocumentStore{}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), posts)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidAuditInput)
	assert.Contains(t, err.Error(), "entry 1")
	assert.Nil(t, failures, "no partial results on invalid input")
	assert.Empty(t, store.bulkCalls, "validation happens before any fetch")
}

func TestAuditManyStoreErrorPropagates(t *testing.T) {
	store := &fakeDocumentStore{fetchErr: entity.ErrMalformedEnvelope}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), []*entity.Post{makePost(1, "a")})
	assert.ErrorIs(t, err, entity.ErrMalformedEnvelope)
	assert.Nil(t, failures)
}

func TestAuditManyDuplicateIDLastWriteWins(t *testing.T) {
	older := makePost(5, "older")
	newer := makePost(5, "newer")
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{
		5: makeDoc(newer),
	}}
	auditor := NewAuditor(store, nil)

	failures, err := auditor.AuditMany(context.Background(), []*entity.Post{older, newer})
	require.NoError(t, err)
	assert.Empty(t, failures, "the last occurrence is the one audited")
	require.Len(t, store.bulkCalls, 1)
	assert.Equal(t, []int64{5}, store.bulkCalls[0], "duplicate ids are fetched once")
}

func TestRegisterCheckExtendsChain(t *testing.T) {
	post := makePost(9, "body")
	post.Title = "draft title"
	doc := makeDoc(post)
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{9: doc}}

	auditor := NewAuditor(store, nil)
	auditor.RegisterCheck(func(verdict entity.AuditResult, post *entity.Post, doc *entity.IndexedDocument) entity.AuditResult {
		if doc.Title != post.Title {
			return entity.Fail("title mismatch")
		}
		return verdict
	})

	failures, err := auditor.AuditMany(context.Background(), []*entity.Post{post})
	require.NoError(t, err)
	assert.Equal(t, "title mismatch", failures[9])
}

func TestAuditOne(t *testing.T) {
	post := makePost(11, "hello")
	store := &fakeDocumentStore{docs: map[int64]*entity.IndexedDocument{11: makeDoc(post)}}
	auditor := NewAuditor(store, nil)

	assert.True(t, auditor.AuditOne(context.Background(), post).Passed)

	missing := makePost(12, "absent")
	verdict := auditor.AuditOne(context.Background(), missing)
	assert.False(t, verdict.Passed)
	assert.Equal(t, entity.FailureReasonMissing, verdict.Reason)
}
