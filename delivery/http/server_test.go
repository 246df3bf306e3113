package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/config"
	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
	"github.com/contentplane/index-reconciler/domain/service"
	"github.com/contentplane/index-reconciler/usecase"
)

// stubPosts serves a fixed population.
type stubPosts struct {
	posts []*entity.Post
}

func (s *stubPosts) GetByID(ctx context.Context, id int64) (*entity.Post, error) {
	return nil, repository.ErrPostNotFound
}

func (s *stubPosts) Stream(ctx context.Context, filter repository.PostFilter) repository.PostIterator {
	return &stubIterator{posts: s.posts}
}

func (s *stubPosts) CountByTypeStatus(ctx context.Context) (map[entity.PostType]map[entity.PostStatus]int64, error) {
	return map[entity.PostType]map[entity.PostStatus]int64{}, nil
}

type stubIterator struct {
	posts []*entity.Post
	pos   int
}

func (it *stubIterator) Next(ctx context.Context) (*entity.Post, error) {
	if it.pos >= len(it.posts) {
		return nil, nil
	}
	post := it.posts[it.pos]
	it.pos++
	return post, nil
}

// stubDocs mirrors the population it is given.
type stubDocs struct {
	docs map[int64]*entity.IndexedDocument
}

func (s *stubDocs) Search(ctx context.Context, query repository.SearchQuery) (*repository.SearchResult, error) {
	return &repository.SearchResult{Documents: []*entity.IndexedDocument{}}, nil
}

func (s *stubDocs) FetchByID(ctx context.Context, id int64) (*entity.IndexedDocument, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *stubDocs) FetchByIDs(ctx context.Context, ids []int64) (map[int64]*entity.IndexedDocument, error) {
	out := make(map[int64]*entity.IndexedDocument)
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (s *stubDocs) CountByTypeStatus(ctx context.Context) map[entity.PostType]map[entity.PostStatus]int64 {
	return map[entity.PostType]map[entity.PostStatus]int64{}
}

// stubPipeline is scripted per test.
type stubPipeline struct {
	active   bool
	settings entity.ReplicationSettings
	queued   []int64
	sent     bool
}

func (p *stubPipeline) IsFullSyncActive() bool   { return p.active }
func (p *stubPipeline) IsFullSyncFinished() bool { return false }

func (p *stubPipeline) StartFullSync(ctx context.Context, ids []int64) error {
	p.queued = append([]int64(nil), ids...)
	p.sent = false
	return nil
}

func (p *stubPipeline) SendNextBatch(ctx context.Context) (repository.BatchProgress, error) {
	if p.sent || len(p.queued) == 0 {
		return repository.BatchProgress{QueueEmpty: true}, nil
	}
	p.sent = true
	return repository.BatchProgress{Sent: len(p.queued)}, nil
}

func (p *stubPipeline) GetSettings() entity.ReplicationSettings         { return p.settings }
func (p *stubPipeline) SetSettings(settings entity.ReplicationSettings) { p.settings = settings }

func newTestServer(t *testing.T, pipe *stubPipeline) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	post := &entity.Post{ID: 1, Type: entity.PostTypePost, Status: entity.PostStatusPublish, Content: "hello"}
	docs := &stubDocs{docs: map[int64]*entity.IndexedDocument{
		1: {
			PostID:      1,
			PostType:    "post",
			PostStatus:  "publish",
			ContentHash: post.ContentHash(),
		},
	}}
	posts := &stubPosts{posts: []*entity.Post{post}}

	logger := zap.NewNop()
	auditor := service.NewAuditor(docs, logger)
	dispatcher := service.NewRepairDispatcher(pipe, nil, logger)
	orchestrator := usecase.NewAuditOrchestrator(posts, docs, auditor, dispatcher, nil, nil, 100, logger)

	cfg := &config.Config{}
	cfg.Service.Name = "index-reconciler"
	cfg.HTTP.Port = "0"

	return NewServer(cfg, orchestrator, dispatcher, nil, nil, logger)
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleAudit(t *testing.T) {
	server := newTestServer(t, &stubPipeline{})

	rec := doRequest(server, http.MethodPost, "/api/v1/audit", AuditRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Passed)
	assert.Empty(t, resp.Failures)
	assert.NotEmpty(t, resp.RunID)
}

func TestHandleAuditBadBody(t *testing.T) {
	server := newTestServer(t, &stubPipeline{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSync(t *testing.T) {
	pipe := &stubPipeline{}
	server := newTestServer(t, pipe)

	rec := doRequest(server, http.MethodPost, "/api/v1/sync", SyncRequest{IDs: []int64{1, 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, pipe.queued)
}

func TestHandleSyncConflictWhileRunning(t *testing.T) {
	server := newTestServer(t, &stubPipeline{active: true})

	rec := doRequest(server, http.MethodPost, "/api/v1/sync", SyncRequest{IDs: []int64{1}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSyncMissingIDs(t *testing.T) {
	server := newTestServer(t, &stubPipeline{})

	rec := doRequest(server, http.MethodPost, "/api/v1/sync", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSummary(t *testing.T) {
	server := newTestServer(t, &stubPipeline{})

	rec := doRequest(server, http.MethodGet, "/api/v1/report/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary usecase.IndexSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.False(t, summary.GeneratedAt.IsZero())
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &stubPipeline{})

	rec := doRequest(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
