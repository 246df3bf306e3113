package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// Config represents the Elasticsearch connection configuration.
type Config struct {
	Addresses   []string      `mapstructure:"addresses"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	IndexPrefix string        `mapstructure:"index_prefix"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig contains circuit breaker configuration.
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// Store implements repository.DocumentStore against an Elasticsearch index.
// Every call goes through a circuit breaker; read paths degrade to empty
// results on store failure, keeping counting and reporting code alive
// through transient index outages.
type Store struct {
	config  Config
	client  *elasticsearch.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu    sync.RWMutex
	index string
}

var _ repository.DocumentStore = (*Store)(nil)

// NewStore creates a document store bound to the given tenant's index.
func NewStore(config Config, tenant entity.TenantContext, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:            config.Addresses,
		Username:             config.Username,
		Password:   config.Password,
		MaxRetries: config.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	store := &Store{
		config: config,
		client: esClient,
		logger: logger,
	}
	store.index = store.indexFor(tenant)

	store.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "document-store",
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	logger.Info("Document store initialized",
		zap.Strings("addresses", config.Addresses),
		zap.String("index", store.index))

	return store, nil
}

// UseTenant retargets the store at another tenant's index.
func (s *Store) UseTenant(tenant entity.TenantContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = s.indexFor(tenant)
}

// Search runs a structured query. On store failure the result is empty and
// the error is returned as a side channel for callers that need it.
func (s *Store) Search(ctx context.Context, query repository.SearchQuery) (*repository.SearchResult, error) {
	result := &repository.SearchResult{Documents: []*entity.IndexedDocument{}}

	env, err := s.doSearch(ctx, buildQueryBody(query))
	if err != nil {
		s.logger.Warn("Search degraded to empty result", zap.Error(err))
		return result, err
	}
	if env.Hits == nil {
		return result, entity.ErrMalformedEnvelope
	}

	result.Total = env.Hits.Total.Value
	for i := range env.Hits.Hits {
		doc := env.Hits.Hits[i].Source
		result.Documents = append(result.Documents, &doc)
	}
	return result, nil
}

// FetchByID fetches one document; absent covers both miss and store failure.
func (s *Store) FetchByID(ctx context.Context, id int64) (*entity.IndexedDocument, bool) {
	docs, err := s.FetchByIDs(ctx, []int64{id})
	if err != nil {
		return nil, false
	}
	doc, ok := docs[id]
	return doc, ok
}

// FetchByIDs fetches the whole identifier set in one round trip. This is
// the throughput-critical path for batch auditing and, unlike the other
// read paths, it fails hard on transport errors and malformed envelopes.
func (s *Store) FetchByIDs(ctx context.Context, ids []int64) (map[int64]*entity.IndexedDocument, error) {
	docs := make(map[int64]*entity.IndexedDocument, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	env, err := s.doSearch(ctx, buildQueryBody(repository.SearchQuery{IDs: ids, Size: len(ids)}))
	if err != nil {
		if errors.Is(err, entity.ErrMalformedEnvelope) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	if env.Hits == nil {
		return nil, entity.ErrMalformedEnvelope
	}

	for i := range env.Hits.Hits {
		doc := env.Hits.Hits[i].Source
		docs[doc.PostID] = &doc
	}
	return docs, nil
}

// CountByTypeStatus aggregates document counts grouped by post type and
// status. Degrades to an empty map on store failure.
func (s *Store) CountByTypeStatus(ctx context.Context) map[entity.PostType]map[entity.PostStatus]int64 {
	counts := make(map[entity.PostType]map[entity.PostStatus]int64)

	body := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"types": map[string]interface{}{
				"terms": map[string]interface{}{"field": "post_type", "size": 50},
				"aggs": map[string]interface{}{
					"statuses": map[string]interface{}{
						"terms": map[string]interface{}{"field": "post_status", "size": 50},
					},
				},
			},
		},
	}

	env, err := s.doSearch(ctx, body)
	if err != nil {
		s.logger.Warn("Count aggregation degraded to empty result", zap.Error(err))
		return counts
	}

	types, ok := env.Aggregations["types"]
	if !ok {
		return counts
	}
	for _, bucket := range types.Buckets {
		postType := entity.PostType(bucket.Key)
		counts[postType] = make(map[entity.PostStatus]int64)
		if bucket.Statuses == nil {
			continue
		}
		for _, status := range bucket.Statuses.Buckets {
			counts[postType][entity.PostStatus(status.Key)] = status.DocCount
		}
	}
	return counts
}

func (s *Store) currentIndex() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *Store) indexFor(tenant entity.TenantContext) string {
	prefix := s.config.IndexPrefix
	if prefix == "" {
		prefix = "content"
	}
	return fmt.Sprintf("%s-%s-posts", prefix, tenant.TenantID)
}

// doSearch executes one search request with circuit breaker protection and
// decodes the result envelope.
func (s *Store) doSearch(ctx context.Context, body map[string]interface{}) (*searchEnvelope, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, errors.Wrap(err, "failed to encode query")
		}

		req := esapi.SearchRequest{
			Index: []string{s.currentIndex()},
			Body:  &buf,
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return nil, errors.Wrap(err, "search request failed")
		}
		defer res.Body.Close()

		if res.IsError() {
			raw, _ := io.ReadAll(res.Body)
			return nil, errors.Errorf("search failed with status %s: %s", res.Status(), string(raw))
		}

		var env searchEnvelope
		if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
			return nil, errors.Wrap(entity.ErrMalformedEnvelope, err.Error())
		}
		return &env, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*searchEnvelope), nil
}

// buildQueryBody translates a structured query into the index's DSL.
func buildQueryBody(query repository.SearchQuery) map[string]interface{} {
	filters := make([]map[string]interface{}, 0, 3)
	if len(query.IDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"post_id": query.IDs},
		})
	}
	if len(query.Types) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"post_type": query.Types},
		})
	}
	if len(query.Statuses) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"post_status": query.Statuses},
		})
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}
	if query.Size > 0 {
		body["size"] = query.Size
	}
	return body
}

// searchEnvelope is the semi-stable result envelope contract shared with
// the replication pipeline's indexer.
type searchEnvelope struct {
	Took         int                    `json:"took"`
	TimedOut     bool                   `json:"timed_out"`
	Hits         *hitsEnvelope          `json:"hits"`
	Aggregations map[string]aggEnvelope `json:"aggregations"`
}

type hitsEnvelope struct {
	Total struct {
		Value int64 `json:"value"`
	} `json:"total"`
	Hits []documentHit `json:"hits"`
}

type documentHit struct {
	ID     string                 `json:"_id"`
	Source entity.IndexedDocument `json:"_source"`
}

type aggEnvelope struct {
	Buckets []aggBucket `json:"buckets"`
}

type aggBucket struct {
	Key      string       `json:"key"`
	DocCount int64        `json:"doc_count"`
	Statuses *aggEnvelope `json:"statuses"`
}
