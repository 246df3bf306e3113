package tenant

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/infrastructure/database"
	"github.com/contentplane/index-reconciler/infrastructure/elasticsearch"
	"github.com/contentplane/index-reconciler/usecase"
)

// ScopeSwitcher retargets the primary-store repository and the document
// store at one tenant's data partition (schema and index respectively).
// The fleet runner uses it as a scoped guard: switch in, audit, switch
// back to the starting tenant.
type ScopeSwitcher struct {
	posts  *database.PostgresPostRepository
	docs   *elasticsearch.Store
	logger *zap.Logger

	mu      sync.RWMutex
	current entity.TenantContext
}

var _ usecase.TenantSwitcher = (*ScopeSwitcher)(nil)

// NewScopeSwitcher creates a switcher with the given starting tenant.
func NewScopeSwitcher(posts *database.PostgresPostRepository, docs *elasticsearch.Store, start entity.TenantContext, logger *zap.Logger) *ScopeSwitcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScopeSwitcher{
		posts:   posts,
		docs:    docs,
		logger:  logger,
		current: start,
	}
}

// Current returns the tenant currently in effect.
func (s *ScopeSwitcher) Current() entity.TenantContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Switch retargets both stores at the given tenant.
func (s *ScopeSwitcher) Switch(ctx context.Context, tenant entity.TenantContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts.UseTenant(tenant)
	s.docs.UseTenant(tenant)
	s.current = tenant

	s.logger.Debug("Tenant context switched", zap.String("tenant_id", tenant.TenantID))
	return nil
}
