package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentplane/index-reconciler/domain/entity"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "index-reconciler", cfg.Service.Name)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 100, cfg.Audit.BatchSize)
	assert.Equal(t, []string{"post", "page"}, cfg.Audit.PublicPostTypes)
	assert.Equal(t, "content.reindex", cfg.Pipeline.Topic)
	assert.Positive(t, cfg.Pipeline.QueueCap)
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		Database: "content",
		Username: "svc",
		Password: "secret",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=svc password=secret dbname=content sslmode=require",
		db.GetDSN())
}

func TestGetRedisAddr(t *testing.T) {
	c := CacheConfig{Host: "cache.internal", Port: "6380"}
	assert.Equal(t, "cache.internal:6380", c.GetRedisAddr())
}

func TestAuditPostTypes(t *testing.T) {
	c := AuditConfig{PublicPostTypes: []string{"post", "page"}}
	assert.Equal(t, []entity.PostType{entity.PostTypePost, entity.PostTypePage}, c.PostTypes())
}
