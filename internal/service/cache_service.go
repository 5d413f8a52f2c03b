package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

const defaultCacheTTL = 10 * time.Minute

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheOptions configures CacheService. Namespace is prepended to every key
// so several deployments can share one Redis database.
type CacheOptions struct {
	Enabled   bool
	TTL       time.Duration
	Namespace string
}

// CacheService fronts the analytics read-through cache. A nil or disabled
// service reports every read as a miss and ignores writes.
type CacheService struct {
	repo    CacheRepository
	opts    CacheOptions
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, opts CacheOptions, metrics *MetricsService, logger *zap.Logger) *CacheService {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	opts.Namespace = strings.Trim(opts.Namespace, ":")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, opts: opts, metrics: metrics, logger: logger}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.opts.Enabled && s.repo != nil
}

// TTL returns the expiry applied when callers pass a zero ttl.
func (s *CacheService) TTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.opts.TTL
}

// Get loads key into dest and reports whether the entry was present. Misses
// are not errors; transport failures are returned so callers can log them.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, s.key(key), dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}

// Set stores value under key. A non-positive ttl falls back to the configured one.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.opts.TTL
	}
	start := time.Now()
	defer func() { s.metrics.ObserveCacheWrite(time.Since(start)) }()
	return s.repo.Set(ctx, s.key(key), value, ttl)
}

// Invalidate drops every entry matching the glob pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, s.key(pattern)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

func (s *CacheService) key(k string) string {
	if s.opts.Namespace == "" {
		return k
	}
	return s.opts.Namespace + ":" + k
}
