package authz

import (
	"context"
	"time"

	"github.com/strideworks/stride/pkg/observability"
)

// ContextBuilder assembles UserContexts from storage, with a cache in front.
// The derived context is read-only to consumers; anything that changes the
// underlying rows goes through the assignment lifecycle, which invalidates.
type ContextBuilder struct {
	store   *Store
	cache   ContextCache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// BuilderOption configures a ContextBuilder.
type BuilderOption func(*ContextBuilder)

// WithBuilderLogger sets the structured logger.
func WithBuilderLogger(l *observability.Logger) BuilderOption {
	return func(b *ContextBuilder) { b.logger = l }
}

// WithBuilderMetrics sets the metrics collector.
func WithBuilderMetrics(m *observability.Metrics) BuilderOption {
	return func(b *ContextBuilder) { b.metrics = m }
}

// NewContextBuilder creates a builder. The cache may be nil, in which case
// every call builds from storage.
func NewContextBuilder(store *Store, cache ContextCache, opts ...BuilderOption) *ContextBuilder {
	b := &ContextBuilder{store: store, cache: cache}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildUserContext returns the user's derived context, from cache when
// possible. Cache read failures fall through to a rebuild; storage failures
// propagate as errors and never come back as an empty context.
func (b *ContextBuilder) BuildUserContext(ctx context.Context, userID string) (*UserContext, error) {
	if b.cache != nil {
		if uc, err := b.cache.Get(ctx, userID); err == nil && uc != nil {
			return uc, nil
		}
	}

	uc, err := b.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, uc); err != nil && b.logger != nil {
			b.logger.WithError(err).WithField("user_id", userID).Warn("failed to cache user context")
		}
	}
	return uc, nil
}

// BuildUserContextUncached builds from storage, skipping both the cache read
// and the write-through. Admin surfaces use it to see the effect of a grant
// without waiting out the TTL.
func (b *ContextBuilder) BuildUserContextUncached(ctx context.Context, userID string) (*UserContext, error) {
	return b.build(ctx, userID)
}

func (b *ContextBuilder) build(ctx context.Context, userID string) (*UserContext, error) {
	start := time.Now()

	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignments, err := b.store.ListRoleAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	directReports, err := b.store.ListDirectReports(ctx, userID)
	if err != nil {
		return nil, err
	}

	uc := &UserContext{
		UserID:          user.ID,
		IsSuperuser:     user.IsSuperuser,
		RoleAssignments: assignments,
		DirectReports:   directReports,
		ManagerID:       user.ManagerID,
	}
	normalizeScopeMaps(uc)

	if b.metrics != nil {
		b.metrics.ContextBuildDuration.Observe(time.Since(start).Seconds())
	}
	return uc, nil
}

// Invalidate drops the user's cached context so the next check rebuilds it.
func (b *ContextBuilder) Invalidate(ctx context.Context, userID string) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Invalidate(ctx, userID)
}
