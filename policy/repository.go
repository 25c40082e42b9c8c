package policy

import (
	"context"
	"sync"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
)

// Repository supplies versioned policies. Read-only from the engine's side.
type Repository interface {
	FindLeavePoliciesByType(ctx context.Context, leaveType generic.LeaveTypeID) ([]LeavePolicy, error)
	FindActiveOvertimePolicies(ctx context.Context) ([]overtime.Policy, error)
	FindByID(ctx context.Context, id generic.PolicyID) (Record, error)
}

// =============================================================================
// CACHED REPOSITORY - Short TTL cache in front of the store
// =============================================================================

// CachedRepository caches lookups for TTL. A FindByID that observes a newer
// version than a cached entry drops the whole cache so type lookups do not
// serve the stale version.
type CachedRepository struct {
	inner Repository
	ttl   time.Duration
	now   func() time.Time

	mu       sync.RWMutex
	byType   map[generic.LeaveTypeID]cacheEntry[[]LeavePolicy]
	byID     map[generic.PolicyID]cacheEntry[Record]
	overtime *cacheEntry[[]overtime.Policy]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func NewCachedRepository(inner Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		inner:  inner,
		ttl:    ttl,
		now:    time.Now,
		byType: make(map[generic.LeaveTypeID]cacheEntry[[]LeavePolicy]),
		byID:   make(map[generic.PolicyID]cacheEntry[Record]),
	}
}

// WithClock overrides the clock used for expiry (tests).
func (c *CachedRepository) WithClock(now func() time.Time) *CachedRepository {
	c.now = now
	return c
}

func (c *CachedRepository) FindLeavePoliciesByType(ctx context.Context, leaveType generic.LeaveTypeID) ([]LeavePolicy, error) {
	c.mu.RLock()
	e, ok := c.byType[leaveType]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.value, nil
	}

	policies, err := c.inner.FindLeavePoliciesByType(ctx, leaveType)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byType[leaveType] = cacheEntry[[]LeavePolicy]{value: policies, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return policies, nil
}

func (c *CachedRepository) FindActiveOvertimePolicies(ctx context.Context) ([]overtime.Policy, error) {
	c.mu.RLock()
	e := c.overtime
	c.mu.RUnlock()
	if e != nil && c.now().Before(e.expiresAt) {
		return e.value, nil
	}

	policies, err := c.inner.FindActiveOvertimePolicies(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.overtime = &cacheEntry[[]overtime.Policy]{value: policies, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return policies, nil
}

func (c *CachedRepository) FindByID(ctx context.Context, id generic.PolicyID) (Record, error) {
	c.mu.RLock()
	e, ok := c.byID[id]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.value, nil
	}

	rec, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return Record{}, err
	}
	c.mu.Lock()
	if ok && e.value.Version() != rec.Version() {
		c.resetLocked()
	}
	c.byID[id] = cacheEntry[Record]{value: rec, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return rec, nil
}

// Invalidate drops every cached entry. Call after saving a policy.
func (c *CachedRepository) Invalidate() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *CachedRepository) resetLocked() {
	c.byType = make(map[generic.LeaveTypeID]cacheEntry[[]LeavePolicy])
	c.byID = make(map[generic.PolicyID]cacheEntry[Record])
	c.overtime = nil
}
