package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo serves one annual policy and counts the lookups that reach it.
type countingRepo struct {
	current  policy.LeavePolicy
	byType   int
	byID     int
	overtime int
}

func (r *countingRepo) FindLeavePoliciesByType(context.Context, generic.LeaveTypeID) ([]policy.LeavePolicy, error) {
	r.byType++
	return []policy.LeavePolicy{r.current}, nil
}

func (r *countingRepo) FindActiveOvertimePolicies(context.Context) ([]overtime.Policy, error) {
	r.overtime++
	return []overtime.Policy{overtime.DefaultPolicy()}, nil
}

func (r *countingRepo) FindByID(_ context.Context, id generic.PolicyID) (policy.Record, error) {
	r.byID++
	if id != r.current.ID {
		return policy.Record{}, generic.NotFound("policy", string(id))
	}
	p := r.current
	return policy.Record{Kind: policy.KindLeave, Leave: &p}, nil
}

func TestCachedRepository_ServesWithinTTL(t *testing.T) {
	// GIVEN: A one-minute cache
	ctx := context.Background()
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	inner := &countingRepo{current: annualPolicy("annual-standard")}
	cache := policy.NewCachedRepository(inner, time.Minute).WithClock(func() time.Time { return now })

	// WHEN: Each lookup is repeated before expiry
	for range 3 {
		_, err := cache.FindLeavePoliciesByType(ctx, "annual")
		require.NoError(t, err)
		_, err = cache.FindActiveOvertimePolicies(ctx)
		require.NoError(t, err)
	}

	// THEN: The store is hit once per lookup kind
	assert.Equal(t, 1, inner.byType)
	assert.Equal(t, 1, inner.overtime)

	// AND: Expiry sends the next lookup through
	now = now.Add(2 * time.Minute)
	_, err := cache.FindLeavePoliciesByType(ctx, "annual")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.byType)
}

func TestCachedRepository_NewVersionDropsStaleEntries(t *testing.T) {
	// GIVEN: Version 1 cached under both lookups
	ctx := context.Background()
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	inner := &countingRepo{current: annualPolicy("annual-standard")}
	cache := policy.NewCachedRepository(inner, time.Minute).WithClock(func() time.Time { return now })

	_, err := cache.FindByID(ctx, "annual-standard")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = cache.FindLeavePoliciesByType(ctx, "annual")
	require.NoError(t, err)

	// WHEN: The policy is saved as version 2 and only the ID entry expires
	inner.current.Version = 2
	now = now.Add(31 * time.Second)
	rec, err := cache.FindByID(ctx, "annual-standard")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version())

	// THEN: The type lookup no longer serves version 1
	policies, err := cache.FindLeavePoliciesByType(ctx, "annual")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, 2, policies[0].Version)
	assert.Equal(t, 2, inner.byType)
}

func TestCachedRepository_InvalidateAndErrors(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{current: annualPolicy("annual-standard")}
	cache := policy.NewCachedRepository(inner, time.Hour)

	_, err := cache.FindByID(ctx, "annual-standard")
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.FindByID(ctx, "annual-standard")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.byID)

	_, err = cache.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
