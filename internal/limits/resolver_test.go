package limits

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tollgate/internal/period"
	"github.com/smallbiznis/tollgate/internal/registry/domain"
	"github.com/smallbiznis/tollgate/internal/registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newResolver(t *testing.T) (*Resolver, domain.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo := repository.New(db)
	require.NoError(t, repo.Migrate())
	return NewResolver(repo), repo
}

func TestFor_EmptyWhenUnconfigured(t *testing.T) {
	resolver, _ := newResolver(t)

	limits, err := resolver.For(context.Background(), "1001", "p1", "m1")
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestFor_OnlyConfiguredPeriods(t *testing.T) {
	resolver, repo := newResolver(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveUsageLimit(ctx, &domain.UsageLimit{
		ServiceID: "1001", PlanID: "p1", MetricID: "m1", Period: period.Day, MaxValue: 100,
	}))
	require.NoError(t, repo.SaveUsageLimit(ctx, &domain.UsageLimit{
		ServiceID: "1001", PlanID: "p1", MetricID: "m1", Period: period.Eternity, MaxValue: 10,
	}))

	limits, err := resolver.For(ctx, "1001", "p1", "m1")
	require.NoError(t, err)
	assert.Equal(t, map[period.Kind]int64{
		period.Day:      100,
		period.Eternity: 10,
	}, limits)

	// Other plans and metrics stay independent.
	limits, err = resolver.For(ctx, "1001", "p2", "m1")
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestForPlan_GroupsByMetric(t *testing.T) {
	resolver, repo := newResolver(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveUsageLimit(ctx, &domain.UsageLimit{
		ServiceID: "1001", PlanID: "p1", MetricID: "m1", Period: period.Day, MaxValue: 4,
	}))
	require.NoError(t, repo.SaveUsageLimit(ctx, &domain.UsageLimit{
		ServiceID: "1001", PlanID: "p1", MetricID: "m1", Period: period.Month, MaxValue: 10,
	}))
	require.NoError(t, repo.SaveUsageLimit(ctx, &domain.UsageLimit{
		ServiceID: "1001", PlanID: "p1", MetricID: "m2", Period: period.Hour, MaxValue: 60,
	}))

	byMetric, err := resolver.ForPlan(ctx, "1001", "p1")
	require.NoError(t, err)
	require.Len(t, byMetric, 2)
	assert.EqualValues(t, 4, byMetric["m1"][period.Day])
	assert.EqualValues(t, 10, byMetric["m1"][period.Month])
	assert.EqualValues(t, 60, byMetric["m2"][period.Hour])
}
