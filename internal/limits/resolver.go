// Package limits resolves configured usage limits for plan/metric pairs.
package limits

import (
	"context"
	"fmt"

	"github.com/smallbiznis/tollgate/internal/period"
	"github.com/smallbiznis/tollgate/internal/registry/domain"
)

// Resolver reads limits from the registry. It holds no state and never
// writes; a metric or period without a configured row is simply absent
// from the returned mapping.
type Resolver struct {
	repo domain.Repository
}

func NewResolver(repo domain.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// For returns the period→max mapping of one metric under one plan.
func (r *Resolver) For(ctx context.Context, serviceID, planID, metricID string) (map[period.Kind]int64, error) {
	rows, err := r.repo.UsageLimitsForMetric(ctx, serviceID, planID, metricID)
	if err != nil {
		return nil, fmt.Errorf("resolve limits: %w", err)
	}
	out := make(map[period.Kind]int64, len(rows))
	for _, row := range rows {
		out[row.Period] = row.MaxValue
	}
	return out, nil
}

// ForPlan returns every configured limit of a plan grouped by metric id.
// Metrics under the same plan are independent; there is no cross-metric
// aggregation.
func (r *Resolver) ForPlan(ctx context.Context, serviceID, planID string) (map[string]map[period.Kind]int64, error) {
	rows, err := r.repo.UsageLimits(ctx, serviceID, planID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan limits: %w", err)
	}
	out := make(map[string]map[period.Kind]int64)
	for _, row := range rows {
		byPeriod := out[row.MetricID]
		if byPeriod == nil {
			byPeriod = make(map[period.Kind]int64)
			out[row.MetricID] = byPeriod
		}
		byPeriod[row.Period] = row.MaxValue
	}
	return out, nil
}
