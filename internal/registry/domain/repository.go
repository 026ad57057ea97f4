package domain

import (
	"context"
	"errors"
)

var (
	ErrProviderNotFound    = errors.New("provider_not_found")
	ErrServiceNotFound     = errors.New("service_not_found")
	ErrNoDefaultService    = errors.New("no_default_service")
	ErrApplicationNotFound = errors.New("application_not_found")
	ErrApplicationExists   = errors.New("application_exists")
	ErrMetricNotFound      = errors.New("metric_not_found")
	ErrPlanNotFound        = errors.New("plan_not_found")
)

// Repository is the entity-lookup contract consumed by the authorization
// engine and the accounting workers, plus the administrative mutations
// exercised by tooling and tests. Reads always hit the store; default
// service changes must be visible to the next call.
type Repository interface {
	// Provider / service resolution.
	ProviderExists(ctx context.Context, providerKey string) (bool, error)
	FindService(ctx context.Context, id string) (*Service, error)
	DefaultService(ctx context.Context, providerKey string) (*Service, error)

	// Application resolution, scoped to a service. idOrKey matches the
	// application id first, then the secondary user key.
	FindApplication(ctx context.Context, serviceID, idOrKey string) (*Application, error)

	// Metric resolution.
	FindMetric(ctx context.Context, serviceID, id string) (*Metric, error)
	FindMetricByName(ctx context.Context, serviceID, name string) (*Metric, error)

	// Usage limits.
	UsageLimits(ctx context.Context, serviceID, planID string) ([]UsageLimit, error)
	UsageLimitsForMetric(ctx context.Context, serviceID, planID, metricID string) ([]UsageLimit, error)

	// Administrative mutations.
	SaveService(ctx context.Context, svc *Service) error
	MakeDefaultService(ctx context.Context, providerKey, serviceID string) error
	CreateApplication(ctx context.Context, app *Application) error
	UpdateApplication(ctx context.Context, app *Application) error
	SaveMetric(ctx context.Context, metric *Metric) error
	SavePlan(ctx context.Context, plan *Plan) error
	SaveUsageLimit(ctx context.Context, limit *UsageLimit) error
}
