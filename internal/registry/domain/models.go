// Package domain contains the entities the decision engine resolves
// against: services, applications, metrics, plans and usage limits.
package domain

import (
	"time"

	"github.com/smallbiznis/tollgate/internal/period"
)

type ApplicationState string

const (
	StateActive    ApplicationState = "active"
	StateSuspended ApplicationState = "suspended"
)

// Service is a provider's distinct API product. At most one service per
// provider key carries the default flag at any instant; switching it is
// an explicit administrative action.
type Service struct {
	ID          string `gorm:"primaryKey"`
	ProviderKey string `gorm:"index;not null"`
	Default     bool   `gorm:"column:is_default;not null;default:false"`
	State       string `gorm:"not null;default:active"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Service) TableName() string { return "services" }

// Application is a consumer's registered credential set for a service.
// Version starts at 1 and increments by exactly 1 on every successful
// mutation; it is observational, not a conflict-detection token.
type Application struct {
	ServiceID   string           `gorm:"primaryKey"`
	ID          string           `gorm:"primaryKey"`
	PlanID      string           `gorm:"not null"`
	PlanName    string           `gorm:"not null"`
	State       ApplicationState `gorm:"not null;default:active"`
	RedirectURL string
	UserKey     string `gorm:"index"`
	Version     int64  `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Application) TableName() string { return "applications" }

// Active reports whether the application may be authorized.
func (a Application) Active() bool { return a.State == StateActive }

// Metric is a countable unit of API usage; names are unique per service.
type Metric struct {
	ServiceID string `gorm:"primaryKey;index:idx_metrics_service_name,unique"`
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null;index:idx_metrics_service_name,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Metric) TableName() string { return "metrics" }

// Plan is a named tier scoped to a service.
type Plan struct {
	ServiceID string `gorm:"primaryKey"`
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Plan) TableName() string { return "plans" }

// UsageLimit caps one metric for one plan at one period granularity.
// A (service, plan, metric) triple may carry zero or several of these;
// periods without a row are not enforced and never reported.
type UsageLimit struct {
	ServiceID string      `gorm:"primaryKey"`
	PlanID    string      `gorm:"primaryKey"`
	MetricID  string      `gorm:"primaryKey"`
	Period    period.Kind `gorm:"primaryKey"`
	MaxValue  int64       `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UsageLimit) TableName() string { return "usage_limits" }
