// Package repository implements the registry contract on GORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/tollgate/internal/registry/domain"
	"github.com/smallbiznis/tollgate/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the registry schema.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&domain.Service{},
		&domain.Application{},
		&domain.Metric{},
		&domain.Plan{},
		&domain.UsageLimit{},
	)
}

func (r *Repository) ProviderExists(ctx context.Context, providerKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Service{}).
		Where("provider_key = ?", providerKey).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count services by provider: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) FindService(ctx context.Context, id string) (*domain.Service, error) {
	var svc domain.Service
	err := r.db.WithContext(ctx).First(&svc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrServiceNotFound
		}
		return nil, fmt.Errorf("find service: %w", err)
	}
	return &svc, nil
}

func (r *Repository) DefaultService(ctx context.Context, providerKey string) (*domain.Service, error) {
	var svc domain.Service
	err := r.db.WithContext(ctx).
		Where("provider_key = ? AND is_default", providerKey).
		First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoDefaultService
		}
		return nil, fmt.Errorf("find default service: %w", err)
	}
	return &svc, nil
}

func (r *Repository) FindApplication(ctx context.Context, serviceID, idOrKey string) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND id = ?", serviceID, idOrKey).
		First(&app).Error
	if err == nil {
		return &app, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find application by id: %w", err)
	}

	err = r.db.WithContext(ctx).
		Where("service_id = ? AND user_key = ? AND user_key <> ''", serviceID, idOrKey).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("find application by user key: %w", err)
	}
	return &app, nil
}

func (r *Repository) FindMetric(ctx context.Context, serviceID, id string) (*domain.Metric, error) {
	var metric domain.Metric
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND id = ?", serviceID, id).
		First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMetricNotFound
		}
		return nil, fmt.Errorf("find metric by id: %w", err)
	}
	return &metric, nil
}

func (r *Repository) FindMetricByName(ctx context.Context, serviceID, name string) (*domain.Metric, error) {
	var metric domain.Metric
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND name = ?", serviceID, strings.TrimSpace(name)).
		First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMetricNotFound
		}
		return nil, fmt.Errorf("find metric: %w", err)
	}
	return &metric, nil
}

func (r *Repository) UsageLimits(ctx context.Context, serviceID, planID string) ([]domain.UsageLimit, error) {
	var limits []domain.UsageLimit
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND plan_id = ?", serviceID, planID).
		Order("metric_id, period").
		Find(&limits).Error
	if err != nil {
		return nil, fmt.Errorf("list usage limits: %w", err)
	}
	return limits, nil
}

func (r *Repository) UsageLimitsForMetric(ctx context.Context, serviceID, planID, metricID string) ([]domain.UsageLimit, error) {
	var limits []domain.UsageLimit
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND plan_id = ? AND metric_id = ?", serviceID, planID, metricID).
		Order("period").
		Find(&limits).Error
	if err != nil {
		return nil, fmt.Errorf("list usage limits for metric: %w", err)
	}
	return limits, nil
}

func (r *Repository) SaveService(ctx context.Context, svc *domain.Service) error {
	if svc == nil || svc.ID == "" || svc.ProviderKey == "" {
		return domain.ErrServiceNotFound
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(svc).Error
	if err != nil {
		return fmt.Errorf("save service: %w", err)
	}
	return nil
}

// MakeDefaultService atomically moves the provider's default flag. The
// change is immediately visible to subsequent resolution calls; nothing
// caches this mapping.
func (r *Repository) MakeDefaultService(ctx context.Context, providerKey, serviceID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc domain.Service
		err := tx.Where("id = ? AND provider_key = ?", serviceID, providerKey).First(&svc).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrServiceNotFound
			}
			return fmt.Errorf("resolve service for default switch: %w", err)
		}

		if err := tx.Model(&domain.Service{}).
			Where("provider_key = ? AND is_default", providerKey).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("clear previous default: %w", err)
		}

		if err := tx.Model(&domain.Service{}).
			Where("id = ?", serviceID).
			Update("is_default", true).Error; err != nil {
			return fmt.Errorf("set default service: %w", err)
		}
		return nil
	})
}

func (r *Repository) CreateApplication(ctx context.Context, app *domain.Application) error {
	if app == nil {
		return domain.ErrApplicationNotFound
	}
	app.Version = 1
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrApplicationExists
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdateApplication persists mutable fields and bumps Version by exactly 1.
func (r *Repository) UpdateApplication(ctx context.Context, app *domain.Application) error {
	if app == nil {
		return domain.ErrApplicationNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("service_id = ? AND id = ?", app.ServiceID, app.ID).
		Updates(map[string]any{
			"plan_id":      app.PlanID,
			"plan_name":    app.PlanName,
			"state":        app.State,
			"redirect_url": app.RedirectURL,
			"user_key":     app.UserKey,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("update application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrApplicationNotFound
	}

	var version int64
	err := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("service_id = ? AND id = ?", app.ServiceID, app.ID).
		Pluck("version", &version).Error
	if err != nil {
		return fmt.Errorf("reload application version: %w", err)
	}
	app.Version = version
	return nil
}

func (r *Repository) SaveMetric(ctx context.Context, metric *domain.Metric) error {
	if metric == nil || metric.ID == "" {
		return domain.ErrMetricNotFound
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(metric).Error
	if err != nil {
		return fmt.Errorf("save metric: %w", err)
	}
	return nil
}

func (r *Repository) SavePlan(ctx context.Context, plan *domain.Plan) error {
	if plan == nil || plan.ID == "" {
		return domain.ErrPlanNotFound
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(plan).Error
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *Repository) SaveUsageLimit(ctx context.Context, limit *domain.UsageLimit) error {
	if limit == nil || !limit.Period.Valid() {
		return fmt.Errorf("invalid usage limit")
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "service_id"}, {Name: "plan_id"},
				{Name: "metric_id"}, {Name: "period"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"max_value", "updated_at"}),
		}).
		Create(limit).Error
	if err != nil {
		return fmt.Errorf("save usage limit: %w", err)
	}
	return nil
}
