package authorizer

import (
	"context"
	"errors"
	"sort"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/smallbiznis/tollgate/internal/backenderrors"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/counter"
	"github.com/smallbiznis/tollgate/internal/limits"
	"github.com/smallbiznis/tollgate/internal/period"
	regdomain "github.com/smallbiznis/tollgate/internal/registry/domain"
)

// AuthorizeRequest carries the credentials and the optional predicted usage
// for a single authorization query.
type AuthorizeRequest struct {
	ProviderKey string
	ServiceID   string // optional; empty means the provider's default service
	AppID       string // application id or user key
	Usage       map[string]int64
}

// UsageReport describes the standing of one metric in one limited period.
// Eternity reports carry no period bounds.
type UsageReport struct {
	Metric       string      `json:"metric"`
	Period       period.Kind `json:"period"`
	PeriodStart  *time.Time  `json:"period_start,omitempty"`
	PeriodEnd    *time.Time  `json:"period_end,omitempty"`
	CurrentValue int64       `json:"current_value"`
	MaxValue     int64       `json:"max_value"`
	Exceeded     bool        `json:"exceeded,omitempty"`
}

// Verdict is the outcome of an authorization query once the credential chain
// has resolved. A non-authorized verdict is a valid answer, not an error.
type Verdict struct {
	Authorized   bool          `json:"authorized"`
	Reason       string        `json:"reason,omitempty"`
	Plan         string        `json:"plan"`
	UsageReports []UsageReport `json:"usage_reports,omitempty"`
}

// Engine answers authorization queries. It is a pure read path: counters are
// inspected, never written, and predicted usage is applied only to the
// exceedance test.
type Engine struct {
	log      *zap.Logger
	repo     regdomain.Repository
	limits   *limits.Resolver
	counters *counter.Store
	clock    clock.Clock
}

func NewEngine(log *zap.Logger, repo regdomain.Repository, resolver *limits.Resolver, counters *counter.Store, clk clock.Clock) *Engine {
	return &Engine{
		log:      log.Named("authorizer"),
		repo:     repo,
		limits:   resolver,
		counters: counters,
		clock:    clk,
	}
}

// Authorize resolves the credential chain and evaluates the application's
// usage limits. Resolution failures come back as *backenderrors.Error;
// limit exceedance and inactive applications come back as a verdict with
// Authorized=false.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (*Verdict, error) {
	if err := validateEncoding(req); err != nil {
		return nil, err
	}

	ok, err := e.repo.ProviderExists(ctx, req.ProviderKey)
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}
	if !ok {
		return nil, backenderrors.ProviderKeyInvalid(req.ProviderKey)
	}

	svc, err := e.resolveService(ctx, req.ProviderKey, req.ServiceID)
	if err != nil {
		return nil, err
	}

	if req.AppID == "" {
		return nil, backenderrors.ApplicationNotFound(req.AppID)
	}
	app, err := e.repo.FindApplication(ctx, svc.ID, req.AppID)
	if err != nil {
		if errors.Is(err, regdomain.ErrApplicationNotFound) {
			return nil, backenderrors.ApplicationNotFound(req.AppID)
		}
		return nil, backenderrors.StorageUnavailable(err)
	}

	usage, err := e.resolveUsage(ctx, svc.ID, req.Usage)
	if err != nil {
		return nil, err
	}

	reports, exceeded, err := e.evaluate(ctx, svc.ID, app, usage)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{
		Authorized:   true,
		Plan:         app.PlanName,
		UsageReports: reports,
	}
	switch {
	case !app.Active():
		verdict.Authorized = false
		verdict.Reason = backenderrors.ApplicationNotActive().Message
	case exceeded:
		verdict.Authorized = false
		verdict.Reason = backenderrors.LimitsExceeded().Message
	}
	return verdict, nil
}

func (e *Engine) resolveService(ctx context.Context, providerKey, serviceID string) (*regdomain.Service, error) {
	if serviceID != "" {
		svc, err := e.repo.FindService(ctx, serviceID)
		if err != nil {
			if errors.Is(err, regdomain.ErrServiceNotFound) {
				return nil, backenderrors.ServiceIDInvalid(serviceID)
			}
			return nil, backenderrors.StorageUnavailable(err)
		}
		// An explicit service id must belong to the caller's provider;
		// it never falls back to the default service.
		if svc.ProviderKey != providerKey {
			return nil, backenderrors.ServiceIDInvalid(serviceID)
		}
		return svc, nil
	}
	svc, err := e.repo.DefaultService(ctx, providerKey)
	if err != nil {
		if errors.Is(err, regdomain.ErrNoDefaultService) {
			return nil, backenderrors.ProviderKeyInvalid(providerKey)
		}
		return nil, backenderrors.StorageUnavailable(err)
	}
	return svc, nil
}

// resolveUsage maps the requested metric names to metric ids. Unknown names
// and negative values fail the query before any counter is read.
func (e *Engine) resolveUsage(ctx context.Context, serviceID string, usage map[string]int64) (map[string]int64, error) {
	if len(usage) == 0 {
		return nil, nil
	}
	byID := make(map[string]int64, len(usage))
	for name, value := range usage {
		if value < 0 {
			return nil, backenderrors.UsageInvalid("usage values must be non-negative integers")
		}
		metric, err := e.repo.FindMetricByName(ctx, serviceID, name)
		if err != nil {
			if errors.Is(err, regdomain.ErrMetricNotFound) {
				return nil, backenderrors.MetricInvalid(name)
			}
			return nil, backenderrors.StorageUnavailable(err)
		}
		byID[metric.ID] += value
	}
	return byID, nil
}

// evaluate builds one usage report per limited (metric, period) pair and
// tests each against the hypothetical value with the predicted delta applied.
// Periods without a configured limit never produce a report.
func (e *Engine) evaluate(ctx context.Context, serviceID string, app *regdomain.Application, usageByID map[string]int64) ([]UsageReport, bool, error) {
	planLimits, err := e.limits.ForPlan(ctx, serviceID, app.PlanID)
	if err != nil {
		return nil, false, backenderrors.StorageUnavailable(err)
	}
	if len(planLimits) == 0 {
		return nil, false, nil
	}

	now := e.clock.Now()

	type slot struct {
		metricID string
		window   period.Window
		max      int64
	}
	metricIDs := make([]string, 0, len(planLimits))
	for metricID := range planLimits {
		metricIDs = append(metricIDs, metricID)
	}
	sort.Strings(metricIDs)

	var slots []slot
	var keys []counter.Key
	for _, metricID := range metricIDs {
		for _, kind := range period.Kinds {
			max, ok := planLimits[metricID][kind]
			if !ok {
				continue
			}
			w := period.For(kind, now)
			slots = append(slots, slot{metricID: metricID, window: w, max: max})
			keys = append(keys, counter.Key{
				ServiceID:     serviceID,
				ApplicationID: app.ID,
				MetricID:      metricID,
				Window:        w,
			})
		}
	}

	values, err := e.counters.Values(ctx, keys)
	if err != nil {
		return nil, false, err
	}

	names := make(map[string]string, len(planLimits))
	reports := make([]UsageReport, 0, len(slots))
	exceeded := false
	for i, s := range slots {
		name, ok := names[s.metricID]
		if !ok {
			metric, err := e.repo.FindMetric(ctx, serviceID, s.metricID)
			if err != nil {
				return nil, false, backenderrors.StorageUnavailable(err)
			}
			name = metric.Name
			names[s.metricID] = name
		}

		report := UsageReport{
			Metric:       name,
			Period:       s.window.Kind,
			CurrentValue: values[i],
			MaxValue:     s.max,
		}
		if s.window.Bounded() {
			start, end := s.window.Start, s.window.End
			report.PeriodStart = &start
			report.PeriodEnd = &end
		}
		if values[i]+usageByID[s.metricID] > s.max {
			report.Exceeded = true
			exceeded = true
		}
		reports = append(reports, report)
	}
	return reports, exceeded, nil
}

func validateEncoding(req AuthorizeRequest) error {
	if !utf8.ValidString(req.ProviderKey) || !utf8.ValidString(req.ServiceID) || !utf8.ValidString(req.AppID) {
		return backenderrors.NotValidData()
	}
	for name := range req.Usage {
		if !utf8.ValidString(name) {
			return backenderrors.NotValidData()
		}
	}
	return nil
}
