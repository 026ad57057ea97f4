package reporter

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/tollgate/internal/backenderrors"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/queue"
	regdomain "github.com/smallbiznis/tollgate/internal/registry/domain"
)

// Service accepts report calls. Acceptance is synchronous and cheap:
// the caller's credentials and the payload shape are checked, then the
// job is queued. Per-transaction resolution happens in the workers.
type Service struct {
	log     *zap.Logger
	repo    regdomain.Repository
	queue   *queue.Queue
	metrics *metrics.Metrics
	clock   clock.Clock
	genID   *snowflake.Node
}

func NewService(log *zap.Logger, repo regdomain.Repository, q *queue.Queue, m *metrics.Metrics, clk clock.Clock, genID *snowflake.Node) *Service {
	return &Service{
		log:     log.Named("reporter"),
		repo:    repo,
		queue:   q,
		metrics: m,
		clock:   clk,
		genID:   genID,
	}
}

// Report validates and enqueues one batch of transactions, returning
// the job id the batch was accepted under.
func (s *Service) Report(ctx context.Context, providerKey, serviceID string, txs []Transaction) (string, error) {
	if err := validateReport(providerKey, serviceID, txs); err != nil {
		return "", err
	}

	ok, err := s.repo.ProviderExists(ctx, providerKey)
	if err != nil {
		return "", backenderrors.StorageUnavailable(err)
	}
	if !ok {
		return "", backenderrors.ProviderKeyInvalid(providerKey)
	}

	svc, err := s.ResolveService(ctx, providerKey, serviceID)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:           s.genID.Generate().String(),
		ProviderKey:  providerKey,
		ServiceID:    svc.ID,
		EnqueuedAt:   s.clock.Now().UTC(),
		Transactions: txs,
	}
	payload, err := job.Marshal()
	if err != nil {
		return "", backenderrors.BadRequest()
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.ReportAccepted.Inc()
	}
	s.log.Debug("report accepted",
		zap.String("job_id", job.ID),
		zap.String("service_id", svc.ID),
		zap.Int("transactions", len(txs)))
	return job.ID, nil
}

// ResolveService maps a provider key and an optional explicit service
// id to a concrete service. An explicit id must belong to the provider;
// an empty one means the provider's default service.
func (s *Service) ResolveService(ctx context.Context, providerKey, serviceID string) (*regdomain.Service, error) {
	if serviceID != "" {
		svc, err := s.repo.FindService(ctx, serviceID)
		if err != nil {
			if errors.Is(err, regdomain.ErrServiceNotFound) {
				return nil, backenderrors.ServiceIDInvalid(serviceID)
			}
			return nil, backenderrors.StorageUnavailable(err)
		}
		if svc.ProviderKey != providerKey {
			return nil, backenderrors.ServiceIDInvalid(serviceID)
		}
		return svc, nil
	}
	svc, err := s.repo.DefaultService(ctx, providerKey)
	if err != nil {
		if errors.Is(err, regdomain.ErrNoDefaultService) {
			return nil, backenderrors.ProviderKeyInvalid(providerKey)
		}
		return nil, backenderrors.StorageUnavailable(err)
	}
	return svc, nil
}

func validateReport(providerKey, serviceID string, txs []Transaction) error {
	if !utf8.ValidString(providerKey) || !utf8.ValidString(serviceID) {
		return backenderrors.NotValidData()
	}
	if len(txs) == 0 {
		return backenderrors.BadRequest()
	}
	for _, tx := range txs {
		if !utf8.ValidString(tx.AppID) {
			return backenderrors.NotValidData()
		}
		if len(tx.Usage) == 0 {
			return backenderrors.UsageInvalid("usage must not be empty")
		}
		for name, value := range tx.Usage {
			if !utf8.ValidString(name) {
				return backenderrors.NotValidData()
			}
			if value < 0 {
				return backenderrors.UsageInvalid("usage values must be non-negative integers")
			}
		}
	}
	return nil
}
