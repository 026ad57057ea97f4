package reporter

import (
	"context"
	"errors"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/smallbiznis/tollgate/internal/backenderrors"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/counter"
	"github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/queue"
	regdomain "github.com/smallbiznis/tollgate/internal/registry/domain"
	"github.com/smallbiznis/tollgate/internal/stats"
)

// Worker drains the report queue and applies usage counters. Logical
// failures (unknown application, unknown metric) are isolated per
// transaction and recorded for the service; infrastructure failures are
// retried with backoff and, once exhausted, parked as failed buckets.
type Worker struct {
	log      *zap.Logger
	cfg      config.Config
	repo     regdomain.Repository
	queue    *queue.Queue
	counters *counter.Store
	tracker  *stats.Tracker
	errors   *ErrorStore
	metrics  *metrics.Metrics
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(
	log *zap.Logger,
	cfg config.Config,
	repo regdomain.Repository,
	q *queue.Queue,
	counters *counter.Store,
	tracker *stats.Tracker,
	errs *ErrorStore,
	m *metrics.Metrics,
	clk clock.Clock,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:      log.Named("report_worker"),
		cfg:      cfg,
		repo:     repo,
		queue:    q,
		counters: counters,
		tracker:  tracker,
		errors:   errs,
		metrics:  m,
		clock:    clk,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start requeues jobs stranded by a previous shutdown, then launches
// the worker pool.
func (w *Worker) Start(ctx context.Context) error {
	recovered, err := w.queue.RecoverProcessing(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		w.log.Info("requeued in-flight jobs", zap.Int64("count", recovered))
	}

	workers := w.cfg.ReportWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.log.Info("report workers started", zap.Int("workers", workers))
	return nil
}

// Stop cancels the pool context, interrupting dequeues and any retry
// backoff in flight, and waits for the workers to drain. A transaction
// cut off mid-apply stays on the processing list and is redelivered on
// the next Start.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	poll := w.cfg.QueuePollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		d, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.log.Warn("dequeue failed", zap.Error(err))
			w.sleep(poll)
			continue
		}
		if d == nil {
			w.sleep(poll)
			continue
		}
		w.handle(w.ctx, d)
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

// handle processes one delivery and always acknowledges it: every
// transaction ends up either counted, recorded as a transaction error,
// or parked in the failed-bucket set.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	job, err := ParseJob(d.Payload)
	if err != nil {
		w.log.Error("dropping malformed job payload", zap.Error(err))
	} else {
		w.ProcessJob(ctx, job)
	}
	if err := w.queue.Ack(ctx, d); err != nil {
		w.log.Warn("ack failed", zap.Error(err))
	}
	if w.metrics != nil {
		if depth, err := w.queue.Len(ctx); err == nil {
			w.metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// ProcessJob applies every transaction of a job. Transactions fail
// independently; one bad transaction never blocks its siblings.
func (w *Worker) ProcessJob(ctx context.Context, job *Job) {
	for _, tx := range job.Transactions {
		err := w.applyTransaction(ctx, job, tx)
		switch {
		case err == nil:
			if w.metrics != nil {
				w.metrics.TransactionsOK.Inc()
			}
		case backenderrors.IsStorageUnavailable(err):
			bucket := stats.BucketFor(job.At(tx), w.cfg.StatsBucketInterval)
			if markErr := w.tracker.MarkFailed(ctx, bucket); markErr != nil {
				w.log.Error("failed-bucket bookkeeping failed",
					zap.String("bucket", bucket), zap.Error(markErr))
			}
			if w.metrics != nil {
				w.metrics.TransactionsFailed.Inc()
			}
			w.log.Error("transaction failed after retries",
				zap.String("job_id", job.ID),
				zap.String("app_id", tx.AppID),
				zap.Error(err))
		default:
			w.recordError(ctx, job.ServiceID, err)
			if w.metrics != nil {
				w.metrics.TransactionsErrored.Inc()
			}
			w.log.Debug("transaction rejected",
				zap.String("job_id", job.ID),
				zap.String("app_id", tx.AppID),
				zap.Error(err))
		}
	}
}

// applyTransaction resolves one transaction and applies its usage to
// every period window of each metric. Increments already applied in a
// previous attempt are not repeated on retry; the dirty-bucket marks
// follow strictly after all increments succeed.
func (w *Worker) applyTransaction(ctx context.Context, job *Job, tx Transaction) error {
	if tx.AppID == "" {
		return backenderrors.ApplicationNotFound(tx.AppID)
	}
	app, err := w.repo.FindApplication(ctx, job.ServiceID, tx.AppID)
	if err != nil {
		if errors.Is(err, regdomain.ErrApplicationNotFound) {
			return backenderrors.ApplicationNotFound(tx.AppID)
		}
		return backenderrors.StorageUnavailable(err)
	}

	at := job.At(tx)

	type increment struct {
		key counter.Key
		by  int64
	}
	var pending []increment
	for name, value := range tx.Usage {
		metric, err := w.repo.FindMetricByName(ctx, job.ServiceID, name)
		if err != nil {
			if errors.Is(err, regdomain.ErrMetricNotFound) {
				return backenderrors.MetricInvalid(name)
			}
			return backenderrors.StorageUnavailable(err)
		}
		for _, key := range counter.ForAllPeriods(job.ServiceID, app.ID, metric.ID, at) {
			pending = append(pending, increment{key: key, by: value})
		}
	}

	attempts := w.cfg.ReportRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := w.cfg.ReportRetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	next := 0
	retrier := retry.New(
		retry.Attempts(uint(attempts)),
		retry.Delay(baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if w.metrics != nil {
				w.metrics.RetryAttempts.Inc()
			}
			w.log.Warn("retrying counter increments",
				zap.Uint("attempt", n+1),
				zap.Int("remaining", len(pending)-next),
				zap.Error(err))
		}),
	)
	err = retrier.Do(func() error {
		for next < len(pending) {
			if _, err := w.counters.Increment(ctx, pending[next].key, pending[next].by); err != nil {
				return err
			}
			next++
		}
		return nil
	})
	if err != nil {
		return backenderrors.StorageUnavailable(err)
	}

	bucket := stats.BucketFor(at, w.cfg.StatsBucketInterval)
	for _, inc := range pending {
		if err := w.tracker.MarkDirty(ctx, bucket, inc.key.String()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) recordError(ctx context.Context, serviceID string, err error) {
	e := TransactionError{
		Code:      backenderrors.CodeOf(err),
		Message:   err.Error(),
		Timestamp: w.clock.Now().UTC(),
	}
	if recErr := w.errors.Record(ctx, serviceID, e); recErr != nil {
		w.log.Error("recording transaction error failed", zap.Error(recErr))
	}
}
