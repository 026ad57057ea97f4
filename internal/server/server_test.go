package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/tollgate/internal/authorizer"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/counter"
	"github.com/smallbiznis/tollgate/internal/limits"
	"github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/queue"
	regdomain "github.com/smallbiznis/tollgate/internal/registry/domain"
	"github.com/smallbiznis/tollgate/internal/registry/repository"
	"github.com/smallbiznis/tollgate/internal/reporter"
	"github.com/smallbiznis/tollgate/internal/stats"
)

type testStack struct {
	router *gin.Engine
	repo   regdomain.Repository
	queue  *queue.Queue
	worker *reporter.Worker
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo := repository.New(db)
	require.NoError(t, repo.Migrate())

	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2010, 5, 15, 13, 30, 45, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{
		ReportWorkers:        1,
		ReportRetryAttempts:  3,
		ReportRetryBaseDelay: time.Millisecond,
		QueueName:            "report",
		StatsBucketInterval:  30 * time.Second,
		ErrorListLimit:       100,
	}

	clk := clock.NewFakeClock(time.Date(2010, 5, 15, 13, 30, 45, 0, time.UTC))
	counters := counter.NewStore(client, time.Second)
	tracker := stats.NewTracker(client, time.Second)
	q := queue.New(client, cfg.QueueName, time.Second)
	errs := reporter.NewErrorStore(client, cfg.ErrorListLimit, time.Second)
	m := metrics.New()
	log := zap.NewNop()

	engine := authorizer.NewEngine(log, repo, limits.NewResolver(repo), counters, clk)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	reports := reporter.NewService(log, repo, q, m, clk, node)
	worker := reporter.NewWorker(log, cfg, repo, q, counters, tracker, errs, m, clk)

	router := NewEngine(m)
	registerRoutes(router, NewServer(log, engine, reports, errs, tracker, m))

	return &testStack{router: router, repo: repo, queue: q, worker: worker}
}

func (ts *testStack) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ts.repo.SaveService(ctx, &regdomain.Service{ID: "1001", ProviderKey: "pk-1", Default: true}))
	require.NoError(t, ts.repo.SaveMetric(ctx, &regdomain.Metric{ServiceID: "1001", ID: "m-hits", Name: "hits"}))
	require.NoError(t, ts.repo.CreateApplication(ctx, &regdomain.Application{
		ServiceID: "1001", ID: "app-1", PlanID: "plan-1", PlanName: "basic",
		State: regdomain.StateActive,
	}))
	require.NoError(t, ts.repo.SaveUsageLimit(ctx, &regdomain.UsageLimit{
		ServiceID: "1001", PlanID: "plan-1", MetricID: "m-hits", Period: "day", MaxValue: 4,
	}))
}

// drain processes every queued job synchronously.
func (ts *testStack) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		d, err := ts.queue.Dequeue(ctx)
		require.NoError(t, err)
		if d == nil {
			return
		}
		job, err := reporter.ParseJob(d.Payload)
		require.NoError(t, err)
		ts.worker.ProcessJob(ctx, job)
		require.NoError(t, ts.queue.Ack(ctx, d))
	}
}

func (ts *testStack) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestAuthorizeEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.seed(t)

	w := ts.do(http.MethodGet, "/transactions/authorize?provider_key=pk-1&app_id=app-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var verdict authorizer.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.True(t, verdict.Authorized)
	assert.Equal(t, "basic", verdict.Plan)
	require.Len(t, verdict.UsageReports, 1)
	assert.Equal(t, int64(0), verdict.UsageReports[0].CurrentValue)

	// Resolution failures map to their taxonomy statuses.
	w = ts.do(http.MethodGet, "/transactions/authorize?provider_key=boo&app_id=app-1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "provider_key_invalid", string(resp.Error.Code))

	w = ts.do(http.MethodGet, "/transactions/authorize?provider_key=pk-1&app_id=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportThenAuthorizeFlow(t *testing.T) {
	ts := newTestStack(t)
	ts.seed(t)

	w := ts.do(http.MethodPost, "/transactions",
		`{"provider_key":"pk-1","transactions":[{"app_id":"app-1","usage":{"hits":3}}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted["job_id"])

	ts.drain(t)

	w = ts.do(http.MethodGet, "/transactions/authorize?provider_key=pk-1&app_id=app-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var verdict authorizer.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	require.Len(t, verdict.UsageReports, 1)
	assert.Equal(t, int64(3), verdict.UsageReports[0].CurrentValue)

	// The predicted usage crosses the limit of 4: denied, nothing stored.
	w = ts.do(http.MethodGet, "/transactions/authorize?provider_key=pk-1&app_id=app-1&usage[hits]=2", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.False(t, verdict.Authorized)
	assert.Equal(t, "usage limits are exceeded", verdict.Reason)
}

func TestTransactionErrorsEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.seed(t)

	w := ts.do(http.MethodPost, "/transactions",
		`{"provider_key":"pk-1","transactions":[{"app_id":"nope","usage":{"hits":1}}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	ts.drain(t)

	w = ts.do(http.MethodGet, "/transactions/errors?provider_key=pk-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Errors []reporter.TransactionError `json:"errors"`
		Count  int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "application_not_found", string(listing.Errors[0].Code))

	w = ts.do(http.MethodDelete, "/transactions/errors?provider_key=pk-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatsBucketsEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.seed(t)

	w := ts.do(http.MethodPost, "/transactions",
		`{"provider_key":"pk-1","transactions":[{"app_id":"app-1","usage":{"hits":1}}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	ts.drain(t)

	w = ts.do(http.MethodGet, "/stats/buckets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Pending     []string         `json:"pending"`
		PendingKeys map[string]int64 `json:"pending_keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Pending, 1)
	assert.Positive(t, body.PendingKeys[body.Pending[0]])
}

type stubShutdowner struct {
	called bool
}

func (s *stubShutdowner) Shutdown(...fx.ShutdownOption) error {
	s.called = true
	return nil
}

func TestServeFailureRequestsShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Binding the occupied port fails immediately; the failure must
	// ask the application to shut down rather than exit the process.
	sh := &stubShutdowner{}
	serve(&http.Server{Addr: ln.Addr().String()}, zap.NewNop(), sh)
	assert.True(t, sh.called)
}

func TestReportRejectsMalformedBody(t *testing.T) {
	ts := newTestStack(t)
	ts.seed(t)

	w := ts.do(http.MethodPost, "/transactions", `{"provider_key":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/transactions/authorize?provider_key=pk-1&app_id=app-1&usage[hits]=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
