package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/tollgate/internal/authorizer"
	"github.com/smallbiznis/tollgate/internal/backenderrors"
	"github.com/smallbiznis/tollgate/internal/reporter"
)

// Authorize answers an authorization query. A resolved verdict comes
// back with the transport status matching its outcome: 200 when
// authorized, 409 when the application is over limits or not active.
func (s *Server) Authorize(c *gin.Context) {
	usage, err := parseUsageParams(c)
	if err != nil {
		s.metrics.ObserveAuthorize(string(backenderrors.CodeOf(err)))
		AbortWithError(c, err)
		return
	}

	appID := c.Query("app_id")
	if appID == "" {
		appID = c.Query("user_key")
	}
	req := authorizer.AuthorizeRequest{
		ProviderKey: c.Query("provider_key"),
		ServiceID:   c.Query("service_id"),
		AppID:       appID,
		Usage:       usage,
	}

	verdict, err := s.engine.Authorize(c.Request.Context(), req)
	if err != nil {
		s.metrics.ObserveAuthorize(string(backenderrors.CodeOf(err)))
		AbortWithError(c, err)
		return
	}

	if verdict.Authorized {
		s.metrics.ObserveAuthorize("authorized")
		c.JSON(http.StatusOK, verdict)
		return
	}
	s.metrics.ObserveAuthorize("denied")
	c.JSON(http.StatusConflict, verdict)
}

type reportRequest struct {
	ProviderKey  string                 `json:"provider_key"`
	ServiceID    string                 `json:"service_id"`
	Transactions []reporter.Transaction `json:"transactions"`
}

type reportResponse struct {
	JobID string `json:"job_id"`
}

// Report accepts a transaction batch for asynchronous accounting.
func (s *Server) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, backenderrors.BadRequest())
		return
	}

	jobID, err := s.reports.Report(c.Request.Context(), req.ProviderKey, req.ServiceID, req.Transactions)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, reportResponse{JobID: jobID})
}

// ListTransactionErrors returns the newest rejected transactions of a
// service.
func (s *Server) ListTransactionErrors(c *gin.Context) {
	svc, err := s.reports.ResolveService(c.Request.Context(), c.Query("provider_key"), c.Query("service_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	errs, err := s.errorStore.List(c.Request.Context(), svc.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errs, "count": len(errs)})
}

func (s *Server) ClearTransactionErrors(c *gin.Context) {
	svc, err := s.reports.ResolveService(c.Request.Context(), c.Query("provider_key"), c.Query("service_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.errorStore.Clear(c.Request.Context(), svc.ID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseUsageParams collects usage[<metric>]=<value> query parameters.
func parseUsageParams(c *gin.Context) (map[string]int64, error) {
	var usage map[string]int64
	for key, values := range c.Request.URL.Query() {
		name, ok := usageMetricName(key)
		if !ok || len(values) == 0 {
			continue
		}
		value, err := strconv.ParseInt(values[0], 10, 64)
		if err != nil {
			return nil, backenderrors.UsageInvalid("usage values must be integers")
		}
		if usage == nil {
			usage = make(map[string]int64)
		}
		usage[name] += value
	}
	return usage, nil
}

func usageMetricName(key string) (string, bool) {
	if !strings.HasPrefix(key, "usage[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	name := key[len("usage[") : len(key)-1]
	return name, name != ""
}
