package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatsBuckets exposes the dirty-bucket bookkeeping: pending buckets in
// insertion order with their changed-key counts, plus the failure sets.
func (s *Server) StatsBuckets(c *gin.Context) {
	ctx := c.Request.Context()

	pending, err := s.tracker.PendingBuckets(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	keysByBucket, err := s.tracker.PendingKeysByBucket(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	failed, err := s.tracker.FailedBuckets(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	failedEver, err := s.tracker.FailedBucketsAtLeastOnce(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":              pending,
		"pending_keys":         keysByBucket,
		"failed":               failed,
		"failed_at_least_once": failedEver,
	})
}

func (s *Server) ResetFailedBuckets(c *gin.Context) {
	if err := s.tracker.ResetFailedAtLeastOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
