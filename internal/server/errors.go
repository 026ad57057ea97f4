package server

import (
	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/tollgate/internal/backenderrors"
)

type errorPayload struct {
	Code    backenderrors.Code `json:"code"`
	Message string             `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware turns errors attached to the context into one
// JSON error response. Anything without a taxonomy code comes out as a
// generic bad_request.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		err := lastErr.Err
		c.AbortWithStatusJSON(backenderrors.StatusOf(err), errorResponse{
			Error: errorPayload{
				Code:    backenderrors.CodeOf(err),
				Message: err.Error(),
			},
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
