package api

import (
	"fmt"
	"net/http"
	"time"

	"eve-arbitrage/internal/logger"

	"github.com/gin-gonic/gin"
)

// Error codes returned in ErrorResponse.
const (
	CodeInvalidPage     = "INVALID_PAGE"
	CodeInvalidPageSize = "INVALID_PAGE_SIZE"
	CodeInvalidCategory = "INVALID_CATEGORY"
	CodeInvalidLimit    = "INVALID_LIMIT"
	CodeNoData          = "NO_DATA"
	CodeRunInProgress   = "RUN_IN_PROGRESS"
	CodeUnavailable     = "UNAVAILABLE"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("API", fmt.Sprintf("panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered))
		writeError(c, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("API", fmt.Sprintf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), time.Since(start).Round(time.Microsecond)))
	}
}
