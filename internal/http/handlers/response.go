// Response helpers. Errors leave through failFromErr, which owns the mapping
// from a service error kind to a status and code; handlers never choose a
// status for a service error themselves. The body is always an
// ErrorResponse:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "5f0c2f8e-5d2b-4a53-8d2e-0c1f0b8f4a11",
//	  "code": "precondition_failed",
//	  "message": "request no longer accepts offers"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	// Same value as the X-Request-ID response header
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// One of the ErrCode constants
	Code string `json:"code" example:"precondition_failed"`
	// Safe to show to end users
	Message string `json:"message" example:"request no longer accepts offers"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

func failWith(c *gin.Context, status int, code, msg string, cause error) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("detail", msg)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's NoRoute handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case services.KindPrecondition:
		return http.StatusConflict, ErrCodePrecondition
	case services.KindConcurrentAcceptance:
		return http.StatusConflict, ErrCodeConcurrentAcceptance
	case services.KindConflict:
		return http.StatusConflict, ErrCodeConflict
	case services.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case services.KindForbidden:
		return http.StatusForbidden, ErrCodeForbidden
	case services.KindUnauthorized:
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case services.KindTransport:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, ErrCodeTimeout
		}
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case services.KindPartialWrite:
		return http.StatusInternalServerError, ErrCodePartialWrite
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failFromErr writes the error response for a service error.
func failFromErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	failWith(c, status, code, services.MessageOf(err), err)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
