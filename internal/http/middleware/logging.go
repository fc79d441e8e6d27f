// Package middleware holds the Gin middleware of the marketplace API.
//
// Request correlation and access logging live here. Compose them as
// RequestID, AccessLog, Recovery so every log line written while serving a
// request carries the same request_id, including lines services write
// through zerolog's log.Ctx.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxQueryLogLength = 2048
)

// Client-supplied ids end up in log lines and response headers.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID reuses a well-formed X-Request-ID from the client or generates a
// UUIDv4, echoes it in the response header and stores it under "requestID".
// Malformed ids (too long, spaces, control characters) are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDRE.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// Redactor scrubs the query string and headers; nil uses NewRedactor().
	Redactor *Redactor
	// SkipPaths are exact paths (health probes, /metrics) that get no
	// completion line. They still get a request-scoped logger.
	SkipPaths []string
	// Headers adds the scrubbed request headers to the completion line.
	Headers bool
}

// AccessLog attaches a request-scoped logger (request_id, method, route) to
// the Gin context and to the request's context.Context, then writes one
// completion line per request.
//
// The completion line adds what is only known after the handler chain has
// run: the authenticated user, the idempotency key and whether the response
// was a replay, status, latency and sizes. Level is error for 5xx or
// collected Gin errors, warn for 4xx and info otherwise.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	red := opts.Redactor
	if red == nil {
		red = NewRedactor()
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid, _ := c.Get(requestIDKey)
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		var headers map[string]string
		if opts.Headers {
			headers = red.Headers(c.Request.Header)
		}

		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= http.StatusInternalServerError:
			ev = l.Error()
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		default:
			ev = l.Info()
		}

		if uid := UserID(c); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if key, ok := GetIdempotencyKey(c); ok {
			ev = ev.Str("idempotency_key", key).Bool("replayed", IsReplay(c))
		}
		if q := c.Request.URL.RawQuery; q != "" {
			ev = ev.Str("query", truncate(red.Query(q), maxQueryLogLength))
		}
		if headers != nil {
			ev = ev.Interface("headers", headers)
		}
		ev.Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Msg("request")
	}
}

// Recovery turns a panic into a JSON 500 (code "internal_error") when
// nothing has been written yet, and logs the stack through the request's
// logger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger AccessLog attached, or the global logger
// when none was.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
