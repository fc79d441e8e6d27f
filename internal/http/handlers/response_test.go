package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// failRouter answers GET /fail with failFromErr(err) behind the real
// request id and access log middleware, capturing the global logger.
func failRouter(t *testing.T, err error) (*gin.Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(middleware.AccessLogOptions{}))
	r.GET("/fail", func(c *gin.Context) { failFromErr(c, err) })
	return r, &buf
}

func TestFailFromErr_ClientErrorsAreNotLoggedAsFailures(t *testing.T) {
	err := &services.LifecycleError{Kind: services.KindPrecondition, Op: "SubmitOffer", Msg: "request no longer accepts offers"}
	r, buf := failRouter(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Request-ID", "rid-409")
	r.ServeHTTP(w, req)

	got := decode[ErrorResponse](t, w)
	want := ErrorResponse{RequestID: "rid-409", Code: ErrCodePrecondition, Message: "request no longer accepts offers"}
	if w.Code != http.StatusConflict || got != want {
		t.Fatalf("got %d %+v want 409 %+v", w.Code, got, want)
	}
	if strings.Contains(buf.String(), "api error") {
		t.Fatalf("4xx logged as a failure: %s", buf.String())
	}
}

func TestFailFromErr_ServerErrorsLogCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := &services.LifecycleError{Kind: services.KindPartialWrite, Op: "AcceptOffer", Err: cause}
	r, buf := failRouter(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	got := decode[ErrorResponse](t, w)
	if w.Code != http.StatusInternalServerError || got.Code != ErrCodePartialWrite || got.RequestID == "" {
		t.Fatalf("got %d %+v", w.Code, got)
	}
	if got.Message == "" || strings.Contains(got.Message, "disk") {
		t.Fatalf("message must come from the error kind, not the cause: %q", got.Message)
	}
	logs := buf.String()
	if !strings.Contains(logs, `"message":"api error"`) || !strings.Contains(logs, "disk I/O error") || !strings.Contains(logs, got.RequestID) {
		t.Fatalf("5xx log missing cause or request id: %s", logs)
	}
}

func TestFailFromErr_UnknownErrorsHideDetails(t *testing.T) {
	r, _ := failRouter(t, errors.New("pq: password authentication failed"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	got := decode[ErrorResponse](t, w)
	if w.Code != http.StatusInternalServerError || got.Code != ErrCodeInternal || got.Message != "internal error" {
		t.Fatalf("got %d %+v", w.Code, got)
	}
}

func TestStatusFor(t *testing.T) {
	le := func(k services.Kind, cause error) error {
		return &services.LifecycleError{Kind: k, Op: "Op", Msg: "m", Err: cause}
	}
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{le(services.KindValidation, nil), http.StatusBadRequest, ErrCodeValidation},
		{le(services.KindPrecondition, nil), http.StatusConflict, ErrCodePrecondition},
		{le(services.KindConcurrentAcceptance, nil), http.StatusConflict, ErrCodeConcurrentAcceptance},
		{le(services.KindConflict, nil), http.StatusConflict, ErrCodeConflict},
		{le(services.KindNotFound, nil), http.StatusNotFound, ErrCodeNotFound},
		{le(services.KindForbidden, nil), http.StatusForbidden, ErrCodeForbidden},
		{le(services.KindUnauthorized, nil), http.StatusUnauthorized, ErrCodeUnauthorized},
		{le(services.KindTransport, errors.New("dial tcp: connection refused")), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{le(services.KindTransport, fmt.Errorf("query: %w", context.DeadlineExceeded)), http.StatusGatewayTimeout, ErrCodeTimeout},
		{le(services.KindPartialWrite, nil), http.StatusInternalServerError, ErrCodePartialWrite},
		{fmt.Errorf("handler: %w", le(services.KindForbidden, nil)), http.StatusForbidden, ErrCodeForbidden},
		{errors.New("plain"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("statusFor(%v)=%d %q want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}
