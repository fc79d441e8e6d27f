package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func secured(opt SecurityOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/api/v1/requests/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	r.GET("/media/*key", func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Status(http.StatusOK)
	})
	return r
}

func TestSecurityHeaders_APIRoute(t *testing.T) {
	r := secured(SecurityOptions{NoStore: true, EnablePolicy: true, PublicPrefixes: []string{"/media/"}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/r1", nil))

	want := map[string]string{
		"X-Content-Type-Options":            "nosniff",
		"X-Frame-Options":                   "DENY",
		"Referrer-Policy":                   "no-referrer",
		"Content-Security-Policy":           apiCSP,
		"Cache-Control":                     "no-store",
		"Pragma":                            "no-cache",
		"X-Permitted-Cross-Domain-Policies": "none",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
	if w.Header().Get("Permissions-Policy") == "" {
		t.Fatalf("missing Permissions-Policy")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS sent while disabled")
	}
}

func TestSecurityHeaders_PublicPrefixKeepsCaching(t *testing.T) {
	r := secured(SecurityOptions{NoStore: true, PublicPrefixes: []string{"/media/"}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/requests/a.png", nil))

	if got := w.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Fatalf("Cache-Control=%q", got)
	}
	if w.Header().Get("Content-Security-Policy") != "" || w.Header().Get("Pragma") != "" {
		t.Fatalf("API-only headers on public content: %v", w.Header())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("baseline missing on public content")
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	cases := []struct {
		name  string
		opt   SecurityOptions
		setup func(*http.Request)
		want  string
	}{
		{"plain http", SecurityOptions{EnableHSTS: true}, func(*http.Request) {}, ""},
		{"direct tls default age", SecurityOptions{EnableHSTS: true}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			"max-age=15552000; includeSubDomains; preload"},
		{"forwarded https", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") },
			"max-age=86400; includeSubDomains; preload"},
		{"disabled", SecurityOptions{}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/r1", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			secured(tc.opt).ServeHTTP(w, req)
			if got := w.Header().Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS=%q want %q", got, tc.want)
			}
		})
	}
}
