package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func multipartRequest(t *testing.T, token string, fields map[string]string, images ...[]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	for i, img := range images {
		fw, err := mw.CreateFormFile("images", "photo"+string(rune('a'+i))+".png")
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		_, _ = fw.Write(img)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/requests", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCreateRequest_MultipartStoresPhotos(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	req := multipartRequest(t, cust, map[string]string{
		"category":  "repair",
		"title":     "Broken tap",
		"details":   `{"item":"tap"}`,
		"latitude":  "41.01",
		"longitude": "28.97",
	}, pngBytes)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	expect(t, w, http.StatusCreated)

	created := decode[domain.ServiceRequest](t, w)
	if len(created.Images) != 1 || !strings.HasPrefix(created.Images[0], "http://media.test/requests/") {
		t.Fatalf("unexpected images: %v", created.Images)
	}
	if created.Location.Latitude == nil || *created.Location.Latitude != 41.01 {
		t.Fatalf("location not stored: %+v", created.Location)
	}

	// the stored photo is served back with an immutable cache policy
	w = h.do(http.MethodGet, "/media/"+strings.TrimPrefix(created.Images[0], "http://media.test/"), "", nil)
	expect(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type=%q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Fatalf("body differs from upload")
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Fatalf("Cache-Control=%q", cc)
	}
}

func TestCreateRequest_BadMultipartCoordinates(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	req := multipartRequest(t, cust, map[string]string{"category": "repair", "title": "x", "latitude": "north"})
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestCreateRequest_UnsupportedPhotoFailsWhole(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	req := multipartRequest(t, cust, map[string]string{
		"category": "repair", "title": "Broken tap", "details": `{"item":"tap"}`,
	}, pngBytes, []byte("plain text, not a photo"))
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	if w.Code < 400 {
		t.Fatalf("status=%d, want an error", w.Code)
	}
	var n int64
	h.db.Model(&domain.ServiceRequest{}).Count(&n)
	if n != 0 {
		t.Fatalf("requests=%d, want none", n)
	}
}

func TestCreateRequest_BodyTooLarge(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	limited := newEngine(h.handlers, h.db, h.tokens.Verify, func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64)
		c.Next()
	})
	w := serve(t, limited, http.MethodPost, "/requests", cust, repairRequest(strings.Repeat("x", 200)))
	expectError(t, w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest)
}

func TestCreateRequest_IdempotentReplay(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	first := h.do(http.MethodPost, "/requests", cust, repairRequest("Leaking sink"), "Idempotency-Key", "req-1")
	expect(t, first, http.StatusCreated)
	if first.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first call must not be a replay")
	}

	second := h.do(http.MethodPost, "/requests", cust, repairRequest("Leaking sink"), "Idempotency-Key", "req-1")
	expect(t, second, http.StatusCreated)
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	a := decode[map[string]any](t, first)
	b := decode[map[string]any](t, second)
	if a["id"] != b["id"] {
		t.Fatalf("replay returned %v, want %v", b["id"], a["id"])
	}

	var n int64
	h.db.Model(&domain.ServiceRequest{}).Count(&n)
	if n != 1 {
		t.Fatalf("requests=%d want 1", n)
	}

	// a different user with the same key is not a replay
	other := h.seed("c2", domain.RoleCustomer)
	w := h.do(http.MethodPost, "/requests", other, repairRequest("Leaking sink"), "Idempotency-Key", "req-1")
	expect(t, w, http.StatusCreated)
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("keys must be scoped per user")
	}
}

func TestListMyRequests(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)

	w := h.do(http.MethodGet, "/requests/mine", cust, nil)
	expect(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"requests":[]`) {
		t.Fatalf("empty list must encode as []: %s", w.Body.String())
	}

	expect(t, h.do(http.MethodPost, "/requests", cust, repairRequest("one")), http.StatusCreated)
	expect(t, h.do(http.MethodPost, "/requests", cust, repairRequest("two")), http.StatusCreated)
	w = h.do(http.MethodGet, "/requests/mine", cust, nil)
	expect(t, w, http.StatusOK)
	if got := decode[MyRequestsResponse](t, w); len(got.Requests) != 2 {
		t.Fatalf("requests=%d want 2", len(got.Requests))
	}
}
