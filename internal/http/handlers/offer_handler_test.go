package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// stubLife overrides the offer operations of a real Lifecycle.
type stubLife struct {
	Lifecycle
	offer     *domain.Offer
	submitErr error
	acceptErr error
}

func (s stubLife) SubmitOffer(context.Context, services.Session, string, float64, string) (*domain.Offer, error) {
	return s.offer, s.submitErr
}

func (s stubLife) AcceptOffer(context.Context, services.Session, string) (string, error) {
	return "", s.acceptErr
}

func TestSubmitOffer_PartialWriteIs202AndReplayable(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)
	prov := h.seed("p1", domain.RoleProvider)

	w := h.do(http.MethodPost, "/requests", cust, repairRequest("Leaking sink"))
	expect(t, w, http.StatusCreated)
	reqID := decode[domain.ServiceRequest](t, w).ID

	// a stored offer whose follow-up status update failed
	stored, err := h.life.SubmitOffer(context.Background(), services.Session{UserID: "p1", Role: domain.RoleProvider}, reqID, 80, "today")
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	partial := New(stubLife{
		Lifecycle: h.life,
		offer:     stored,
		submitErr: &services.LifecycleError{Kind: services.KindPartialWrite, Op: "SubmitOffer", Msg: "offer stored, request status not updated"},
	}, h.handlers.profiles, Options{DB: h.db})
	engine := newEngine(partial, h.db, h.tokens.Verify)

	body := map[string]any{"price": 80, "message": "today"}
	w = serve(t, engine, http.MethodPost, "/requests/"+reqID+"/offers", prov, body, "Idempotency-Key", "offer-1")
	expect(t, w, http.StatusAccepted)
	got := decode[PartialOfferResponse](t, w)
	if got.Code != ErrCodePartialWrite || got.Offer == nil || got.Offer.ID != stored.ID {
		t.Fatalf("unexpected partial response: %+v", got)
	}

	// the retry replays the stored offer as created
	w = serve(t, engine, http.MethodPost, "/requests/"+reqID+"/offers", prov, body, "Idempotency-Key", "offer-1")
	expect(t, w, http.StatusCreated)
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay")
	}
	if id := decode[map[string]any](t, w)["id"]; id != stored.ID {
		t.Fatalf("replayed id=%v want %s", id, stored.ID)
	}
}

func TestOfferErrors_StatusAndCode(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)
	prov := h.seed("p1", domain.RoleProvider)

	cases := []struct {
		name   string
		stub   stubLife
		path   string
		token  string
		status int
		code   string
	}{
		{
			name:   "transport timeout",
			stub:   stubLife{submitErr: &services.LifecycleError{Kind: services.KindTransport, Op: "SubmitOffer", Msg: "store unavailable", Err: context.DeadlineExceeded}},
			path:   "/requests/r1/offers",
			token:  prov,
			status: http.StatusGatewayTimeout,
			code:   ErrCodeTimeout,
		},
		{
			name:   "transport unavailable",
			stub:   stubLife{submitErr: &services.LifecycleError{Kind: services.KindTransport, Op: "SubmitOffer", Msg: "store unavailable"}},
			path:   "/requests/r1/offers",
			token:  prov,
			status: http.StatusServiceUnavailable,
			code:   ErrCodeUnavailable,
		},
		{
			name:   "partial write without offer",
			stub:   stubLife{submitErr: &services.LifecycleError{Kind: services.KindPartialWrite, Op: "SubmitOffer"}},
			path:   "/requests/r1/offers",
			token:  prov,
			status: http.StatusInternalServerError,
			code:   ErrCodePartialWrite,
		},
		{
			name:   "lost acceptance race",
			stub:   stubLife{acceptErr: &services.LifecycleError{Kind: services.KindConcurrentAcceptance, Op: "AcceptOffer", Msg: "another offer was accepted for this request"}},
			path:   "/offers/o1/accept",
			token:  cust,
			status: http.StatusConflict,
			code:   ErrCodeConcurrentAcceptance,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.stub.Lifecycle = h.life
			engine := newEngine(New(tc.stub, h.handlers.profiles, Options{DB: h.db}), h.db, h.tokens.Verify)
			var body any
			if tc.token == prov {
				body = map[string]any{"price": 10, "message": "m"}
			}
			w := serve(t, engine, http.MethodPost, tc.path, tc.token, body)
			expectError(t, w, tc.status, tc.code)
		})
	}
}

func TestListOffers_OwnerSeesAllAndETagChanges(t *testing.T) {
	h := newHarness(t)
	cust := h.seed("c1", domain.RoleCustomer)
	p1 := h.seed("p1", domain.RoleProvider)
	p2 := h.seed("p2", domain.RoleProvider)

	w := h.do(http.MethodPost, "/requests", cust, repairRequest("Leaking sink"))
	expect(t, w, http.StatusCreated)
	reqID := decode[domain.ServiceRequest](t, w).ID
	expect(t, h.do(http.MethodPost, "/requests/"+reqID+"/offers", p1, map[string]any{"price": 100, "message": "a"}), http.StatusCreated)
	expect(t, h.do(http.MethodPost, "/requests/"+reqID+"/offers", p2, map[string]any{"price": 90, "message": "b"}), http.StatusCreated)

	w = h.do(http.MethodGet, "/requests/"+reqID+"/offers", cust, nil)
	expect(t, w, http.StatusOK)
	if n := len(decode[OffersResponse](t, w).Offers); n != 2 {
		t.Fatalf("owner sees %d offers, want 2", n)
	}

	// a new offer changes the ETag
	etag := w.Header().Get("ETag")
	p3 := h.seed("p3", domain.RoleProvider)
	expect(t, h.do(http.MethodPost, "/requests/"+reqID+"/offers", p3, map[string]any{"price": 95, "message": "c"}), http.StatusCreated)
	w = h.do(http.MethodGet, "/requests/"+reqID+"/offers", cust, nil, "If-None-Match", etag)
	expect(t, w, http.StatusOK)
	if w.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change")
	}
}
