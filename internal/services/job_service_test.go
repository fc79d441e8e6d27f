package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// acceptedJob posts a request, gets an offer from providerID accepted and
// returns the request and chat ids.
func acceptedJob(t *testing.T, l *Lifecycle, customerID, providerID string, price float64) (string, string) {
	t.Helper()
	r := postRequest(t, l, customerID, "Job for "+providerID)
	o := submit(t, l, providerID, r.ID, price)
	chatID, err := l.AcceptOffer(context.Background(), customer(customerID), o.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	return r.ID, chatID
}

func TestCompleteJob(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	seedProfile(t, l.DB, "p1", domain.RoleProvider)
	reqID, chatID := acceptedJob(t, l, "c1", "p1", 500)

	if err := l.CompleteJob(ctx, provider("p2"), chatID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other provider: err = %v", err)
	}
	if err := l.CompleteJob(ctx, customer("c1"), chatID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer: err = %v", err)
	}
	if err := l.CompleteJob(ctx, provider("p1"), chatID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if got := requestStatus(t, l.DB, reqID); got != domain.RequestCompleted {
		t.Fatalf("request = %s", got)
	}
	won, err := repo.WonOffer(ctx, l.DB, reqID)
	if err != nil || won.Status != domain.OfferCompleted {
		t.Fatalf("offer = %+v %v", won, err)
	}
	p, err := repo.GetProfile(ctx, l.DB, "p1")
	if err != nil || p.Earnings != 500 {
		t.Fatalf("earnings = %+v %v", p, err)
	}

	if err := l.CompleteJob(ctx, provider("p1"), chatID); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second completion: err = %v", err)
	}
	p, _ = repo.GetProfile(ctx, l.DB, "p1")
	if p.Earnings != 500 {
		t.Fatalf("earnings credited twice: %v", p.Earnings)
	}
}

func TestProviderJobsAndWallet(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	seedProfile(t, l.DB, "p1", domain.RoleProvider)
	_, chat1 := acceptedJob(t, l, "c1", "p1", 100)
	_, chat2 := acceptedJob(t, l, "c2", "p1", 250)
	acceptedJob(t, l, "c3", "p1", 75)
	for _, id := range []string{chat1, chat2} {
		if err := l.CompleteJob(ctx, provider("p1"), id); err != nil {
			t.Fatalf("CompleteJob: %v", err)
		}
	}

	jobs, err := l.ProviderJobs(ctx, provider("p1"))
	if err != nil || len(jobs) != 3 {
		t.Fatalf("jobs = %+v %v", jobs, err)
	}
	for _, j := range jobs {
		if j.ChatID == "" || j.RequestTitle == "" {
			t.Fatalf("job row incomplete: %+v", j)
		}
	}

	w, err := l.Wallet(ctx, provider("p1"))
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.CompletedJobs != 2 || w.Gross != 350 || w.Commission != 35 || w.Net != 315 || len(w.Jobs) != 2 {
		t.Fatalf("wallet = %+v", w)
	}

	l.CommissionRate = 0.2
	w, _ = l.Wallet(ctx, provider("p1"))
	if w.Commission != 70 || w.Net != 280 {
		t.Fatalf("wallet at 20%% = %+v", w)
	}

	if _, err := l.Wallet(ctx, customer("c1")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer wallet: err = %v", err)
	}
}

func TestSubmitReview(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	seedProfile(t, l.DB, "p1", domain.RoleProvider)
	reqID, chatID := acceptedJob(t, l, "c1", "p1", 200)

	if _, err := l.SubmitReview(ctx, customer("c1"), reqID, ReviewInput{Rating: 5}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("review before completion: err = %v", err)
	}
	if err := l.CompleteJob(ctx, provider("p1"), chatID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	for _, tc := range []struct {
		name string
		s    Session
		in   ReviewInput
		want error
	}{
		{"rating too low", customer("c1"), ReviewInput{Rating: 0}, ErrValidation},
		{"rating too high", customer("c1"), ReviewInput{Rating: 6}, ErrValidation},
		{"not owner", customer("c2"), ReviewInput{Rating: 4}, ErrForbidden},
		{"provider", provider("p1"), ReviewInput{Rating: 4}, ErrForbidden},
	} {
		if _, err := l.SubmitReview(ctx, tc.s, reqID, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	rv, err := l.SubmitReview(ctx, customer("c1"), reqID, ReviewInput{Rating: 4, Text: " great "})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if rv.ProviderID != "p1" || rv.Text != "great" {
		t.Fatalf("review = %+v", rv)
	}
	if _, err := l.SubmitReview(ctx, customer("c1"), reqID, ReviewInput{Rating: 1}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("duplicate review: err = %v", err)
	}
	p, _ := repo.GetProfile(ctx, l.DB, "p1")
	if p.Rating != 4 || p.CompletedJobs != 1 {
		t.Fatalf("aggregate = %v/%d", p.Rating, p.CompletedJobs)
	}
}

// Concurrent reviews of one provider fold into the arithmetic mean.
func TestSubmitReview_ConcurrentMean(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	seedProfile(t, l.DB, "p1", domain.RoleProvider)

	ratings := []int{5, 4, 3, 5, 1, 2, 5, 4, 3, 4}
	now := time.Now().UTC()
	for i := range ratings {
		id := fmt.Sprintf("r%02d", i)
		cust := fmt.Sprintf("c%02d", i)
		r := &domain.ServiceRequest{
			ID: id, CustomerID: cust, Category: domain.CategoryOther, Title: "job " + id,
			Details: domain.Details{Variant: domain.OtherDetails{}}, Status: domain.RequestCompleted,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := l.DB.Create(r).Error; err != nil {
			t.Fatalf("seed request: %v", err)
		}
		o := &domain.Offer{
			ID: "o" + id, RequestID: id, ProviderID: "p1", CustomerID: cust, Price: 10,
			Status: domain.OfferCompleted, CreatedAt: now, UpdatedAt: now,
		}
		if err := l.DB.Omit("Request").Create(o).Error; err != nil {
			t.Fatalf("seed offer: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i, rating := range ratings {
		wg.Add(1)
		go func(i, rating int) {
			defer wg.Done()
			s := customer(fmt.Sprintf("c%02d", i))
			if _, err := l.SubmitReview(ctx, s, fmt.Sprintf("r%02d", i), ReviewInput{Rating: rating}); err != nil {
				t.Errorf("SubmitReview %d: %v", i, err)
			}
		}(i, rating)
	}
	wg.Wait()

	sum := 0
	for _, r := range ratings {
		sum += r
	}
	want := float64(sum) / float64(len(ratings))
	p, err := repo.GetProfile(ctx, l.DB, "p1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.CompletedJobs != int64(len(ratings)) || math.Abs(p.Rating-want) > 1e-9 {
		t.Fatalf("aggregate = %v/%d, want %v/%d", p.Rating, p.CompletedJobs, want, len(ratings))
	}
}
