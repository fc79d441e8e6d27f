package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestGetIdempotency_NoScope_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	rec, err := GetIdempotency(context.Background(), db, "u1", "   ", "k1", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for empty scope, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:         "expired",
		UserID:     "u1",
		Scope:      "POST /requests",
		Key:        "k1",
		ResourceID: "r1",
		Status:     201,
		CreatedAt:  now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, "u1", "POST /requests", "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	rec2, err2 := GetIdempotency(context.Background(), db, "u1", "POST /requests", "missing", now)
	if rec2 != nil || err2 != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec2, err2)
	}

	n, err := PurgeIdempotency(context.Background(), db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeIdempotency = %d, %v", n, err)
	}
}

func TestCreateIdempotency_SuccessScopeAndDuplicate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	ttl := 90 * time.Minute
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u9", "POST /requests", "k9", "r9", 201, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency error: %v", err)
	}
	if rec.ResourceID != "r9" || rec.Scope != "POST /requests" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	// loose bound to avoid timing flakes
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	got, err := GetIdempotency(ctx, db, "u9", "POST /requests", "k9", time.Now().UTC())
	if err != nil || got.ResourceID != "r9" {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	// same key on another route is independent
	if _, err := CreateIdempotency(ctx, db, "u9", "POST /requests/:id/offers", "k9", "o9", 201, ttl); err != nil {
		t.Fatalf("other scope: %v", err)
	}

	_, err = CreateIdempotency(ctx, db, "u9", "POST /requests", "k9", "rX", 201, ttl)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := noSchema(t)
	_, err := CreateIdempotency(context.Background(), db, "uX", "s", "kX", "rX", 200, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
}
