package repo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestCreateProfile_PhoneUnique(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if err := CreateProfile(ctx, db, &domain.UserProfile{ID: "u1", Phone: "+905551112233", Name: "Ayse"}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	err := CreateProfile(ctx, db, &domain.UserProfile{ID: "u2", Phone: "+905551112233"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	p, err := GetProfileByPhone(ctx, db, "+905551112233")
	if err != nil || p.ID != "u1" || p.Name != "Ayse" {
		t.Fatalf("GetProfileByPhone = %+v, %v", p, err)
	}
	if _, err := GetProfileByPhone(ctx, db, "+1"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProfileFields_AndEarnings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedProfile(t, db, domain.UserProfile{ID: "p1", Role: domain.RoleProvider})

	if err := UpdateProfileFields(ctx, db, "p1", map[string]any{"about": "tiler"}); err != nil {
		t.Fatalf("UpdateProfileFields: %v", err)
	}
	for _, amt := range []float64{500, 250.5} {
		if err := AddEarnings(ctx, db, "p1", amt); err != nil {
			t.Fatalf("AddEarnings: %v", err)
		}
	}
	p, _ := GetProfile(ctx, db, "p1")
	if p.About != "tiler" || math.Abs(p.Earnings-750.5) > 1e-9 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if err := AddEarnings(ctx, db, "ghost", 1); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
