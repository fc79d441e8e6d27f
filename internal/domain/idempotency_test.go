package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_UniqueScope(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID: "id-1", UserID: "u1", Scope: "POST /requests", Key: "k1",
		ResourceID: "r1", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Scope != "POST /requests" || got.ResourceID != "r1" || got.Status != 201 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Same key under another scope is a different record.
	other := &Idempotency{
		ID: "id-2", UserID: "u1", Scope: "POST /requests/:id/offers", Key: "k1",
		ResourceID: "o1", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}

	dup := &Idempotency{
		ID: "id-3", UserID: "u1", Scope: "POST /requests", Key: "k1",
		ResourceID: "r2", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}
}
