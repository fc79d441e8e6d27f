package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// newTestDB opens a private in-memory database. Without migrate arguments
// the full schema is created; pass models to migrate only those.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")

	if len(migrate) == 0 {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
		return db
	}
	if migrate[0] == nil {
		return db
	}
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// noSchema opens a database with no tables.
func noSchema(t *testing.T) *gorm.DB { return newTestDB(t, nil) }

func seedRequest(t *testing.T, db *gorm.DB, id, customerID string, status domain.RequestStatus, at time.Time) *domain.ServiceRequest {
	t.Helper()
	r := &domain.ServiceRequest{
		ID:         id,
		CustomerID: customerID,
		Category:   domain.CategoryRepair,
		Title:      "title " + id,
		Details:    domain.Details{Variant: domain.RepairDetails{Item: "sink"}},
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed request %s: %v", id, err)
	}
	return r
}

func seedOffer(t *testing.T, db *gorm.DB, id, requestID, providerID string, price float64, status domain.OfferStatus, at time.Time) *domain.Offer {
	t.Helper()
	o := &domain.Offer{
		ID:         id,
		RequestID:  requestID,
		ProviderID: providerID,
		CustomerID: "c1",
		Price:      price,
		Message:    "offer " + id,
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("seed offer %s: %v", id, err)
	}
	return o
}

func seedProfile(t *testing.T, db *gorm.DB, p domain.UserProfile) {
	t.Helper()
	if p.Phone == "" {
		p.Phone = "+90" + p.ID
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed profile %s: %v", p.ID, err)
	}
}
