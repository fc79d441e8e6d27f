package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/media"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
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
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var fastRetry = RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

// newTestLifecycle returns a Lifecycle over a fresh database with an
// in-memory media store and hub.
func newTestLifecycle(t *testing.T) (*Lifecycle, *media.Memory) {
	t.Helper()
	db := newTestDB(t)
	store := media.NewMemory("http://media.test", 1<<20)
	l := NewLifecycle(db, store, realtime.NewHub(64))
	l.Retry = fastRetry
	return l, store
}

func customer(id string) Session { return Session{UserID: id, Role: domain.RoleCustomer} }
func provider(id string) Session { return Session{UserID: id, Role: domain.RoleProvider} }

func seedProfile(t *testing.T, db *gorm.DB, id string, role domain.Role) {
	t.Helper()
	p := &domain.UserProfile{ID: id, Role: role, Name: "name " + id, Phone: "+90" + id}
	if role == domain.RoleProvider {
		p.Category, p.About = domain.CategoryRepair, "fixes things"
	}
	if err := repo.CreateProfile(context.Background(), db, p); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
}

// postRequest creates a repair request through the service.
func postRequest(t *testing.T, l *Lifecycle, customerID, title string) *domain.ServiceRequest {
	t.Helper()
	r, err := l.CreateRequest(context.Background(), customer(customerID), CreateRequestInput{
		Category: "repair",
		Title:    title,
		Details:  []byte(`{"item":"sink"}`),
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return r
}

func submit(t *testing.T, l *Lifecycle, providerID, requestID string, price float64) *domain.Offer {
	t.Helper()
	o, err := l.SubmitOffer(context.Background(), provider(providerID), requestID, price, "can do")
	if err != nil {
		t.Fatalf("SubmitOffer(%s): %v", providerID, err)
	}
	return o
}

func requestStatus(t *testing.T, db *gorm.DB, id string) domain.RequestStatus {
	t.Helper()
	r, err := repo.GetRequest(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	return r.Status
}

func offerStatus(t *testing.T, db *gorm.DB, id string) domain.OfferStatus {
	t.Helper()
	o, err := repo.GetOffer(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	return o.Status
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func eventTypes(t *testing.T, db *gorm.DB, aggregateID string) []domain.EventType {
	t.Helper()
	evs, err := repo.EventsFor(context.Background(), db, aggregateID)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	out := make([]domain.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// failStatusUpdates makes UPDATEs that set service_requests.status fail
// while fail returns true.
func failStatusUpdates(t *testing.T, db *gorm.DB, fail func() bool) {
	t.Helper()
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_status", func(tx *gorm.DB) {
		if tx.Statement.Table != "service_requests" {
			return
		}
		m, ok := tx.Statement.Dest.(map[string]any)
		if !ok {
			return
		}
		if _, sets := m["status"]; sets && fail() {
			_ = tx.AddError(errors.New("injected: database is locked"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
}

// flakyStore fails the upload with the given 1-based index.
type flakyStore struct {
	*media.Memory
	mu     sync.Mutex
	calls  int
	failAt int
	err    error
}

func (f *flakyStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == f.failAt {
		return "", f.err
	}
	return f.Memory.Upload(ctx, data, contentType)
}
