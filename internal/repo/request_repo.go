package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateRequest inserts r. An empty ID is replaced by a fresh UUID and the
// status is forced to open.
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.ServiceRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.Status = domain.RequestOpen
	r.CreatedAt, r.UpdatedAt = now, now
	return db.WithContext(ctx).Create(r).Error
}

// GetRequest fetches a request by id, or ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.ServiceRequest, error) {
	var r domain.ServiceRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionRequest moves a request to next if and only if its current
// status is one of the legal sources for next. It reports whether a row
// changed; false means the request is missing or already past the point
// where next is reachable.
func TransitionRequest(ctx context.Context, db *gorm.DB, id string, next domain.RequestStatus) (bool, error) {
	sources := domain.RequestSources(next)
	if len(sources) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.ServiceRequest{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(map[string]any{"status": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRequestOffered is the open → offered step after an offer lands. It is
// idempotent: a request that is already offered (or further) is left alone.
func MarkRequestOffered(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.ServiceRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestOpen).
		Updates(map[string]any{"status": domain.RequestOffered, "updated_at": time.Now().UTC()}).Error
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Statuses   []domain.RequestStatus
	Category   domain.Category
	CustomerID string
	IDs        []string
}

// ListRequests returns requests matching f, newest first.
func ListRequests(ctx context.Context, db *gorm.DB, f RequestFilter, offset, limit int) ([]domain.ServiceRequest, error) {
	q := db.WithContext(ctx).Model(&domain.ServiceRequest{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return []domain.ServiceRequest{}, nil
		}
		q = q.Where("id IN ?", f.IDs)
	}
	q = q.Order("created_at DESC, id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.ServiceRequest
	err := q.Find(&out).Error
	return out, err
}
