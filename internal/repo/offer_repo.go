package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateOffer inserts o as pending.
func CreateOffer(ctx context.Context, db *gorm.DB, o *domain.Offer) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.Status = domain.OfferPending
	o.CreatedAt, o.UpdatedAt = now, now
	return db.WithContext(ctx).Omit("Request").Create(o).Error
}

// GetOffer fetches an offer by id, or ErrNotFound.
func GetOffer(ctx context.Context, db *gorm.DB, id string) (*domain.Offer, error) {
	var o domain.Offer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// HasPendingOffer reports whether providerID already has a pending offer on
// requestID.
func HasPendingOffer(ctx context.Context, db *gorm.DB, requestID, providerID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ? AND provider_id = ? AND status = ?", requestID, providerID, domain.OfferPending).
		Count(&n).Error
	return n > 0, err
}

// TransitionOffer moves an offer from one status to another as a single
// conditional UPDATE. It reports whether the row changed.
func TransitionOffer(ctx context.Context, db *gorm.DB, id string, from, to domain.OfferStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RejectPendingSiblings rejects every pending offer on requestID except
// keepID and returns the ids it rejected.
func RejectPendingSiblings(ctx context.Context, db *gorm.DB, requestID, keepID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ? AND id <> ? AND status = ?", requestID, keepID, domain.OfferPending).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	err = db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id IN ? AND status = ?", ids, domain.OfferPending).
		Updates(map[string]any{"status": domain.OfferRejected, "updated_at": time.Now().UTC()}).Error
	return ids, err
}

// ListOffers returns the offers of a request in the given statuses, oldest
// first. No statuses means all.
func ListOffers(ctx context.Context, db *gorm.DB, requestID string, statuses ...domain.OfferStatus) ([]domain.Offer, error) {
	q := db.WithContext(ctx).Where("request_id = ?", requestID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []domain.Offer
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// WonOffer returns the accepted or completed offer of a request, or
// ErrNotFound.
func WonOffer(ctx context.Context, db *gorm.DB, requestID string) (*domain.Offer, error) {
	var o domain.Offer
	err := db.WithContext(ctx).
		Where("request_id = ? AND status IN ?", requestID, []domain.OfferStatus{domain.OfferAccepted, domain.OfferCompleted}).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}
