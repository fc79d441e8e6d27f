package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateReview inserts a review; a second review for the same
// (request, customer) returns ErrDuplicate.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	return translate(db.WithContext(ctx).Create(r).Error)
}

// ReviewExists reports whether customerID already reviewed requestID.
func ReviewExists(ctx context.Context, db *gorm.DB, requestID, customerID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("request_id = ? AND customer_id = ?", requestID, customerID).
		Count(&n).Error
	return n > 0, err
}

// ApplyRating folds one rating into the provider aggregate with a single
// UPDATE: rating becomes the running mean and completed_jobs grows by one.
// Returns ErrNotFound if the provider has no profile.
func ApplyRating(ctx context.Context, db *gorm.DB, providerID string, rating int) error {
	res := db.WithContext(ctx).
		Model(&domain.UserProfile{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"rating":         gorm.Expr("(rating * completed_jobs + ?) / (completed_jobs + 1)", float64(rating)),
			"completed_jobs": gorm.Expr("completed_jobs + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
