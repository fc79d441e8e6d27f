package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateProfile inserts p. A taken phone number returns ErrDuplicate.
func CreateProfile(ctx context.Context, db *gorm.DB, p *domain.UserProfile) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return translate(db.WithContext(ctx).Create(p).Error)
}

// GetProfile fetches a profile by principal id, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByPhone fetches a profile by its login phone, or ErrNotFound.
func GetProfileByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfileFields writes the given columns of a profile. If no rows are
// affected it returns ErrNotFound.
func UpdateProfileFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.UserProfile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddEarnings credits amount to the provider's gross earnings atomically.
func AddEarnings(ctx context.Context, db *gorm.DB, providerID string, amount float64) error {
	return UpdateProfileFields(ctx, db, providerID, map[string]any{
		"earnings": gorm.Expr("earnings + ?", amount),
	})
}
