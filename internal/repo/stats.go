package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// MessagesStats returns the message count of a chat and its newest
// updated_at.
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)
	return latest(q)
}

// OffersStats returns the offer count of a request and its newest
// updated_at.
func OffersStats(ctx context.Context, db *gorm.DB, requestID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Offer{}).Where("request_id = ?", requestID)
	return latest(q)
}

func latest(q *gorm.DB) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY instead of MAX(): SQLite returns MAX(updated_at) as text
	var row struct {
		UpdatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
