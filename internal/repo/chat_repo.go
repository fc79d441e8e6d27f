// Chats are opened by AcceptOffer, one per accepted offer, and carry a copy
// of the last message for list views. Every function takes the *gorm.DB to
// run on, so callers pass a transaction when the write belongs to one.
//
// A missing chat is ErrNotFound; a second chat for the same offer is
// ErrDuplicate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateChat opens the chat for an accepted offer.
func CreateChat(ctx context.Context, db *gorm.DB, offer *domain.Offer) (*domain.Chat, error) {
	now := time.Now().UTC()
	c := &domain.Chat{
		ID:         uuid.NewString(),
		RequestID:  offer.RequestID,
		OfferID:    offer.ID,
		CustomerID: offer.CustomerID,
		ProviderID: offer.ProviderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetChat fetches a single chat by its ID. If the record does not exist,
// it returns ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByOffer returns the chat opened for offerID, or ErrNotFound.
func GetChatByOffer(ctx context.Context, db *gorm.DB, offerID string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("offer_id = ?", offerID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchChat records the latest message on the chat. If no rows are affected
// it returns ErrNotFound.
func TouchChat(ctx context.Context, db *gorm.DB, id, text string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message": text, "last_message_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
