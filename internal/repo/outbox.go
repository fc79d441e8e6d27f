package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// AppendEvent records a lifecycle event in the outbox. Call it with the
// transaction handle of the state change it describes.
func AppendEvent(ctx context.Context, db *gorm.DB, aggregate, aggregateID string, typ domain.EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := &domain.OutboxEvent{
		ID:          uuid.NewString(),
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		Type:        typ,
		Payload:     string(raw),
		CreatedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(ev).Error
}

// PendingEvents returns up to limit unpublished events in append order.
func PendingEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkPublished stamps the given events as delivered.
func MarkPublished(ctx context.Context, db *gorm.DB, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"published_at": at, "last_error": ""}).Error
}

// MarkFailed records a failed delivery attempt.
func MarkFailed(ctx context.Context, db *gorm.DB, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": msg}).Error
}

// EventsFor lists every event recorded for an aggregate, oldest first.
func EventsFor(ctx context.Context, db *gorm.DB, aggregateID string) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
