package domain

import "time"

// EventType names a lifecycle fact recorded in the outbox.
type EventType string

const (
	EventRequestCreated  EventType = "request.created"
	EventOfferSubmitted  EventType = "offer.submitted"
	EventOfferAccepted   EventType = "offer.accepted"
	EventOfferRejected   EventType = "offer.rejected"
	EventJobCompleted    EventType = "job.completed"
	EventReviewSubmitted EventType = "review.submitted"
	EventMessageSent     EventType = "message.sent"
)

// OutboxEvent is one step of a lifecycle operation, written in the same
// transaction as the state change it describes. Rows with a nil PublishedAt
// are pending delivery to the event bus.
type OutboxEvent struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	Aggregate   string     `json:"aggregate"    gorm:"type:varchar(32);not null"`
	AggregateID string     `json:"aggregate_id" gorm:"type:char(36);not null;index"`
	Type        EventType  `json:"type"         gorm:"type:varchar(32);not null"`
	Payload     string     `json:"payload"      gorm:"type:text;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at" gorm:"index"`
	Attempts    int        `json:"attempts"     gorm:"not null;default:0"`
	LastError   string     `json:"last_error"   gorm:"type:text"`
}

// TableName returns the database table name for OutboxEvent.
func (OutboxEvent) TableName() string { return "outbox_events" }
