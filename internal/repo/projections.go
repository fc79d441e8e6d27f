package repo

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Read projections join across tables. The SQL is built with squirrel using
// '?' placeholders, which GORM rebinds for the active dialect.
var sqlBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// OfferRow is an offer joined with its provider summary and, once accepted,
// its chat.
type OfferRow struct {
	ID                    string             `json:"id"`
	RequestID             string             `json:"request_id"`
	ProviderID            string             `json:"provider_id"`
	Price                 float64            `json:"price"`
	Message               string             `json:"message"`
	Status                domain.OfferStatus `json:"status"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	ProviderName          string             `json:"provider_name"`
	ProviderCategory      domain.Category    `json:"provider_category"`
	ProviderRating        float64            `json:"provider_rating"`
	ProviderCompletedJobs int64              `json:"provider_completed_jobs"`
	ChatID                string             `json:"chat_id,omitempty"`
}

// OfferRows lists the offers of a request in the given statuses with
// provider details, oldest first.
func OfferRows(ctx context.Context, db *gorm.DB, requestID string, statuses []domain.OfferStatus) ([]OfferRow, error) {
	q := sqlBuilder.
		Select(
			"o.id AS id", "o.request_id AS request_id", "o.provider_id AS provider_id",
			"o.price AS price", "o.message AS message", "o.status AS status",
			"o.created_at AS created_at", "o.updated_at AS updated_at",
			"COALESCE(p.name, '') AS provider_name",
			"COALESCE(p.category, '') AS provider_category",
			"COALESCE(p.rating, 0) AS provider_rating",
			"COALESCE(p.completed_jobs, 0) AS provider_completed_jobs",
			"COALESCE(c.id, '') AS chat_id",
		).
		From("offers o").
		LeftJoin("user_profiles p ON p.id = o.provider_id").
		LeftJoin("chats c ON c.offer_id = o.id").
		Where(sq.Eq{"o.request_id": requestID}).
		OrderBy("o.created_at ASC", "o.id ASC")
	if len(statuses) > 0 {
		q = q.Where(sq.Eq{"o.status": statuses})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var out []OfferRow
	err = db.WithContext(ctx).Raw(sqlStr, args...).Scan(&out).Error
	return out, err
}

// ChatRow is a chat joined with the request title and status and both
// participants' display names.
type ChatRow struct {
	ID            string               `json:"id"`
	RequestID     string               `json:"request_id"`
	OfferID       string               `json:"offer_id"`
	CustomerID    string               `json:"customer_id"`
	ProviderID    string               `json:"provider_id"`
	LastMessage   string               `json:"last_message"`
	LastMessageAt *time.Time           `json:"last_message_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	RequestTitle  string               `json:"request_title"`
	RequestStatus domain.RequestStatus `json:"request_status"`
	CustomerName  string               `json:"customer_name"`
	ProviderName  string               `json:"provider_name"`
}

// ChatRows lists chats userID takes part in, most recently active first.
func ChatRows(ctx context.Context, db *gorm.DB, userID string) ([]ChatRow, error) {
	sqlStr, args, err := sqlBuilder.
		Select(
			"c.id AS id", "c.request_id AS request_id", "c.offer_id AS offer_id",
			"c.customer_id AS customer_id", "c.provider_id AS provider_id",
			"COALESCE(c.last_message, '') AS last_message",
			"c.last_message_at AS last_message_at", "c.updated_at AS updated_at",
			"r.title AS request_title", "r.status AS request_status",
			"COALESCE(cu.name, '') AS customer_name",
			"COALESCE(pr.name, '') AS provider_name",
		).
		From("chats c").
		Join("service_requests r ON r.id = c.request_id").
		LeftJoin("user_profiles cu ON cu.id = c.customer_id").
		LeftJoin("user_profiles pr ON pr.id = c.provider_id").
		Where(sq.Or{sq.Eq{"c.customer_id": userID}, sq.Eq{"c.provider_id": userID}}).
		OrderBy("c.updated_at DESC", "c.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []ChatRow
	err = db.WithContext(ctx).Raw(sqlStr, args...).Scan(&out).Error
	return out, err
}

// JobRow is one of a provider's won offers with its request and chat.
type JobRow struct {
	OfferID      string             `json:"offer_id"`
	RequestID    string             `json:"request_id"`
	RequestTitle string             `json:"request_title"`
	Category     domain.Category    `json:"category"`
	CustomerID   string             `json:"customer_id"`
	CustomerName string             `json:"customer_name"`
	Price        float64            `json:"price"`
	Status       domain.OfferStatus `json:"status"`
	ChatID       string             `json:"chat_id"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// JobRows lists providerID's offers in the given statuses, most recently
// updated first.
func JobRows(ctx context.Context, db *gorm.DB, providerID string, statuses []domain.OfferStatus) ([]JobRow, error) {
	sqlStr, args, err := sqlBuilder.
		Select(
			"o.id AS offer_id", "o.request_id AS request_id",
			"r.title AS request_title", "r.category AS category",
			"r.customer_id AS customer_id",
			"COALESCE(cu.name, '') AS customer_name",
			"o.price AS price", "o.status AS status",
			"COALESCE(c.id, '') AS chat_id", "o.updated_at AS updated_at",
		).
		From("offers o").
		Join("service_requests r ON r.id = o.request_id").
		LeftJoin("user_profiles cu ON cu.id = r.customer_id").
		LeftJoin("chats c ON c.offer_id = o.id").
		Where(sq.Eq{"o.provider_id": providerID, "o.status": statuses}).
		OrderBy("o.updated_at DESC", "o.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []JobRow
	err = db.WithContext(ctx).Raw(sqlStr, args...).Scan(&out).Error
	return out, err
}

// CompletedTotals returns the number and price sum of providerID's
// completed offers.
func CompletedTotals(ctx context.Context, db *gorm.DB, providerID string) (count int64, gross float64, err error) {
	sqlStr, args, err := sqlBuilder.
		Select("COUNT(*) AS jobs", "COALESCE(SUM(price), 0) AS gross").
		From("offers").
		Where(sq.Eq{"provider_id": providerID, "status": domain.OfferCompleted}).
		ToSql()
	if err != nil {
		return 0, 0, err
	}
	var row struct {
		Jobs  int64
		Gross float64
	}
	if err := db.WithContext(ctx).Raw(sqlStr, args...).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Jobs, row.Gross, nil
}
