package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// ReviewInput is a customer's rating of a completed job.
type ReviewInput struct {
	Rating int    `json:"rating" validate:"gte=1,lte=5"`
	Text   string `json:"text"   validate:"max=1000"`
}

// SubmitReview records the customer's review of the provider who completed
// requestID and folds the rating into the provider's average.
//
// One review exists per (request, customer): the existence check gives a
// clean PreconditionFailed and the unique index catches a racing duplicate.
// The insert and the rating merge run in one transaction inside the
// per-provider critical section, so concurrent reviews of the same provider
// apply one after the other.
func (l *Lifecycle) SubmitReview(ctx context.Context, s Session, requestID string, in ReviewInput) (_ *domain.Review, err error) {
	const op = "SubmitReview"
	ctx, span := l.start(ctx, op,
		attribute.String("user.id", s.UserID),
		attribute.String("request.id", requestID),
		attribute.Int("rating", in.Rating),
	)
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleCustomer); err != nil {
		return nil, err
	}
	in.Text = strings.TrimSpace(in.Text)
	if err := validateInput(op, in); err != nil {
		return nil, err
	}

	req, err := repo.GetRequest(ctx, l.DB, requestID)
	if err != nil {
		return nil, storeErr(op, "request", err)
	}
	if req.CustomerID != s.UserID {
		return nil, forbidden(op, "only the request owner can review it")
	}
	if req.Status != domain.RequestCompleted {
		return nil, precondition(op, "request is %s; only completed jobs can be reviewed", req.Status)
	}
	exists, err := repo.ReviewExists(ctx, l.DB, requestID, s.UserID)
	if err != nil {
		return nil, storeErr(op, "review", err)
	}
	if exists {
		return nil, precondition(op, "request already reviewed")
	}
	won, err := repo.WonOffer(ctx, l.DB, requestID)
	if err != nil {
		return nil, storeErr(op, "offer", err)
	}

	unlock, err := l.Locker.Lock(ctx, "provider:"+won.ProviderID)
	if err != nil {
		return nil, newErr(KindTransport, op, "could not acquire provider lock", err)
	}
	defer unlock()

	review := &domain.Review{
		RequestID:  requestID,
		CustomerID: s.UserID,
		ProviderID: won.ProviderID,
		Rating:     in.Rating,
		Text:       in.Text,
	}
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateReview(ctx, tx, review); err != nil {
			if repo.IsDuplicate(err) {
				return precondition(op, "request already reviewed")
			}
			return err
		}
		if err := repo.ApplyRating(ctx, tx, won.ProviderID, in.Rating); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, aggregateRequest, requestID, domain.EventReviewSubmitted, map[string]any{
			"request_id":  requestID,
			"review_id":   review.ID,
			"provider_id": won.ProviderID,
			"rating":      in.Rating,
		})
	})
	if err != nil {
		return nil, storeErr(op, "review", err)
	}
	return review, nil
}
