package services

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// CompleteJob marks the job behind a chat as done. Only the chat's provider
// may complete it, and only while the request is accepted.
//
// In one transaction the request moves accepted → completed, the winning
// offer moves accepted → completed, the offer price is credited to the
// provider's earnings and a job.completed outbox row is appended. The
// conditional request update makes a second completion a no-op that
// surfaces as PreconditionFailed.
func (l *Lifecycle) CompleteJob(ctx context.Context, s Session, chatID string) (err error) {
	const op = "CompleteJob"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("chat.id", chatID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleProvider); err != nil {
		return err
	}
	chat, err := repo.GetChat(ctx, l.DB, chatID)
	if err != nil {
		return storeErr(op, "chat", err)
	}
	if chat.ProviderID != s.UserID {
		return forbidden(op, "only the chat's provider can complete the job")
	}
	req, err := repo.GetRequest(ctx, l.DB, chat.RequestID)
	if err != nil {
		return storeErr(op, "request", err)
	}
	switch req.Status {
	case domain.RequestAccepted:
	case domain.RequestCompleted:
		return precondition(op, "job is already completed")
	default:
		return precondition(op, "request is %s, not accepted", req.Status)
	}
	offer, err := repo.GetOffer(ctx, l.DB, chat.OfferID)
	if err != nil {
		return storeErr(op, "offer", err)
	}

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionRequest(ctx, tx, req.ID, domain.RequestCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return precondition(op, "job is already completed")
		}
		ok, err = repo.TransitionOffer(ctx, tx, offer.ID, domain.OfferAccepted, domain.OfferCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return precondition(op, "offer is not in accepted state")
		}
		if err := repo.AddEarnings(ctx, tx, offer.ProviderID, offer.Price); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, aggregateRequest, req.ID, domain.EventJobCompleted, map[string]any{
			"request_id":  req.ID,
			"offer_id":    offer.ID,
			"chat_id":     chat.ID,
			"provider_id": offer.ProviderID,
			"price":       offer.Price,
		})
	})
	if err != nil {
		return storeErr(op, "job", err)
	}

	l.publishRequest(ctx, req.ID, offer.ID)
	if c, err := repo.GetChat(ctx, l.DB, chat.ID); err == nil {
		l.publish(realtime.ChatTopic(c.ID), realtime.KindChat, c)
	}
	return nil
}

// ProviderJobs lists the provider's accepted and completed offers with the
// request title and chat id, most recently updated first.
func (l *Lifecycle) ProviderJobs(ctx context.Context, s Session) (_ []repo.JobRow, err error) {
	const op = "ProviderJobs"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleProvider); err != nil {
		return nil, err
	}
	var rows []repo.JobRow
	err = l.read(ctx, op, "jobs", func(ctx context.Context) error {
		var err error
		rows, err = repo.JobRows(ctx, l.DB, s.UserID, []domain.OfferStatus{domain.OfferAccepted, domain.OfferCompleted})
		return err
	})
	if rows == nil && err == nil {
		rows = []repo.JobRow{}
	}
	return rows, err
}

// WalletSummary summarizes a provider's completed work. Amounts are rounded to
// cents; Net is Gross minus Commission.
type WalletSummary struct {
	CompletedJobs  int64         `json:"completed_jobs"`
	Gross          float64       `json:"gross"`
	CommissionRate float64       `json:"commission_rate"`
	Commission     float64       `json:"commission"`
	Net            float64       `json:"net"`
	Jobs           []repo.JobRow `json:"jobs"`
}

// Wallet reports the provider's completed jobs and earnings after the
// platform commission.
func (l *Lifecycle) Wallet(ctx context.Context, s Session) (_ *WalletSummary, err error) {
	const op = "Wallet"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleProvider); err != nil {
		return nil, err
	}
	var (
		count int64
		gross float64
		jobs  []repo.JobRow
	)
	err = l.read(ctx, op, "wallet", func(ctx context.Context) error {
		var err error
		if count, gross, err = repo.CompletedTotals(ctx, l.DB, s.UserID); err != nil {
			return err
		}
		jobs, err = repo.JobRows(ctx, l.DB, s.UserID, []domain.OfferStatus{domain.OfferCompleted})
		return err
	})
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []repo.JobRow{}
	}

	rate := l.CommissionRate
	commission := cents(gross * rate)
	return &WalletSummary{
		CompletedJobs:  count,
		Gross:          cents(gross),
		CommissionRate: rate,
		Commission:     commission,
		Net:            cents(cents(gross) - commission),
		Jobs:           jobs,
	}, nil
}

func cents(v float64) float64 { return math.Round(v*100) / 100 }
