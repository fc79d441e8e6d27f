package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// MaxOfferMessageRunes caps the note attached to an offer.
const MaxOfferMessageRunes = 1000

// errOfferAlreadyWon aborts an acceptance transaction that found the offer
// already accepted by a concurrent call for the same offer.
var errOfferAlreadyWon = errors.New("offer already accepted")

func errLostAcceptance(op string) error {
	return newErr(KindConcurrentAcceptance, op, "another offer was accepted for this request", nil)
}

// SubmitOffer records a provider's priced offer on a request.
//
// Preconditions: price is finite and non-negative; message is non-empty;
// the session is a provider other than the request's customer; the request
// still accepts offers; the provider has no other pending offer on it.
//
// Writes, in order:
//
//	(a) insert the offer as pending with an offer.submitted outbox row
//	(b) move the request open → offered (no-op when already offered)
//
// (b) is idempotent and retried with backoff on a context that survives
// the caller's cancellation. If every attempt fails the offer is kept and
// returned together with a PartialWriteFailure.
func (l *Lifecycle) SubmitOffer(ctx context.Context, s Session, requestID string, price float64, message string) (_ *domain.Offer, err error) {
	const op = "SubmitOffer"
	ctx, span := l.start(ctx, op,
		attribute.String("user.id", s.UserID),
		attribute.String("request.id", requestID),
		attribute.Float64("price", price),
	)
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleProvider); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	var problems []error
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		problems = append(problems, errors.New("price: must be a finite non-negative amount"))
	}
	if message == "" {
		problems = append(problems, errors.New("message: is required"))
	} else if utf8.RuneCountInString(message) > MaxOfferMessageRunes {
		problems = append(problems, errors.New("message: length must be at most 1000"))
	}
	if len(problems) > 0 {
		return nil, invalidAll(op, problems)
	}

	unlock, err := l.Locker.Lock(ctx, "offer:"+requestID+":"+s.UserID)
	if err != nil {
		return nil, newErr(KindTransport, op, "could not acquire offer lock", err)
	}
	defer unlock()

	req, err := repo.GetRequest(ctx, l.DB, requestID)
	if err != nil {
		return nil, storeErr(op, "request", err)
	}
	if req.CustomerID == s.UserID {
		return nil, precondition(op, "cannot make an offer on your own request")
	}
	if !req.Status.AcceptsOffers() {
		return nil, precondition(op, "request is %s and no longer accepts offers", req.Status)
	}
	pending, err := repo.HasPendingOffer(ctx, l.DB, requestID, s.UserID)
	if err != nil {
		return nil, storeErr(op, "offer", err)
	}
	if pending {
		return nil, precondition(op, "you already have a pending offer on this request")
	}

	offer := &domain.Offer{
		RequestID:  requestID,
		ProviderID: s.UserID,
		CustomerID: req.CustomerID,
		Price:      price,
		Message:    message,
	}
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-check under the request row so an acceptance that committed
		// after the read above is not missed.
		res := tx.Model(&domain.ServiceRequest{}).
			Where("id = ? AND status IN ?", requestID, domain.RequestSources(domain.RequestAccepted)).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return precondition(op, "request no longer accepts offers")
		}
		if err := repo.CreateOffer(ctx, tx, offer); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, aggregateRequest, requestID, domain.EventOfferSubmitted, map[string]any{
			"request_id":  requestID,
			"offer_id":    offer.ID,
			"provider_id": offer.ProviderID,
			"price":       offer.Price,
		})
	})
	if err != nil {
		return nil, storeErr(op, "offer", err)
	}

	fctx, cancel := l.followUpContext(ctx)
	defer cancel()
	markErr := l.Retry.Do(fctx, op, func(ctx context.Context) error {
		return repo.MarkRequestOffered(ctx, l.DB, requestID)
	})

	l.publishRequest(fctx, requestID, offer.ID)

	if markErr != nil {
		log.Ctx(ctx).Warn().Err(markErr).
			Str("request_id", requestID).
			Str("offer_id", offer.ID).
			Int("attempts", l.Retry.normalized().Attempts).
			Msg("offer saved but request status update failed")
		return offer, newErr(KindPartialWrite, op, "offer saved; request status update pending", markErr)
	}
	return offer, nil
}

// AcceptOffer lets the request owner pick an offer and returns the chat
// opened for it.
//
// Semantics:
//   - Accepting an offer that is already accepted (or completed) returns its
//     existing chat without writing anything.
//   - A rejected offer, or a request already settled by another offer, is a
//     PreconditionFailed.
//   - In one transaction: offer pending → accepted; request
//     {open, offered} → accepted; every other pending offer → rejected; chat
//     insert; outbox rows. The request update is the serialization point:
//     when it affects no row another acceptance won, the transaction rolls
//     back and ConcurrentAcceptance is returned.
func (l *Lifecycle) AcceptOffer(ctx context.Context, s Session, offerID string) (_ string, err error) {
	const op = "AcceptOffer"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("offer.id", offerID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleCustomer); err != nil {
		return "", err
	}
	offer, err := repo.GetOffer(ctx, l.DB, offerID)
	if err != nil {
		return "", storeErr(op, "offer", err)
	}
	req, err := repo.GetRequest(ctx, l.DB, offer.RequestID)
	if err != nil {
		return "", storeErr(op, "request", err)
	}
	if req.CustomerID != s.UserID {
		return "", forbidden(op, "offer belongs to another customer's request")
	}

	if offer.Status.Won() {
		return l.existingChat(ctx, op, offer.ID)
	}
	if offer.Status == domain.OfferRejected {
		return "", precondition(op, "offer was rejected")
	}
	if req.Status.Settled() {
		return "", precondition(op, "request already has an accepted offer")
	}

	if l.testHookAfterCheck != nil {
		l.testHookAfterCheck()
	}

	var (
		chat     *domain.Chat
		rejected []string
	)
	// The request row is locked before any offer row, the same order
	// SubmitOffer uses, so two acceptances queue on the request instead of
	// deadlocking across offers.
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionRequest(ctx, tx, offer.RequestID, domain.RequestAccepted)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := repo.GetOffer(ctx, tx, offer.ID)
			if err != nil {
				return err
			}
			if cur.Status.Won() {
				return errOfferAlreadyWon
			}
			return errLostAcceptance(op)
		}

		ok, err = repo.TransitionOffer(ctx, tx, offer.ID, domain.OfferPending, domain.OfferAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return precondition(op, "offer is no longer pending")
		}

		rejected, err = repo.RejectPendingSiblings(ctx, tx, offer.RequestID, offer.ID)
		if err != nil {
			return err
		}
		chat, err = repo.CreateChat(ctx, tx, offer)
		if err != nil {
			return err
		}

		if err := repo.AppendEvent(ctx, tx, aggregateRequest, offer.RequestID, domain.EventOfferAccepted, map[string]any{
			"request_id":  offer.RequestID,
			"offer_id":    offer.ID,
			"provider_id": offer.ProviderID,
			"chat_id":     chat.ID,
			"price":       offer.Price,
		}); err != nil {
			return err
		}
		for _, id := range rejected {
			if err := repo.AppendEvent(ctx, tx, aggregateRequest, offer.RequestID, domain.EventOfferRejected, map[string]any{
				"request_id": offer.RequestID,
				"offer_id":   id,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errOfferAlreadyWon) {
		return l.existingChat(ctx, op, offer.ID)
	}
	if repo.IsContention(err) {
		return "", errLostAcceptance(op)
	}
	if err != nil {
		return "", storeErr(op, "offer", err)
	}

	if l.Index != nil {
		l.Index.Remove(offer.RequestID)
	}
	l.publishRequest(ctx, offer.RequestID, append([]string{offer.ID}, rejected...)...)
	l.publish(realtime.UserTopic(chat.CustomerID), realtime.KindChat, chat)
	l.publish(realtime.UserTopic(chat.ProviderID), realtime.KindChat, chat)
	return chat.ID, nil
}

func (l *Lifecycle) existingChat(ctx context.Context, op, offerID string) (string, error) {
	chat, err := repo.GetChatByOffer(ctx, l.DB, offerID)
	if err != nil {
		if repo.IsNotFound(err) {
			return "", precondition(op, "offer is accepted but has no chat")
		}
		return "", storeErr(op, "chat", err)
	}
	return chat.ID, nil
}

// ListOffersForRequest returns the live offers of a request (pending,
// accepted, completed) with provider summaries and, once accepted, the chat
// id. Only the request owner may list them.
func (l *Lifecycle) ListOffersForRequest(ctx context.Context, s Session, requestID string) (_ []repo.OfferRow, err error) {
	const op = "ListOffersForRequest"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("request.id", requestID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	var req *domain.ServiceRequest
	if err := l.read(ctx, op, "request", func(ctx context.Context) error {
		var err error
		req, err = repo.GetRequest(ctx, l.DB, requestID)
		return err
	}); err != nil {
		return nil, err
	}
	if req.CustomerID != s.UserID {
		return nil, forbidden(op, "only the request owner can list its offers")
	}
	return l.offerRows(ctx, op, requestID)
}

func (l *Lifecycle) offerRows(ctx context.Context, op, requestID string) ([]repo.OfferRow, error) {
	var rows []repo.OfferRow
	err := l.read(ctx, op, "offers", func(ctx context.Context) error {
		var err error
		rows, err = repo.OfferRows(ctx, l.DB, requestID, []domain.OfferStatus{
			domain.OfferPending, domain.OfferAccepted, domain.OfferCompleted,
		})
		return err
	})
	if rows == nil && err == nil {
		rows = []repo.OfferRow{}
	}
	return rows, err
}
