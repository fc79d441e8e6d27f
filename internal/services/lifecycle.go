// Package services – Lifecycle
//
// Lifecycle is the request lifecycle manager. It owns the state machine over
// ServiceRequest, Offer and Chat, performs each operation's writes in a fixed
// order, and decides what happens when a later write fails:
//
//   - Multi-record effects run in one database transaction, with outbox rows
//     appended in the same transaction as the step log.
//   - Conditional UPDATEs (status IN sources) are the serialization points;
//     zero affected rows means a concurrent writer got there first.
//   - Idempotent follow-up steps that run after a commit are retried with
//     exponential backoff on a context detached from the caller.
//
// After commit, snapshots of the touched entities are published to the
// realtime hub. Publishing is best effort and never fails an operation.
//
// Observability: every public method opens an OpenTelemetry span and records
// lifecycle_operations_total{op,outcome}.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/lock"
	"github.com/tbourn/go-marketplace-backend/internal/media"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/search"
)

// Aggregate names used in outbox rows.
const (
	aggregateRequest = "request"
	aggregateChat    = "chat"
)

// DefaultCommissionRate is the platform share of completed job prices.
const DefaultCommissionRate = 0.10

// Lifecycle coordinates request, offer, chat, message and review writes.
type Lifecycle struct {
	// DB is the GORM handle used for all persistence.
	DB *gorm.DB
	// Gateway is the document view over DB used by the realtime feed.
	Gateway *repo.Gateway
	// Media stores request photos.
	Media media.Store
	// Hub receives snapshots after commit. Optional.
	Hub *realtime.Hub
	// Locker serializes provider aggregate updates.
	Locker lock.Locker
	// Index ranks open requests for text queries. Optional.
	Index *search.Index

	// Retry bounds retries of idempotent follow-up steps and reads.
	Retry RetryPolicy
	// FollowUpTimeout caps the detached follow-up phase of SubmitOffer.
	// Zero derives it from Retry.
	FollowUpTimeout time.Duration
	// CommissionRate is the platform share reported by Wallet.
	CommissionRate float64

	// testHookAfterCheck runs in AcceptOffer between the precondition checks
	// and the transaction.
	testHookAfterCheck func()
}

// NewLifecycle returns a Lifecycle with an in-process locker, a fresh
// search index and default retry policy. Fields may be overridden before
// first use.
func NewLifecycle(db *gorm.DB, store media.Store, hub *realtime.Hub) *Lifecycle {
	return &Lifecycle{
		DB:             db,
		Gateway:        repo.NewGateway(db),
		Media:          store,
		Hub:            hub,
		Locker:         lock.NewLocal(),
		Index:          search.New(),
		Retry:          DefaultRetry,
		CommissionRate: DefaultCommissionRate,
	}
}

func (l *Lifecycle) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/Lifecycle").Start(ctx, op, trace.WithAttributes(attrs...))
}

// end closes span, recording err and the operation outcome.
func end(span trace.Span, op string, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, string(KindOf(*err)))
	}
	observe(op, err)
	span.End()
}

func (l *Lifecycle) followUpContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := l.FollowUpTimeout
	if timeout <= 0 {
		timeout = l.Retry.Budget() + 5*time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// read runs a read with the retry policy. Only transport failures retry.
func (l *Lifecycle) read(ctx context.Context, op, what string, fn func(ctx context.Context) error) error {
	err := l.Retry.Do(ctx, op, func(ctx context.Context) error {
		return storeErr(op, what, fn(ctx))
	})
	return err
}

// publish sends a snapshot of entity to topic. Failures are logged only.
func (l *Lifecycle) publish(topic, kind string, entity any) {
	if l.Hub == nil {
		return
	}
	snap, err := realtime.NewSnapshot(topic, kind, entity)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Str("kind", kind).Msg("build snapshot")
		return
	}
	l.Hub.Publish(snap)
}

// publishRequest pushes the current request row and the given offers to the
// request topic.
func (l *Lifecycle) publishRequest(ctx context.Context, requestID string, offerIDs ...string) {
	if l.Hub == nil {
		return
	}
	topic := realtime.RequestTopic(requestID)
	if r, err := repo.GetRequest(ctx, l.DB, requestID); err == nil {
		l.publish(topic, realtime.KindRequest, r)
	}
	for _, id := range offerIDs {
		if o, err := repo.GetOffer(ctx, l.DB, id); err == nil {
			l.publish(topic, realtime.KindOffer, o)
		}
	}
}
