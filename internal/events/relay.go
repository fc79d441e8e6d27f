package events

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

var (
	outboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events delivered to the event bus.",
	})
	outboxFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Failed outbox delivery attempts.",
	})
)

func init() {
	prometheus.MustRegister(outboxPublished, outboxFailures)
}

// Relay moves unpublished outbox rows to a Publisher. Delivery is
// at-least-once: a crash between Publish and MarkPublished resends.
type Relay struct {
	DB        *gorm.DB
	Publisher Publisher
	Interval  time.Duration
	Batch     int
}

// NewRelay returns a relay with the given polling cadence.
func NewRelay(db *gorm.DB, p Publisher, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch < 1 {
		batch = 100
	}
	return &Relay{DB: db, Publisher: p, Interval: interval, Batch: batch}
}

// Run drains the outbox every Interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	lg := log.With().Str("component", "outbox_relay").Logger()
	lg.Info().Dur("interval", r.Interval).Int("batch", r.Batch).Msg("outbox relay started")

	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			lg.Warn().Err(err).Msg("outbox drain failed")
		}
		select {
		case <-ctx.Done():
			lg.Info().Msg("outbox relay stopped")
			return
		case <-t.C:
		}
	}
}

// Drain publishes pending events batch by batch until the outbox is empty
// or a publish fails. It returns the number of events delivered.
//
// Events are published one at a time in append order. The first failure
// is recorded on its row and stops the pass, so a later event is never
// delivered ahead of an earlier one.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		rows, err := repo.PendingEvents(ctx, r.DB, r.Batch)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			return total, nil
		}
		for _, row := range rows {
			if err := r.Publisher.Publish(ctx, FromOutbox(row)); err != nil {
				outboxFailures.Inc()
				if mErr := repo.MarkFailed(ctx, r.DB, row.ID, err); mErr != nil {
					log.Error().Err(mErr).Str("event_id", row.ID).Msg("record outbox failure")
				}
				return total, err
			}
			if err := repo.MarkPublished(ctx, r.DB, []string{row.ID}, time.Now().UTC()); err != nil {
				return total, err
			}
			outboxPublished.Inc()
			total++
		}
		if len(rows) < r.Batch {
			return total, nil
		}
	}
}
