// Package relay drains the event spool to the remote ingestion endpoint.
// Delivery is best-effort: a failed batch stays spooled and is retried on
// the next tick, so the primary tracking flow never blocks on the network.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/config"
	"github.com/labai-app/tracking-agent/internal/spool"
)

// Ingestor delivers event batches upstream. Implemented by apiclient.
type Ingestor interface {
	IngestEvents(ctx context.Context, token string, events []schemas.Event) error
}

// TokenSource yields the current bearer token, empty when logged out.
// Satisfied by auth.Service.
type TokenSource interface {
	Token() string
}

// Relay runs the background delivery loop.
type Relay struct {
	spool     *spool.Spool
	ingestor  Ingestor
	tokens    TokenSource
	limiter   *rate.Limiter
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

// New creates a relay over the given spool.
func New(cfg config.RelayConfig, batchSize int, sp *spool.Spool, ingestor Ingestor, tokens TokenSource, logger *zap.Logger) *Relay {
	return &Relay{
		spool:     sp,
		ingestor:  ingestor,
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Limit(cfg.BatchesPerSec), cfg.Burst),
		interval:  cfg.Interval,
		batchSize: batchSize,
		log:       logger.Named("relay"),
	}
}

// Run drives the delivery loop until the context is canceled. It always
// returns nil on cancellation so errgroup shutdown stays clean.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize))

	for {
		select {
		case <-ctx.Done():
			// Final opportunistic drain; spooled events survive regardless.
			r.drain(context.WithoutCancel(ctx))
			r.log.Info("Relay stopped")
			return nil
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// Drain flushes the spool once, outside the loop. Used by tests and the
// shutdown path.
func (r *Relay) Drain(ctx context.Context) {
	r.drain(ctx)
}

func (r *Relay) drain(ctx context.Context) {
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		entries, err := r.spool.NextBatch(ctx, r.batchSize)
		if err != nil {
			r.log.Error("Failed to read spool batch", zap.Error(err))
			return
		}
		if len(entries) == 0 {
			return
		}

		events := make([]schemas.Event, len(entries))
		ids := make([]int64, len(entries))
		for i, entry := range entries {
			events[i] = entry.Event
			ids[i] = entry.ID
		}

		if err := r.ingestor.IngestEvents(ctx, r.tokens.Token(), events); err != nil {
			// Leave the batch spooled; next tick retries it.
			r.log.Warn("Event batch delivery failed, will retry",
				zap.Int("events", len(events)), zap.Error(err))
			return
		}

		if err := r.spool.MarkRelayed(ctx, ids...); err != nil {
			// Worst case the batch is re-sent next tick; ingestion dedup is
			// the server's concern.
			r.log.Error("Failed to mark batch relayed", zap.Error(err))
			return
		}

		r.log.Debug("Relayed event batch", zap.Int("events", len(events)))
	}
}
