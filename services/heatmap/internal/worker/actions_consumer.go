// Package worker applies playback actions published on JetStream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/metrics"
	"github.com/example/playback-heatmap/services/heatmap/internal/idempotency"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
)

// ActionsEvent is the payload published by the upload handler for one
// (podcast, episode) group of a user's actions.
type ActionsEvent struct {
	EventID   string            `json:"event_id"`
	UserID    string            `json:"user_id"`
	PodcastID string            `json:"podcast_id"`
	EpisodeID string            `json:"episode_id"`
	Actions   []playback.Action `json:"actions"`
	CreatedAt string            `json:"created_at"`
}

var errMalformed = errors.New("malformed actions event")

// Validate reports events that can never be applied.
func (ev ActionsEvent) Validate() error {
	switch {
	case strings.TrimSpace(ev.EventID) == "":
		return fmt.Errorf("%w: event_id is required", errMalformed)
	case strings.TrimSpace(ev.UserID) == "":
		return fmt.Errorf("%w: user_id is required", errMalformed)
	case strings.TrimSpace(ev.PodcastID) == "" || strings.TrimSpace(ev.EpisodeID) == "":
		return fmt.Errorf("%w: podcast_id and episode_id are required", errMalformed)
	}
	for i, a := range ev.Actions {
		if !a.Kind.Valid() {
			return fmt.Errorf("%w: action %d has unknown kind %q", errMalformed, i, a.Kind)
		}
	}
	return nil
}

// Ingester stores actions; *service.Heatmaps satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, key store.RecordKey, actions []playback.Action) (int, error)
}

// Outcomes reported per message.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeRetry     = "retry"
	OutcomeRejected  = "rejected"
)

// ActionsConsumer pulls ActionsEvent messages in batches from a durable
// JetStream consumer.
type ActionsConsumer struct {
	JS        nats.JetStreamContext
	Subject   string
	Durable   string
	BatchSize int
	BatchWait time.Duration

	Ingester    Ingester
	Idempotency idempotency.Store
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Run fetches and applies messages until ctx is cancelled.
func (c *ActionsConsumer) Run(ctx context.Context) error {
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	batch := c.BatchSize
	if batch <= 0 {
		batch = 100
	}
	wait := c.BatchWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	sub, err := c.JS.PullSubscribe(c.Subject, c.Durable, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.Subject, err)
	}
	defer func() { _ = sub.Drain() }()

	c.Log.Info("actions consumer started",
		zap.String("subject", c.Subject), zap.String("durable", c.Durable), zap.Int("batch_size", batch))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("actions consumer: fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.settle(m, c.Handle(ctx, m.Data))
		}
	}
}

// ackable is the part of *nats.Msg used to settle a delivery.
type ackable interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

func (c *ActionsConsumer) settle(m ackable, outcome string) {
	var err error
	switch outcome {
	case OutcomeApplied, OutcomeDuplicate:
		err = m.Ack()
	case OutcomeRetry:
		err = m.Nak()
	default:
		err = m.Term()
	}
	if err != nil {
		c.Log.Warn("actions consumer: settle failed", zap.String("outcome", outcome), zap.Error(err))
	}
	c.Metrics.ConsumerMessage(outcome)
}

// Handle applies one message payload and reports how it must be settled.
func (c *ActionsConsumer) Handle(ctx context.Context, data []byte) string {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	var ev ActionsEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		log.Warn("actions consumer: invalid json", zap.Error(err))
		return OutcomeRejected
	}
	if err := ev.Validate(); err != nil {
		log.Warn("actions consumer: rejected event", zap.String("event_id", ev.EventID), zap.Error(err))
		return OutcomeRejected
	}

	if c.Idempotency != nil {
		dup, err := c.Idempotency.Check(ctx, ev.EventID)
		if err != nil {
			log.Warn("actions consumer: idempotency check failed", zap.String("event_id", ev.EventID), zap.Error(err))
			return OutcomeRetry
		}
		if dup {
			return OutcomeDuplicate
		}
	}

	key := store.RecordKey{PodcastID: ev.PodcastID, EpisodeID: ev.EpisodeID, UserID: ev.UserID}
	inserted, err := c.Ingester.Ingest(ctx, key, ev.Actions)
	if err != nil {
		log.Error("actions consumer: ingest failed", zap.String("event_id", ev.EventID), zap.Error(err))
		if c.Idempotency != nil {
			if ferr := c.Idempotency.Forget(ctx, ev.EventID); ferr != nil {
				log.Warn("actions consumer: forget failed", zap.String("event_id", ev.EventID), zap.Error(ferr))
			}
		}
		return OutcomeRetry
	}

	log.Debug("actions applied",
		zap.String("event_id", ev.EventID),
		zap.String("episode_id", ev.EpisodeID),
		zap.Int("uploaded", len(ev.Actions)),
		zap.Int("inserted", inserted))
	return OutcomeApplied
}
