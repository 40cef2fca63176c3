package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/metrics"
	"github.com/example/playback-heatmap/services/heatmap/internal/idempotency"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
)

type fakeIngester struct {
	calls int
	err   error
	keys  []store.RecordKey
}

func (f *fakeIngester) Ingest(_ context.Context, key store.RecordKey, actions []playback.Action) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.keys = append(f.keys, key)
	return len(actions), nil
}

func newConsumer(t *testing.T, ing Ingester) *ActionsConsumer {
	t.Helper()
	idem, err := idempotency.NewStore(nil, nil, 0, false)
	require.NoError(t, err)
	return &ActionsConsumer{Ingester: ing, Idempotency: idem, Log: zap.NewNop()}
}

const validEvent = `{"event_id":"evt-1","user_id":"u1","podcast_id":"p1","episode_id":"e1",
	"actions":[{"action":"play","started":0,"position":30,"timestamp":"2026-01-02T03:04:05Z"}]}`

func TestHandle_AppliesOnce(t *testing.T) {
	ing := &fakeIngester{}
	c := newConsumer(t, ing)
	ctx := context.Background()

	assert.Equal(t, OutcomeApplied, c.Handle(ctx, []byte(validEvent)))
	assert.Equal(t, OutcomeDuplicate, c.Handle(ctx, []byte(validEvent)))
	assert.Equal(t, 1, ing.calls)
	assert.Equal(t, store.RecordKey{PodcastID: "p1", EpisodeID: "e1", UserID: "u1"}, ing.keys[0])
}

func TestHandle_RejectsMalformed(t *testing.T) {
	c := newConsumer(t, &fakeIngester{})
	cases := map[string]string{
		"not json":     `{`,
		"no event id":  `{"user_id":"u1","podcast_id":"p1","episode_id":"e1"}`,
		"no user":      `{"event_id":"x","podcast_id":"p1","episode_id":"e1"}`,
		"no episode":   `{"event_id":"x","user_id":"u1","podcast_id":"p1"}`,
		"unknown kind": `{"event_id":"x","user_id":"u1","podcast_id":"p1","episode_id":"e1","actions":[{"action":"skip"}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, OutcomeRejected, c.Handle(context.Background(), []byte(payload)))
		})
	}
}

func TestHandle_RetryAfterIngestFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("db down")}
	c := newConsumer(t, ing)
	ctx := context.Background()

	assert.Equal(t, OutcomeRetry, c.Handle(ctx, []byte(validEvent)))

	ing.err = nil
	assert.Equal(t, OutcomeApplied, c.Handle(ctx, []byte(validEvent)))
	assert.Equal(t, 2, ing.calls)
}

type fakeMsg struct{ acked, naked, termed int }

func (m *fakeMsg) Ack(...nats.AckOpt) error  { m.acked++; return nil }
func (m *fakeMsg) Nak(...nats.AckOpt) error  { m.naked++; return nil }
func (m *fakeMsg) Term(...nats.AckOpt) error { m.termed++; return nil }

func TestSettle(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := &ActionsConsumer{Log: zap.NewNop(), Metrics: m}

	msg := &fakeMsg{}
	c.settle(msg, OutcomeApplied)
	c.settle(msg, OutcomeDuplicate)
	c.settle(msg, OutcomeRetry)
	c.settle(msg, OutcomeRejected)

	assert.Equal(t, 2, msg.acked)
	assert.Equal(t, 1, msg.naked)
	assert.Equal(t, 1, msg.termed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerMessagesTotal.WithLabelValues(OutcomeRetry)))
}
