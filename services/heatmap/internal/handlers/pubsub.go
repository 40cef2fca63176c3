package handlers

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/playback-heatmap/services/heatmap/internal/worker"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// JetStreamPublisher is the subset of nats.JetStreamContext used for uploads.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type EventPublisher struct {
	js          JetStreamPublisher
	subject     string
	asyncWrites bool
}

func NewEventPublisher(js JetStreamPublisher, subject string, asyncWrites bool) *EventPublisher {
	return &EventPublisher{js: js, subject: subject, asyncWrites: asyncWrites}
}

func (p *EventPublisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

// PublishActions assigns ev an event id and publishes it for the actions consumer.
func (p *EventPublisher) PublishActions(ev worker.ActionsEvent) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}

	ev.EventID = uuid.NewString()
	if ev.CreatedAt == "" {
		ev.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := sonic.Marshal(ev)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(p.subject, body, nats.MsgId(ev.EventID)); err != nil {
		return "", err
	}
	return ev.EventID, nil
}
