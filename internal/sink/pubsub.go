package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/logging"
)

// PubSub publishes records as JSON messages on a topic.
type PubSub struct {
	log    *zap.Logger
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub connects a publisher to the given project and topic.
func NewPubSub(ctx context.Context, log *zap.Logger, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSub{
		log:    logging.Named(log, "sink"),
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (p *PubSub) Save(ctx context.Context, rec collector.AcceptedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"keyword":    rec.Keyword,
			"session_id": rec.SessionID,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish record %s: %w", rec.ID, err)
	}
	return nil
}

func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
