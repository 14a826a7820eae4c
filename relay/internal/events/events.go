// Package events announces prediction outcomes on the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bloomwatch/bloomwatch-stack/common/messaging"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

// Publisher turns prediction records into broker events. The request body
// is left out of the payload.
type Publisher struct {
	pub messaging.Publisher
}

func NewPublisher(pub messaging.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Name identifies the publisher as a prediction observer.
func (p *Publisher) Name() string {
	return "nats_events"
}

// Observe publishes rec on the succeeded or failed subject.
func (p *Publisher) Observe(ctx context.Context, rec *models.PredictionRecord) error {
	data, err := json.Marshal(rec.Event())
	if err != nil {
		return fmt.Errorf("marshal prediction event: %w", err)
	}

	subject := messaging.PredictionSubject(rec.Succeeded())
	if err := p.pub.Publish(ctx, subject, data, messaging.WithHeader(messaging.HeaderRequestID, rec.RequestID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Decode parses an event payload published by Observe.
func Decode(msg *messaging.Message) (*models.PredictionRecord, error) {
	var rec models.PredictionRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode prediction event on %s: %w", msg.Subject, err)
	}
	if rec.RequestID == "" {
		rec.RequestID = msg.Metadata[messaging.HeaderRequestID]
	}
	return &rec, nil
}
