package payment

import (
	"context"
	"encoding/json"

	"staypay/internal/common/nats"
)

// StreamName is the JetStream stream holding all payment subjects.
const StreamName = "PAYMENTS"

// Subjects lists the subjects the payment stream must cover.
func Subjects() []string {
	return []string{SubjectAttemptCreated, SubjectAttemptFinished}
}

// NatsPublisher publishes attempt events to JetStream.
type NatsPublisher struct {
	client *nats.Client
}

func NewNatsPublisher(client *nats.Client) *NatsPublisher {
	return &NatsPublisher{client: client}
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, subject, data)
}
