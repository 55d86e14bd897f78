package events

import "context"

// NoopConsumer is used when no broker is configured (local development,
// unit tests). It never yields messages.
type NoopConsumer struct{}

func NewNoopConsumer() *NoopConsumer {
	return &NoopConsumer{}
}

func (c *NoopConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	return nil, nil
}

func (c *NoopConsumer) Commit(ctx context.Context, msg Message) error {
	return nil
}

func (c *NoopConsumer) Close() error {
	return nil
}
