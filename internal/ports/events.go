package ports

import "context"

// EventPublisher delivers one outbox row to the broker. The outbox worker is
// the only caller; partitionKey is the package id so per-package events keep
// their order. Publish must only return nil once the broker has accepted the
// message, since the row is marked published on success.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
