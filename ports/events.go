package ports

import "context"

// EventPublisher publishes lifecycle events to notify other instances.
type EventPublisher interface {
	PublishSessionReady(ctx context.Context, account string) error
	PublishProfileCreated(ctx context.Context, controller, profile, txHash string) error
	PublishRelaySubmitted(ctx context.Context, controller, txHash string) error
}
