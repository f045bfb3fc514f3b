package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/rangda/ports"
)

const (
	// SessionReadyTopic carries session readiness events
	SessionReadyTopic = "rangda.session.ready"

	// ProfileCreatedTopic carries profile deployment events
	ProfileCreatedTopic = "rangda.profile.created"

	// RelaySubmittedTopic carries relay submission events
	RelaySubmittedTopic = "rangda.relay.submitted"
)

// SessionReadyEvent signals that an account reached the ready phase
type SessionReadyEvent struct {
	Account string `json:"account"`
}

// ProfileCreatedEvent signals that a smart account was deployed
type ProfileCreatedEvent struct {
	Controller string `json:"controller"`
	Profile    string `json:"profile"`
	TxHash     string `json:"tx_hash"`
}

// RelaySubmittedEvent signals that a relay call was confirmed on-chain
type RelaySubmittedEvent struct {
	Controller string `json:"controller"`
	TxHash     string `json:"tx_hash"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
	}
}

// PublishSessionReady publishes a session readiness event
func (p *WatermillPublisher) PublishSessionReady(ctx context.Context, account string) error {
	return p.publish(SessionReadyTopic, SessionReadyEvent{Account: account})
}

// PublishProfileCreated publishes a profile deployment event
func (p *WatermillPublisher) PublishProfileCreated(ctx context.Context, controller, profile, txHash string) error {
	return p.publish(ProfileCreatedTopic, ProfileCreatedEvent{
		Controller: controller,
		Profile:    profile,
		TxHash:     txHash,
	})
}

// PublishRelaySubmitted publishes a relay submission event
func (p *WatermillPublisher) PublishRelaySubmitted(ctx context.Context, controller, txHash string) error {
	return p.publish(RelaySubmittedTopic, RelaySubmittedEvent{
		Controller: controller,
		TxHash:     txHash,
	})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
