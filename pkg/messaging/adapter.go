package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// BrokerAdapter publishes typed envelopes on a single channel and decodes
// them back for subscribers.
type BrokerAdapter struct {
	broker  Broker
	channel string
	logger  zerolog.Logger
}

func NewBrokerAdapter(broker Broker, channel string, logger zerolog.Logger) *BrokerAdapter {
	return &BrokerAdapter{broker: broker, channel: channel, logger: logger}
}

func (a *BrokerAdapter) Channel() string {
	return a.channel
}

// PublishEvent wraps payload in a Message and publishes it.
func (a *BrokerAdapter) PublishEvent(ctx context.Context, id, eventType string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("event %s payload is not valid JSON", id)
	}
	return a.broker.Publish(ctx, a.channel, Message{
		ID:      id,
		Type:    eventType,
		Payload: payload,
	})
}

// Subscribe calls handler for every envelope received until ctx is done.
// Undecodable messages and handler errors are logged and skipped.
func (a *BrokerAdapter) Subscribe(ctx context.Context, handler func(context.Context, Message) error) error {
	msgChan, err := a.broker.Subscribe(ctx, a.channel)
	if err != nil {
		return err
	}

	go func() {
		for raw := range msgChan {
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				a.logger.Warn().Err(err).Str("channel", a.channel).Msg("dropping undecodable message")
				continue
			}
			if err := handler(ctx, msg); err != nil {
				a.logger.Error().Err(err).Str("event_type", msg.Type).Str("event_id", msg.ID).Msg("message handler failed")
			}
		}
	}()

	return nil
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}
