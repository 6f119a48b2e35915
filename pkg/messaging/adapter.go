package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

// Consume decodes envelopes from channel and hands them to handler until ctx
// is done or the subscription closes. Undecodable messages and handler errors
// are logged and skipped.
func Consume(ctx context.Context, broker Broker, channel string, log *logger.Logger, handler func(Message) error) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgChan:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Warn(err, "discarding undecodable message", "channel", channel)
				continue
			}
			if err := handler(msg); err != nil {
				log.Warn(err, "message handler failed", "channel", channel, "message_id", msg.ID.String())
			}
		}
	}
}
