// ABOUTME: Legacy pub/sub listener kept for publishers that have not moved to streams.
// ABOUTME: Messages are only logged; failures back off and never touch the stream consumer.

package streambus

import (
	"context"

	"github.com/tidwall/gjson"
)

func (b *Bus) listenLegacy(ctx context.Context) error {
	delay := initialBackoff
	for ctx.Err() == nil {
		if err := b.subscribeOnce(ctx); err != nil {
			b.logger.Error("legacy pub/sub failed", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, maxBackoff)
			continue
		}
		delay = initialBackoff
	}
	return nil
}

func (b *Bus) subscribeOnce(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channels...)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	b.logger.Info("legacy pub/sub subscribed", "channels", b.channels)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !gjson.Valid(msg.Payload) {
				continue
			}
			b.logger.Debug("legacy pub/sub message",
				"channel", msg.Channel,
				"type", gjson.Get(msg.Payload, "type").String(),
				"payload", msg.Payload,
			)
		}
	}
}
