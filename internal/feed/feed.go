// Package feed broadcasts store changes to live subscribers such as the
// companion UI's event stream.
//
// Events travel over a Watermill in-process Go-channel pub/sub on a single
// topic. Publishing never waits for subscribers; a subscriber that stops
// reading only delays its own deliveries. Delivery order between events
// published in quick succession is not guaranteed.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/zauberware/smshog/internal/jsoncodec"
	"github.com/zauberware/smshog/internal/store"
)

// Topic is the pub/sub topic all events are published on.
const Topic = "smshog.events"

const subscriberBuffer = 64

// Event is one store change as seen by subscribers.
type Event struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	Message *store.Message `json:"message,omitempty"`
	At      time.Time      `json:"at"`
}

// FromChange converts a store change into an Event.
func FromChange(c store.Change) Event {
	return Event{
		Type:    string(c.Kind),
		ID:      c.ID,
		Message: c.Message,
		At:      c.At,
	}
}

// Feed fans events out to subscribers.
type Feed struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// New creates a Feed. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: subscriberBuffer},
		watermill.NewSlogLogger(logger),
	)
	return &Feed{pubsub: pubsub, logger: logger}
}

// Publish sends ev to every current subscriber. Events published while
// nobody is subscribed are dropped.
func (f *Feed) Publish(ev Event) error {
	payload, err := jsoncodec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := f.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Observe publishes a store change. It has the signature of a store
// observer; failures are logged.
func (f *Feed) Observe(c store.Change) {
	if err := f.Publish(FromChange(c)); err != nil {
		f.logger.Debug("dropping store event", "type", c.Kind, "error", err)
	}
}

// Subscribe delivers events until ctx is cancelled or the feed is closed,
// then closes the returned channel.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := f.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			err := jsoncodec.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil {
				f.logger.Error("failed to decode event", "message_uuid", msg.UUID, "error", err)
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts down the pub/sub. Open subscriptions are ended.
func (f *Feed) Close() error {
	return f.pubsub.Close()
}
