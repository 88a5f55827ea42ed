package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const msgEventChanged = "event_changed"

// EventsPubSub fans out "event changed" notifications so every instance
// can drop its cached copy of the event.
type EventsPubSub struct {
	rdb     redis.UniversalClient
	channel string
}

func NewEventsPubSub(rdb redis.UniversalClient) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelEventsChanged(),
	}
}

type eventMessage struct {
	Type    string    `json:"type"`
	EventID string    `json:"event_id"`
	SentAt  time.Time `json:"sent_at"`
}

// PublishEventChanged announces that seats of eventID changed.
func (p *EventsPubSub) PublishEventChanged(ctx context.Context, eventID string) error {
	b, err := json.Marshal(eventMessage{
		Type:    msgEventChanged,
		EventID: eventID,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks until ctx is done, calling handler once per
// event_changed message. Other payloads are skipped.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, eventID string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	// wait for the subscription confirmation so no publish is missed after return
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if eventID, ok := decodeEventChanged(m.Payload); ok {
				handler(ctx, eventID)
			}
		}
	}
}

func decodeEventChanged(payload string) (string, bool) {
	var msg eventMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", false
	}
	if msg.Type != msgEventChanged || msg.EventID == "" {
		return "", false
	}
	return msg.EventID, true
}
