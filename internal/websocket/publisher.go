package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"livechat-backend/internal/presence"

	"github.com/go-redis/redis/v8"
)

const relayChannel = "livechat:ws:events"

// relayEnvelope carries one out-event across nodes. Origin lets a node skip
// frames it published itself.
type relayEnvelope struct {
	Origin    string          `json:"origin"`
	Role      presence.Role   `json:"role,omitempty"`
	ID        string          `json:"id,omitempty"`
	Broadcast bool            `json:"broadcast,omitempty"`
	Exclude   string          `json:"exclude,omitempty"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Publisher fans out-events to the other nodes through redis pub/sub.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(envelope relayEnvelope) error {
	if p == nil || p.client == nil {
		return nil
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal envelope: %w", err)
	}
	if err := p.client.Publish(context.Background(), relayChannel, string(raw)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}

// Subscribe consumes relayed envelopes until ctx ends. Malformed frames are
// logged and skipped.
func (p *Publisher) Subscribe(ctx context.Context, handle func(relayEnvelope)) {
	if p == nil || p.client == nil {
		return
	}

	subscriber := p.client.Subscribe(ctx, relayChannel)
	defer subscriber.Close()

	ch := subscriber.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				log.Printf("websocket relay: bad envelope: %v", err)
				continue
			}
			handle(envelope)
		}
	}
}
