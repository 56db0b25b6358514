package status

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/awehrman/peas/internal/queue/redisclient"
)

const DefaultChannel = "peas:status"

// RedisBroadcaster publishes status events on a redis channel. The api
// process subscribes and forwards into its websocket hub, so workers
// never hold client connections themselves.
type RedisBroadcaster struct {
	client  *redisclient.Client
	channel string
}

func NewRedisBroadcaster(client *redisclient.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}

	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Raw().Publish(ctx, b.channel, payload).Err()
}

// SubscribeAndForward pumps events from the redis channel into a local
// sink (the websocket hub) until the context ends. Malformed frames are
// logged and skipped.
func SubscribeAndForward(ctx context.Context, client *redisclient.Client, channel string, sink Broadcaster, log *slog.Logger) {
	if channel == "" {
		channel = DefaultChannel
	}

	pubsub := client.Raw().Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if log != nil {
					log.Warn("status.forward bad frame", "err", err)
				}
				continue
			}

			if err := sink.AddStatusEventAndBroadcast(ctx, event); err != nil && log != nil {
				log.Warn("status.forward failed", "import_id", event.ImportID, "err", err)
			}
		}
	}
}
