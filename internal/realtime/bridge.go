package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"courseflow-backend/internal/events"
)

const eventsChannel = "courseflow:events"

// Bridge relays event frames between server instances over Redis pub/sub,
// so a user whose tabs landed on different instances still sees every event.
// Frames carry the publishing instance's origin tag; the bridge ignores its
// own frames to avoid double delivery.
type Bridge struct {
	commands  *redis.Client
	pubsub    *redis.Client
	publisher *Publisher
	cancel    context.CancelFunc
}

func NewBridge(commands, pubsub *redis.Client, publisher *Publisher) *Bridge {
	return &Bridge{
		commands:  commands,
		pubsub:    pubsub,
		publisher: publisher,
	}
}

// Start subscribes to the shared events channel and routes foreign frames
// into the local publisher.
func (b *Bridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	sub := b.pubsub.Subscribe(ctx, eventsChannel)
	go func() {
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame events.Frame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					log.Printf("realtime: bridge received malformed frame: %v", err)
					continue
				}
				if frame.Origin == b.publisher.Origin() {
					continue
				}
				b.publisher.Deliver(frame)
			}
		}
	}()
}

func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Publish pushes a frame to the shared channel. Failures are logged and
// swallowed — remote fan-out is best-effort, same as local delivery.
func (b *Bridge) Publish(ctx context.Context, frame events.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("realtime: bridge failed to marshal %s frame: %v", frame.Type, err)
		return
	}
	if err := b.commands.Publish(ctx, eventsChannel, data).Err(); err != nil {
		log.Printf("realtime: bridge failed to publish %s frame: %v", frame.Type, err)
	}
}
