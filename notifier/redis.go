package notifier

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

const DefaultRedisChannel = "familyfeed.changes"

type RedisRelayConfig struct {
	Name    string
	Channel string
}

// RedisRelay carries change signals between processes. Published signals go
// to a redis channel, every relay subscribed to it, this one included,
// forwards them to its local hub.
type RedisRelay struct {
	Config RedisRelayConfig

	client *redis.Client
	hub    *Hub
}

var _ feed.ChangePublisher = (*RedisRelay)(nil)

func NewRedisRelay(config RedisRelayConfig, client *redis.Client, hub *Hub) *RedisRelay {
	if config.Channel == "" {
		config.Channel = DefaultRedisChannel
	}
	return &RedisRelay{
		Config: config,
		client: client,
		hub:    hub,
	}
}

func (r *RedisRelay) NotifyFamilyChanged(ctx context.Context, familyID string) error {
	payload, err := model.NewFamilySignal(familyID).Marshal()
	if err != nil {
		return err
	}
	return errors.Wrapf(r.client.Publish(ctx, r.Config.Channel, payload).Err(),
		"publish to redis channel %s", r.Config.Channel)
}

// RunModule forwards signals until ctx is done. A lost subscription is an
// error so the engine restarts the relay.
func (r *RedisRelay) RunModule(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.Config.Channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to redis channel %s", r.Config.Channel)
	}
	Logger.Log.Infof("%s: relaying redis channel %s", r.Name(), r.Config.Channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.Errorf("redis channel %s closed", r.Config.Channel)
			}
			signal, err := model.UnmarshalSignal(msg.Payload)
			if err != nil {
				Logger.Log.Errorf("%s: drop malformed signal: %s", r.Name(), err)
				continue
			}
			r.hub.Publish(signal)
		}
	}
}

func (r *RedisRelay) Name() string {
	return r.Config.Name
}
