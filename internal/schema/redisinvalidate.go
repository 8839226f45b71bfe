package schema

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/mstreamio/mstream/internal/logging"
)

// RedisInvalidator propagates schema cache invalidation across every
// mstream process sharing a Mongo/Postgres job store, mirroring the
// teacher's infrastructure/cache versioned-invalidation pattern
// (CacheEntry.Version / InvalidateVersion) but over a pub/sub channel
// instead of an in-process version counter, since a Registry here is
// per-process.
type RedisInvalidator struct {
	client  *redis.Client
	channel string
	log     *logging.Logger
}

// NewRedisInvalidator builds an invalidator publishing/subscribing on
// channel over client.
func NewRedisInvalidator(client *redis.Client, channel string, log *logging.Logger) *RedisInvalidator {
	if log == nil {
		log = logging.NewDefault()
	}
	return &RedisInvalidator{client: client, channel: channel, log: log}
}

// PublishInvalidation announces that (service, resource)'s schema changed,
// so every subscribed Registry should drop its cached copy. An empty
// resource invalidates every schema cached for service.
func (inv *RedisInvalidator) PublishInvalidation(ctx context.Context, service, resource string) error {
	return inv.client.Publish(ctx, inv.channel, service+"/"+resource).Err()
}

// Listen subscribes to the invalidation channel and applies incoming
// messages to reg until ctx is cancelled. Run it in its own goroutine.
func (inv *RedisInvalidator) Listen(ctx context.Context, reg *Registry) {
	sub := inv.client.Subscribe(ctx, inv.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			service, resource, found := strings.Cut(msg.Payload, "/")
			if !found {
				reg.InvalidateAll()
				continue
			}
			if resource == "" {
				reg.mu.Lock()
				for key := range reg.cache {
					if strings.HasPrefix(key, service+"/") {
						delete(reg.cache, key)
					}
				}
				reg.mu.Unlock()
				continue
			}
			reg.Invalidate(service, resource)
		case <-ctx.Done():
			return
		}
	}
}
