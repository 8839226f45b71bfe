package schema

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisInvalidatorEvictsTargetedEntry(t *testing.T) {
	client := newTestRedis(t)
	inv := NewRedisInvalidator(client, "schema-invalidation", nil)

	reg := NewRegistry()
	reg.mu.Lock()
	reg.cache["orders/events"] = core.EmptySchema{}
	reg.cache["billing/events"] = core.EmptySchema{}
	reg.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inv.Listen(ctx, reg)
	time.Sleep(50 * time.Millisecond) // let the subscriber attach

	require.NoError(t, inv.PublishInvalidation(context.Background(), "orders", "events"))
	require.Eventually(t, func() bool {
		reg.mu.RLock()
		defer reg.mu.RUnlock()
		_, stillCached := reg.cache["orders/events"]
		return !stillCached
	}, time.Second, 10*time.Millisecond)

	reg.mu.RLock()
	_, billingStillCached := reg.cache["billing/events"]
	reg.mu.RUnlock()
	require.True(t, billingStillCached)
}
