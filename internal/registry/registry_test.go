package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicateFails(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB}))
	err := r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB})
	require.Error(t, err)
	require.True(t, svcerr.Is(err, svcerr.CodeDuplicateService))
}

func TestUnknownServiceLookupFails(t *testing.T) {
	r := New(nil)
	_, err := r.ServiceDefinition("missing")
	require.Error(t, err)
	require.True(t, svcerr.Is(err, svcerr.CodeUnknownService))
}

func TestServiceKindMismatch(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB}))
	r.RegisterBuilder(core.ServiceKindHTTP, func(ctx context.Context, d Descriptor) (any, error) {
		return "http-client", nil
	})
	_, err := r.HTTPClient(context.Background(), "m1")
	require.Error(t, err)
	require.True(t, svcerr.Is(err, svcerr.CodeServiceKindMismatch))
}

// TestBuildOnFirstUseIsSingleFlight spawns 50 concurrent callers requesting
// the same client; the underlying builder must run exactly once and every
// caller must observe the same handle (spec §8 testable property 4 / e2e
// scenario 6).
func TestBuildOnFirstUseIsSingleFlight(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB}))

	var builds int32
	r.RegisterBuilder(core.ServiceKindMongoDB, func(ctx context.Context, d Descriptor) (any, error) {
		atomic.AddInt32(&builds, 1)
		return &struct{ id int }{id: 42}, nil
	})

	const n = 50
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			client, err := r.MongoDBClient(context.Background(), "m1")
			require.NoError(t, err)
			results[i] = client
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&builds))
	for i := 1; i < n; i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestBuildFailureIsNotCached(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB}))

	var attempts int32
	r.RegisterBuilder(core.ServiceKindMongoDB, func(ctx context.Context, d Descriptor) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			return nil, assertErr
		}
		return "built", nil
	})

	_, err := r.MongoDBClient(context.Background(), "m1")
	require.Error(t, err)

	client, err := r.MongoDBClient(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, "built", client)
	require.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestRemoveMakesLookupFail(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Descriptor{Name: "m1", Kind: core.ServiceKindMongoDB}))
	r.Remove("m1")
	_, err := r.ServiceDefinition("m1")
	require.Error(t, err)
}

var assertErr = &testBuildErr{}

type testBuildErr struct{}

func (e *testBuildErr) Error() string { return "build failed" }
