package middleware

import (
	"context"
	"testing"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/stretchr/testify/require"
)

type fnMiddleware struct {
	name string
	fn   func(core.SinkEvent) (Result, error)
}

func (m fnMiddleware) Name() string { return m.name }
func (m fnMiddleware) Apply(_ context.Context, e core.SinkEvent) (Result, error) {
	return m.fn(e)
}

func TestChainKeepPassesThrough(t *testing.T) {
	c := New(fnMiddleware{"uppercase", func(e core.SinkEvent) (Result, error) {
		e.RawBytes = []byte("KEPT")
		return KeepResult(e), nil
	}})

	out, err := c.Apply(context.Background(), core.SinkEvent{RawBytes: []byte("in")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "KEPT", string(out[0].RawBytes))
}

func TestChainDropShortCircuits(t *testing.T) {
	calledSecond := false
	c := New(
		fnMiddleware{"dropper", func(core.SinkEvent) (Result, error) { return DropResult(), nil }},
		fnMiddleware{"never", func(e core.SinkEvent) (Result, error) {
			calledSecond = true
			return KeepResult(e), nil
		}},
	)

	out, err := c.Apply(context.Background(), core.SinkEvent{})
	require.NoError(t, err)
	require.Empty(t, out)
	require.False(t, calledSecond)
}

func TestChainSplitFansOutIndependently(t *testing.T) {
	c := New(
		fnMiddleware{"splitter", func(e core.SinkEvent) (Result, error) {
			a, b := e, e
			a.RawBytes, b.RawBytes = []byte("a"), []byte("b")
			return SplitResult(a, b), nil
		}},
		fnMiddleware{"drop-b", func(e core.SinkEvent) (Result, error) {
			if string(e.RawBytes) == "b" {
				return DropResult(), nil
			}
			return KeepResult(e), nil
		}},
	)

	out, err := c.Apply(context.Background(), core.SinkEvent{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "a", string(out[0].RawBytes))
}

func TestChainEmptyPassesEventThrough(t *testing.T) {
	c := New()
	out, err := c.Apply(context.Background(), core.SinkEvent{RawBytes: []byte("x")})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestChainErrorPropagates(t *testing.T) {
	c := New(fnMiddleware{"failer", func(core.SinkEvent) (Result, error) {
		return Result{}, assertErr
	}})

	_, err := c.Apply(context.Background(), core.SinkEvent{})
	require.ErrorIs(t, err, assertErr)
}

var assertErr = &sentinelErr{}

type sentinelErr struct{}

func (*sentinelErr) Error() string { return "boom" }
