package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtx_PrefersAttachedLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	attached := zap.New(core).Sugar().With("attached", true)
	base := zap.NewNop().Sugar()

	ctx := WithLogger(context.Background(), attached)
	FromCtx(ctx, base).Infow("hello")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, true, logs.All()[0].ContextMap()["attached"])
}

func TestFromCtx_EnrichesTraceAndDJ(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithDJID(WithTraceID(context.Background(), "trace-1"), "dj-1")
	FromCtx(ctx, base).Infow("hello")

	fields := logs.All()[0].ContextMap()
	require.Equal(t, "trace-1", fields["trace_id"])
	require.Equal(t, "dj-1", fields["dj_id"])
	require.Equal(t, "trace-1", TraceID(ctx))
	require.Equal(t, "dj-1", DJID(ctx))
}

func TestFromCtx_NilContext(t *testing.T) {
	base := zap.NewNop().Sugar()
	//nolint:staticcheck
	require.Same(t, base, FromCtx(nil, base))
	require.Same(t, base, FromGin(nil, base))
}
