package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeanLatencyEmpty(t *testing.T) {
	acc := New(nil)

	mean, ok := acc.MeanLatency()
	require.False(t, ok, "empty sample set must report unavailable")
	require.Equal(t, int64(0), mean)
}

func TestMeanLatencyRounding(t *testing.T) {
	ctx := context.Background()
	acc := New(nil)

	acc.RecordLatency(ctx, 10)
	acc.RecordLatency(ctx, 11)

	mean, ok := acc.MeanLatency()
	require.True(t, ok)
	require.Equal(t, int64(11), mean, "10.5 rounds to 11")
}

func TestMeanLatencySingleSample(t *testing.T) {
	acc := New(nil)
	acc.RecordLatency(context.Background(), 42.4)

	mean, ok := acc.MeanLatency()
	require.True(t, ok)
	require.Equal(t, int64(42), mean)
}

func TestNegativeLatencyClampedToZero(t *testing.T) {
	acc := New(nil)
	acc.RecordLatency(context.Background(), -5)

	mean, ok := acc.MeanLatency()
	require.True(t, ok)
	require.Equal(t, int64(0), mean)
}

func TestMessageCount(t *testing.T) {
	ctx := context.Background()
	acc := New(nil)

	require.Equal(t, 0, acc.MessageCount())
	acc.RecordMessage(ctx)
	acc.RecordMessage(ctx)
	require.Equal(t, 2, acc.MessageCount())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	acc := New(nil)

	acc.RecordLatency(ctx, 100)
	acc.RecordMessage(ctx)
	acc.Reset()

	_, ok := acc.MeanLatency()
	require.False(t, ok)
	require.Equal(t, 0, acc.MessageCount())
	require.Equal(t, 0, acc.SampleCount())
}
