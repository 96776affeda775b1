package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGate_FirstTenDetailed(t *testing.T) {
	t.Parallel()
	var g Gate
	for i := 0; i < 10; i++ {
		d := g.Observe()
		require.True(t, d.ShouldLog)
		require.True(t, d.Detailed)
	}
}

func TestGate_SummaryEveryThousandAfterTen(t *testing.T) {
	t.Parallel()
	var g Gate
	for i := 0; i < 10; i++ {
		g.Observe()
	}
	for i := 11; i < 1000; i++ {
		d := g.Observe()
		require.False(t, d.ShouldLog)
	}
	d := g.Observe() // 1000th occurrence
	require.True(t, d.ShouldLog)
	require.False(t, d.Detailed)
}

func TestGate_Count(t *testing.T) {
	t.Parallel()
	var g Gate
	for i := 0; i < 5; i++ {
		g.Observe()
	}
	require.Equal(t, uint64(5), g.Count())
}
