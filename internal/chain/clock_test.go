package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWallClock(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewWallClock(genesis, time.Minute)

	now := genesis.Add(-time.Hour)
	c.now = func() time.Time { return now }
	require.Equal(t, uint64(0), c.Height())

	now = genesis.Add(90 * time.Minute)
	require.Equal(t, uint64(90), c.Height())

	// Clock skew backwards keeps the last height.
	now = genesis.Add(10 * time.Minute)
	require.Equal(t, uint64(90), c.Height())
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(5)
	require.Equal(t, uint64(5), c.Height())
	require.Equal(t, uint64(8), c.Advance(3))
	c.Set(2)
	require.Equal(t, uint64(8), c.Height())
	c.Set(20)
	require.Equal(t, uint64(20), c.Height())
}
