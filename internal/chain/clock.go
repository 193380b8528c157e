// Package chain supplies the logical time (block height) every ledger call
// carries. The ledger never reads time itself.
package chain

import (
	"sync"
	"time"
)

type Clock interface {
	Height() uint64
}

// WallClock derives the height from elapsed wall time since genesis, one
// block per interval. It never goes backwards even if the system clock does.
type WallClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last uint64
}

func NewWallClock(genesis time.Time, interval time.Duration) *WallClock {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &WallClock{genesis: genesis, interval: interval, now: time.Now}
}

func (c *WallClock) Height() uint64 {
	var h uint64
	if d := c.now().Sub(c.genesis); d > 0 {
		h = uint64(d / c.interval)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h < c.last {
		return c.last
	}
	c.last = h
	return h
}

// ManualClock is advanced explicitly. Tests use it.
type ManualClock struct {
	mu sync.Mutex
	h  uint64
}

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{h: start}
}

func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.h += n
	return c.h
}

// Set moves the clock to h. Going backwards is ignored.
func (c *ManualClock) Set(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h > c.h {
		c.h = h
	}
}
