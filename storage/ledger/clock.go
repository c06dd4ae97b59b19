package ledger

import (
	"context"
	"sync/atomic"
	"time"
)

// SystemClock reads wall-clock unix seconds.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (int64, error) { return time.Now().Unix(), nil }

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock starts at the given unix time.
func NewManualClock(now int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(now)
	return c
}

func (c *ManualClock) Now(context.Context) (int64, error) { return c.now.Load(), nil }

// Set moves the clock to now.
func (c *ManualClock) Set(now int64) { c.now.Store(now) }

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) { c.now.Add(d) }
