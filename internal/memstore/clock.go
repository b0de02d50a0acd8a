package memstore

import (
	"context"
	"time"

	"github.com/oxidesk/deskcore/domain/ports"
)

// FixedClock is a ports.TimeService that never advances on its own, for
// deterministic tests. Advance moves it forward explicitly.
type FixedClock struct {
	now time.Time
}

func NewFixedClock(at time.Time) *FixedClock {
	return &FixedClock{now: at}
}

func (c *FixedClock) Now() time.Time { return c.now }

func (c *FixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *FixedClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

var _ ports.TimeService = (*FixedClock)(nil)
