package testutil

import (
	"fmt"
	"sync"
	"time"

	"repute-go/internal/ledger"
)

// Epoch is the instant FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven ledger.Clock. When step is non-zero every
// call to Now moves the clock forward by step after reading it.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

var _ ledger.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock stopped at Epoch.
func FixedClock() *StubClock {
	return NewStubClock(Epoch)
}

// TickingClock returns a StubClock at Epoch that advances by step per reading,
// so consecutive ratings get distinct timestamps.
func TickingClock(step time.Duration) *StubClock {
	return &StubClock{now: Epoch, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Unix is the clock's current reading as a rating timestamp, without ticking.
func (c *StubClock) Unix() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.now.Unix())
}

// StubIDGenerator hands out journal IDs "ev-1", "ev-2", ...
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

var _ ledger.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ev-%d", g.n)
}

// Issued reports how many IDs have been handed out.
func (g *StubIDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
