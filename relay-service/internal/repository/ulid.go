package repository

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator hands out strictly increasing ULIDs. The millisecond part
// never goes backwards even if the wall clock does.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns the next id for a message created at now, together with the
// millisecond timestamp encoded in it. That timestamp never goes backwards.
func (g *IDGenerator) Next(now time.Time) (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(now)
	if ms < g.lastMs {
		ms = g.lastMs
	}

	id, err := ulid.New(ms, g.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		ms++
		id, err = ulid.New(ms, g.entropy)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate ULID: %w", err)
	}

	g.lastMs = ms
	return id.String(), ulid.Time(ms).UTC(), nil
}
