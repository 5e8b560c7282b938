// Package dispatch keeps a redelivered dispatch message from running the same
// execution twice.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// DefaultClaimTTL bounds how long a claim outlives a crashed worker.
const DefaultClaimTTL = 10 * time.Minute

// Claimer grants one worker at a time the right to run an execution.
type Claimer interface {
	// Claim returns false when another worker already holds the claim.
	Claim(ctx context.Context, executionID string) (bool, error)
	Release(ctx context.Context, executionID string) error
}

// MemoryClaimer holds claims in process memory.
type MemoryClaimer struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
}

func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{
		ttl:    ttl,
		now:    time.Now,
		claims: map[string]time.Time{},
	}
}

func (c *MemoryClaimer) Claim(_ context.Context, executionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expires, ok := c.claims[executionID]; ok && now.Before(expires) {
		return false, nil
	}

	c.claims[executionID] = now.Add(c.ttl)

	return true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, executionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, executionID)

	return nil
}
