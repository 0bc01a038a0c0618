package testutil

import (
	"fmt"
	"sync"
)

// FixedRequestIDs returns the same request id every time.
//
// This enables golden comparison of logged or returned request ids.
// Safe for concurrent use.
type FixedRequestIDs struct {
	id string
}

// NewFixedRequestIDs creates a fixed generator. An empty id becomes
// "test-request".
func NewFixedRequestIDs(id string) *FixedRequestIDs {
	if id == "" {
		id = "test-request"
	}
	return &FixedRequestIDs{id: id}
}

// Generate returns the fixed id.
func (g *FixedRequestIDs) Generate() string {
	return g.id
}

// SequentialRequestIDs returns "req-0001", "req-0002", ...
//
// Unlike the engine's UUIDv7 generator, it can be reset so the same
// scenario yields the same ids on every run.
type SequentialRequestIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialRequestIDs creates a generator whose first id is req-0001.
func NewSequentialRequestIDs() *SequentialRequestIDs {
	return &SequentialRequestIDs{}
}

// Generate returns the next id.
func (g *SequentialRequestIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("req-%04d", g.seq)
}

// Reset restarts the sequence.
func (g *SequentialRequestIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
