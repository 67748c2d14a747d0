package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// SequentialIDs generates object identifiers "<type>-<n>" with n counting
// from 1 per type.
//
// The same scenario with the same generator stores byte-identical rows,
// which keeps golden output and result ordering stable across runs.
//
// Thread-safety: NewID is safe for concurrent use.
type SequentialIDs struct {
	mu   sync.Mutex
	next map[string]int
}

// NewSequentialIDs creates a generator with every counter at zero.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: make(map[string]int)}
}

// NewID returns the next identifier for typeName, lower cased:
//
//	NewID("E") // "e-1"
//	NewID("E") // "e-2"
func (g *SequentialIDs) NewID(typeName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[typeName]++
	return fmt.Sprintf("%s-%d", strings.ToLower(typeName), g.next[typeName])
}

// Reset sets every counter back to zero.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.next)
}
