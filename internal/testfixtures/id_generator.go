package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var fixtureNamespace = uuid.MustParse("0193a1b2-0000-7000-8000-00000000f1c5")

// IDGenerator produces deterministic UUIDs for tests. The same prefix and
// position always yield the same identifier.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewIDGenerator constructs a generator for prefix. When prefix is empty, "id"
// is used.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return IDFor(g.prefix, g.counter)
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// SetCounter overrides the internal counter, enabling deterministic resets.
func (g *IDGenerator) SetCounter(counter uint64) {
	g.mu.Lock()
	g.counter = counter
	g.mu.Unlock()
}

// IDFor returns the identifier a generator for prefix yields at position n.
func IDFor(prefix string, n uint64) string {
	return uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("%s-%d", prefix, n))).String()
}
