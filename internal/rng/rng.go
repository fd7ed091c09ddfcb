// Package rng supplies the random values used for MQTT client identifiers
// and packet identifiers.
//
// There is no statistical-quality requirement beyond avoiding frequent
// collisions, but the default Source is still a ChaCha8 stream seeded from
// the operating system so two devices booted at the same moment do not
// pick the same client identifier.
package rng

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
)

// Source produces 32-bit random values on demand.
type Source interface {
	Uint32() uint32
}

// Func adapts a plain function to Source.
type Func func() uint32

// Uint32 implements Source.
func (f Func) Uint32() uint32 { return f() }

// ChaCha is a Source backed by math/rand/v2's ChaCha8 generator.
// It is not safe for concurrent use.
type ChaCha struct {
	gen *rand.ChaCha8
}

// New returns a ChaCha source seeded from crypto/rand.
func New() (*ChaCha, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("rng: reading seed: %w", err)
	}
	return NewSeeded(seed), nil
}

// NewSeeded returns a deterministic ChaCha source.
func NewSeeded(seed [32]byte) *ChaCha {
	return &ChaCha{gen: rand.NewChaCha8(seed)}
}

// Uint32 implements Source.
func (c *ChaCha) Uint32() uint32 {
	return uint32(c.gen.Uint64() >> 32)
}

// Float64 returns a value in [0, 1) drawn from src.
func Float64(src Source) float64 {
	return float64(src.Uint32()) / (1 << 32)
}
