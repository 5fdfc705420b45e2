// Package rng derives reproducible random streams from one base seed.
package rng

import (
	"hash/fnv"
	"math/rand"
	"time"
)

type Mode int

const (
	Deterministic Mode = iota
	Real
)

type Factory struct {
	baseSeed int64
	mode     Mode
}

func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		// time only seeds the base once
		seed = time.Now().UnixNano()
	}
	return &Factory{baseSeed: seed, mode: mode}
}

func (f *Factory) Seed() int64 { return f.baseSeed }

// Stream returns a new generator for name. For one Factory the same name
// always yields the same sequence. The generator is owned by the caller.
func (f *Factory) Stream(name string) *rand.Rand {
	return rand.New(rand.NewSource(deriveSeed(f.baseSeed, name)))
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}
