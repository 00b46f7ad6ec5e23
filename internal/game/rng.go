package game

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// RNG is the seeded random source injected into every match. Its position
// is part of the persisted match blob, so a restored match continues the
// same sequence.
type RNG struct {
	src *rand.PCG
	r   *rand.Rand
}

// NewRNG returns a source seeded from seed.
func NewRNG(seed uint64) *RNG {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &RNG{src: src, r: rand.New(src)}
}

// Float64 returns a value in [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// IntN returns a value in [0, n). n <= 0 yields 0.
func (g *RNG) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return g.r.IntN(n)
}

// Chance reports true with probability p.
func (g *RNG) Chance(p float64) bool {
	return g.r.Float64() < p
}

func (g *RNG) Shuffle(n int, swap func(i, j int)) {
	g.r.Shuffle(n, swap)
}

func (g *RNG) MarshalJSON() ([]byte, error) {
	state, err := g.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal rng: %w", err)
	}
	return json.Marshal(state)
}

func (g *RNG) UnmarshalJSON(data []byte) error {
	var state []byte
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshal rng: %w", err)
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("unmarshal rng: %w", err)
	}
	g.src = src
	g.r = rand.New(src)
	return nil
}
