package world

import "math/rand/v2"

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampUnit bounds v to [0, 1]; used for probabilities and confidence.
func ClampUnit(v float64) float64 {
	return Clamp(v, 0, 1)
}

// ClampSigned bounds v to [-1, 1]; used for mood and relationship strength.
func ClampSigned(v float64) float64 {
	return Clamp(v, -1, 1)
}

// NewRand builds a deterministic PCG source from a seed. Engines with
// random behavior take their randomness from here so that scenarios
// replay identically for a given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}
