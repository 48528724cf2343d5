package election

import (
	"math/rand"
	"time"
)

// RandSource supplies jittered delays, pluggable so tests can inject a
// seeded source for deterministic convergence.
type RandSource interface {
	DurationIn(min, max time.Duration) time.Duration
}

// globalRand is the production RandSource, backed by the package-global
// math/rand source.
type globalRand struct{}

func (globalRand) DurationIn(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// SeededRand is a RandSource backed by a private *rand.Rand, for
// reproducible tests.
type SeededRand struct {
	r *rand.Rand
}

func NewSeededRand(seed int64) *SeededRand {
	return &SeededRand{r: rand.New(rand.NewSource(seed))}
}

func (s *SeededRand) DurationIn(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.r.Int63n(int64(max-min)))
}
