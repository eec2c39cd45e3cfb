package transform

import (
	"math/rand"
	"sync"
)

// lockedSource serializes access to a rand.Source so one generator can
// feed transforms running on concurrent dataloader workers.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	s.src.Seed(seed)
	s.mu.Unlock()
}

// NewRand returns a seeded *rand.Rand that is safe for concurrent use.
// A random transform shared across dataloader workers must be built on
// one of these; a plain rand.New generator races once the loader runs
// more than one worker.
func NewRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed)})
}
