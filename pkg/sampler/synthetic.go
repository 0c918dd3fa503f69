package sampler

import (
	"math/rand"
	"sync"
	"time"
)

// Synthetic is a camera-free sampler for development and demos. It
// random-walks a point around the unit square, reflecting at the edges,
// so the daemon can be exercised end to end without a capture device.
type Synthetic struct {
	mu   sync.Mutex
	rng  *rand.Rand
	x, y float64
	step float64
}

// NewSynthetic returns a Synthetic starting at screen center.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{
		rng:  rand.New(rand.NewSource(seed)),
		x:    0.5,
		y:    0.5,
		step: 0.02,
	}
}

func (s *Synthetic) PollGaze() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.x = reflect01(s.x + (s.rng.Float64()-0.5)*s.step)
	s.y = reflect01(s.y + (s.rng.Float64()-0.5)*s.step)

	return Sample{X: s.x, Y: s.y, At: time.Now()}, nil
}

func (s *Synthetic) Close() error { return nil }

func reflect01(v float64) float64 {
	if v < 0 {
		return -v
	}
	if v > 1 {
		return 2 - v
	}
	return v
}
