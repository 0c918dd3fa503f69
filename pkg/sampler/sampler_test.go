package sampler

import (
	"math"
	"testing"
)

func TestSampleValid(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   bool
	}{
		{name: "center", sample: Sample{X: 0.5, Y: 0.5}, want: true},
		{name: "corner", sample: Sample{X: 0, Y: 1}, want: true},
		{name: "x out of range", sample: Sample{X: 1.1, Y: 0.5}, want: false},
		{name: "y negative", sample: Sample{X: 0.5, Y: -0.01}, want: false},
		{name: "nan x", sample: Sample{X: math.NaN(), Y: 0.5}, want: false},
		{name: "nan y", sample: Sample{X: 0.5, Y: math.NaN()}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sample.Valid(); got != tt.want {
				t.Errorf("Valid(%+v) = %v, want %v", tt.sample, got, tt.want)
			}
		})
	}
}

func TestSyntheticStaysNormalized(t *testing.T) {
	s := NewSynthetic(1)
	for i := 0; i < 10000; i++ {
		sample, err := s.PollGaze()
		if err != nil {
			t.Fatalf("PollGaze failed at iteration %d: %v", i, err)
		}
		if !sample.Valid() {
			t.Fatalf("synthetic sample escaped [0,1]^2 at iteration %d: %+v", i, sample)
		}
	}
}

func TestSyntheticDeterministicPerSeed(t *testing.T) {
	a := NewSynthetic(42)
	b := NewSynthetic(42)
	for i := 0; i < 100; i++ {
		sa, _ := a.PollGaze()
		sb, _ := b.PollGaze()
		if sa.X != sb.X || sa.Y != sb.Y {
			t.Fatalf("same seed diverged at iteration %d: %+v vs %+v", i, sa, sb)
		}
	}
}
