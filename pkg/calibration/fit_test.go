package calibration

import (
	"math"
	"testing"
)

const tolerance = 1e-9

// referenceOLS is an independent simple-linear-regression implementation
// (slope/intercept via the closed sum form) used to cross-check fitAxis.
func referenceOLS(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}
	denom := n*sumX2 - sumX*sumX
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func stepsFrom(measured, target []Point) []Step {
	steps := make([]Step, len(measured))
	for i := range measured {
		steps[i] = Step{Target: target[i], Measured: measured[i]}
	}
	return steps
}

func TestTargets(t *testing.T) {
	targets := Targets()
	if len(targets) != 9 {
		t.Fatalf("expected 9 targets, got %d", len(targets))
	}
	if targets[0] != (Point{X: 0.1, Y: 0.1}) {
		t.Fatalf("unexpected first target: %+v", targets[0])
	}
	if targets[4] != (Point{X: 0.5, Y: 0.5}) {
		t.Fatalf("expected center target at index 4, got %+v", targets[4])
	}
	if targets[8] != (Point{X: 0.9, Y: 0.9}) {
		t.Fatalf("unexpected last target: %+v", targets[8])
	}
}

func TestFitMatchesReferenceOLS(t *testing.T) {
	targets := Targets()
	// Measured values offset and scaled from the targets, plus per-step
	// noise that keeps the variance well above epsilon.
	measured := make([]Point, len(targets))
	noise := []float64{0.013, -0.007, 0.021, -0.017, 0.002, 0.009, -0.012, 0.018, -0.004}
	for i, tgt := range targets {
		measured[i] = Point{
			X: 0.3 + 0.5*tgt.X + noise[i],
			Y: 0.2 + 0.6*tgt.Y - noise[i],
		}
	}

	m := Fit(stepsFrom(measured, targets))

	mx := make([]float64, len(measured))
	tx := make([]float64, len(measured))
	my := make([]float64, len(measured))
	ty := make([]float64, len(measured))
	for i := range measured {
		mx[i], tx[i] = measured[i].X, targets[i].X
		my[i], ty[i] = measured[i].Y, targets[i].Y
	}

	wantScaleX, wantOffsetX := referenceOLS(mx, tx)
	wantScaleY, wantOffsetY := referenceOLS(my, ty)

	if math.Abs(m.X.Scale-wantScaleX) > tolerance || math.Abs(m.X.Offset-wantOffsetX) > tolerance {
		t.Fatalf("x axis fit (%v, %v) does not match reference (%v, %v)", m.X.Scale, m.X.Offset, wantScaleX, wantOffsetX)
	}
	if math.Abs(m.Y.Scale-wantScaleY) > tolerance || math.Abs(m.Y.Offset-wantOffsetY) > tolerance {
		t.Fatalf("y axis fit (%v, %v) does not match reference (%v, %v)", m.Y.Scale, m.Y.Offset, wantScaleY, wantOffsetY)
	}
}

func TestFitExactAffineRecovery(t *testing.T) {
	// When measured = (target - b) / a exactly, the fit must recover (a, b).
	targets := Targets()
	measured := make([]Point, len(targets))
	for i, tgt := range targets {
		measured[i] = Point{
			X: (tgt.X - 0.1) / 1.5,
			Y: (tgt.Y + 0.05) / 0.8,
		}
	}

	m := Fit(stepsFrom(measured, targets))

	if math.Abs(m.X.Scale-1.5) > 1e-6 || math.Abs(m.X.Offset-0.1) > 1e-6 {
		t.Fatalf("x axis: got (%v, %v), want (1.5, 0.1)", m.X.Scale, m.X.Offset)
	}
	if math.Abs(m.Y.Scale-0.8) > 1e-6 || math.Abs(m.Y.Offset+0.05) > 1e-6 {
		t.Fatalf("y axis: got (%v, %v), want (0.8, -0.05)", m.Y.Scale, m.Y.Offset)
	}
}

func TestFitDegenerateAxis(t *testing.T) {
	// All measured values identical on both axes: scale must be exactly
	// 1.0 and offset must be targetMean - measuredValue.
	targets := Targets()
	measured := make([]Point, len(targets))
	for i := range measured {
		measured[i] = Point{X: 0.42, Y: 0.37}
	}

	m := Fit(stepsFrom(measured, targets))

	if m.X.Scale != 1.0 || m.Y.Scale != 1.0 {
		t.Fatalf("degenerate axes must fit identity scale, got x=%v y=%v", m.X.Scale, m.Y.Scale)
	}
	if math.Abs(m.X.Offset-(0.5-0.42)) > tolerance {
		t.Fatalf("x offset = %v, want %v", m.X.Offset, 0.5-0.42)
	}
	if math.Abs(m.Y.Offset-(0.5-0.37)) > tolerance {
		t.Fatalf("y offset = %v, want %v", m.Y.Offset, 0.5-0.37)
	}
}

func TestFitIdempotent(t *testing.T) {
	targets := Targets()
	measured := make([]Point, len(targets))
	for i, tgt := range targets {
		measured[i] = Point{X: tgt.X*0.7 + 0.11, Y: tgt.Y*0.9 - 0.03}
	}
	steps := stepsFrom(measured, targets)

	first := Fit(steps)
	second := Fit(steps)

	// Bit-identical, not merely within tolerance.
	if first != second {
		t.Fatalf("refit produced different result: %+v vs %+v", first, second)
	}
}

func TestFitTwoPointScenario(t *testing.T) {
	// Seven steps measure exactly on target; the center measures on
	// target at (0.5,0.5) and the far corner (0.9,0.9) measures (0.7,0.7).
	// The fitted mapping must reproduce both varying points within
	// tolerance of the least-squares line through the data.
	targets := Targets()
	measured := make([]Point, len(targets))
	copy(measured, targets)
	measured[8] = Point{X: 0.7, Y: 0.7}

	m := Fit(stepsFrom(measured, targets))

	mx := make([]float64, len(measured))
	tx := make([]float64, len(measured))
	for i := range measured {
		mx[i], tx[i] = measured[i].X, targets[i].X
	}
	wantScale, wantOffset := referenceOLS(mx, tx)
	if math.Abs(m.X.Scale-wantScale) > tolerance || math.Abs(m.X.Offset-wantOffset) > tolerance {
		t.Fatalf("x axis fit (%v, %v) does not match reference (%v, %v)", m.X.Scale, m.X.Offset, wantScale, wantOffset)
	}

	// The fit is a least-squares compromise across all 9 steps, so the
	// varying points land on the regression line, not on their targets.
	// The center stays near (0.5, 0.5); the corner must match the line's
	// prediction exactly.
	center := m.Apply(Point{X: 0.5, Y: 0.5})
	if math.Abs(center.X-0.5) > 0.05 || math.Abs(center.Y-0.5) > 0.05 {
		t.Fatalf("center maps to %+v, want near (0.5, 0.5)", center)
	}
	corner := m.Apply(Point{X: 0.7, Y: 0.7})
	predicted := wantScale*0.7 + wantOffset
	if math.Abs(corner.X-predicted) > tolerance || math.Abs(corner.Y-predicted) > tolerance {
		t.Fatalf("corner maps to %+v, want OLS prediction %v on both axes", corner, predicted)
	}
	// The corner is pulled toward the target relative to the raw 0.7.
	if corner.X <= 0.7 || corner.X >= 0.9 {
		t.Fatalf("corner prediction %v should lie strictly between 0.7 and 0.9", corner.X)
	}
}

func TestApplyClamps(t *testing.T) {
	tests := []struct {
		name    string
		mapping Mapping
		in      Point
	}{
		{
			name:    "overshoot high",
			mapping: Mapping{X: AxisMap{Scale: 2.0, Offset: 0.5}, Y: AxisMap{Scale: 2.0, Offset: 0.5}},
			in:      Point{X: 0.9, Y: 0.9},
		},
		{
			name:    "overshoot low",
			mapping: Mapping{X: AxisMap{Scale: 3.0, Offset: -1.2}, Y: AxisMap{Scale: 3.0, Offset: -1.2}},
			in:      Point{X: 0.1, Y: 0.1},
		},
		{
			name:    "negative scale",
			mapping: Mapping{X: AxisMap{Scale: -1.5, Offset: 0.2}, Y: AxisMap{Scale: -1.5, Offset: 1.4}},
			in:      Point{X: 0.8, Y: 0.1},
		},
		{
			name:    "identity",
			mapping: Mapping{X: AxisMap{Scale: 1}, Y: AxisMap{Scale: 1}},
			in:      Point{X: 0.3, Y: 0.6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.mapping.Apply(tt.in)
			if out.X < 0 || out.X > 1 || out.Y < 0 || out.Y > 1 {
				t.Fatalf("Apply(%+v) = %+v escapes [0,1]^2", tt.in, out)
			}
		})
	}

	// Sweep the whole input square with an adversarial mapping.
	m := Mapping{X: AxisMap{Scale: 4.2, Offset: -1.7}, Y: AxisMap{Scale: -3.1, Offset: 2.3}}
	for x := 0.0; x <= 1.0; x += 0.05 {
		for y := 0.0; y <= 1.0; y += 0.05 {
			out := m.Apply(Point{X: x, Y: y})
			if out.X < 0 || out.X > 1 || out.Y < 0 || out.Y > 1 {
				t.Fatalf("Apply(%v, %v) = %+v escapes [0,1]^2", x, y, out)
			}
		}
	}
}

func TestMean(t *testing.T) {
	points := []Point{{X: 0.2, Y: 0.4}, {X: 0.4, Y: 0.6}, {X: 0.6, Y: 0.8}}
	got := Mean(points)
	if math.Abs(got.X-0.4) > tolerance || math.Abs(got.Y-0.6) > tolerance {
		t.Fatalf("Mean = %+v, want (0.4, 0.6)", got)
	}

	if zero := Mean(nil); zero != (Point{}) {
		t.Fatalf("Mean(nil) = %+v, want zero point", zero)
	}
}
