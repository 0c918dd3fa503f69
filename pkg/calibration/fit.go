package calibration

// epsilon guards the variance division in fitAxis. A measured spread
// below this is treated as degenerate and maps with identity scale.
const epsilon = 1e-9

// Targets returns the fixed calibration target sequence: a 3x3 grid at
// {0.1, 0.5, 0.9} per axis, row-major from the top-left. The order and
// count are part of the calibration contract; callers must not reorder.
func Targets() []Point {
	ticks := []float64{0.1, 0.5, 0.9}
	targets := make([]Point, 0, len(ticks)*len(ticks))
	for _, y := range ticks {
		for _, x := range ticks {
			targets = append(targets, Point{X: x, Y: y})
		}
	}
	return targets
}

// Mean returns the arithmetic mean of the given points. It returns the
// zero point for an empty slice; callers are expected to handle the
// empty-buffer case before calling.
func Mean(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range points {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: sum.X / n, Y: sum.Y / n}
}

// Fit computes the per-axis affine mapping from the recorded steps using
// ordinary least squares, each axis independently. Cross-axis correlation
// is ignored. The result is always finite: a degenerate axis (no spread
// in the measured values) falls back to identity scale with an offset
// that still centers the targets.
func Fit(steps []Step) Mapping {
	mx := make([]float64, len(steps))
	tx := make([]float64, len(steps))
	my := make([]float64, len(steps))
	ty := make([]float64, len(steps))
	for i, s := range steps {
		mx[i] = s.Measured.X
		tx[i] = s.Target.X
		my[i] = s.Measured.Y
		ty[i] = s.Target.Y
	}
	return Mapping{
		X: fitAxis(mx, tx),
		Y: fitAxis(my, ty),
	}
}

// fitAxis fits target ~= Scale*measured + Offset in the least-squares
// sense for a single axis.
func fitAxis(measured, target []float64) AxisMap {
	n := float64(len(measured))
	if n == 0 {
		return AxisMap{Scale: 1}
	}

	var mMean, tMean float64
	for i := range measured {
		mMean += measured[i]
		tMean += target[i]
	}
	mMean /= n
	tMean /= n

	var variance, covariance float64
	for i := range measured {
		dm := measured[i] - mMean
		variance += dm * dm
		covariance += dm * (target[i] - tMean)
	}

	scale := 1.0
	if variance > epsilon || variance < -epsilon {
		scale = covariance / variance
	}

	return AxisMap{
		Scale:  scale,
		Offset: tMean - scale*mMean,
	}
}

// Apply transforms a raw sample through the fitted mapping. The output
// is clamped to [0,1] per axis: the affine map can legally overshoot for
// samples near the measured extremes, and downstream consumers assume
// normalized coordinates.
func (m Mapping) Apply(p Point) Point {
	return Point{
		X: clamp01(m.X.Scale*p.X + m.X.Offset),
		Y: clamp01(m.Y.Scale*p.Y + m.Y.Offset),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
