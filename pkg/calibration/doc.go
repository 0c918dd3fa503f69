// Package calibration holds the gaze calibration domain: normalized
// points, the 9-target sequence, per-step sample means, and the per-axis
// affine mapping fitted from them. Everything here is pure; the daemon
// drives it from its tick loop.
package calibration
