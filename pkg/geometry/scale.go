// Package geometry maps zoom levels and tile coordinates of a centered tile
// grid onto scales, decoder reduction levels and normalized source regions.
// Everything here is a pure function of its arguments.
package geometry

import "math"

// DesiredScale returns the physical scale (length per pixel) shown at
// zoomLevel, given the scale at a reference zoom level. Each zoom step away
// from baseZoomLevel doubles or halves the scale.
func DesiredScale(zoomLevel int, baseScale float64, baseZoomLevel int) float64 {
	// Ldexp multiplies by an exact power of two
	return math.Ldexp(baseScale, zoomLevel-baseZoomLevel)
}

// ReductionFactor returns log2(desiredScale/nativeScale). The value is not
// rounded: positive values ask the decoder to drop resolution levels,
// negative values mean the source must be upscaled after decoding.
func ReductionFactor(desiredScale, nativeScale float64) float64 {
	if desiredScale == nativeScale {
		return 0
	}
	return math.Log2(desiredScale / nativeScale)
}

// RelativeTileSize is the extent of one tile measured in native source pixels
func RelativeTileSize(tileSize int, desiredScale, nativeScale float64) float64 {
	return float64(tileSize) * desiredScale / nativeScale
}

// DiscreteReduction turns a continuous reduction factor into the resolution
// level requested of the decoder: the floor of the factor, clamped to
// [0, maxReduction]. A negative maxReduction disables the upper bound.
func DiscreteReduction(factor float64, maxReduction int) int {
	if factor <= 0 || math.IsNaN(factor) {
		return 0
	}
	// tolerate factors like 1.9999999999 coming out of Log2
	level := int(math.Floor(factor + 1e-9))
	if maxReduction >= 0 && level > maxReduction {
		level = maxReduction
	}
	return level
}
