package beat

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// BandCount is the number of equal-width bands a frame is split into.
const BandCount = 8

// BandRange returns the half-open bin range [start, end) of band b for a
// spectrum of n bins: start = floor(n*b/8), end = floor(n*(b+1)/8).
func BandRange(n, b int) (start, end int) {
	if n <= 0 {
		return 0, 0
	}
	return n * b / BandCount, n * (b + 1) / BandCount
}

// BandEnergy returns the arithmetic mean of the magnitudes of band b, where
// the band is laid out over n bins. A frame holding fewer than n bins has
// zero energy. NaN means are reported as zero.
func BandEnergy(frame []float64, n, b int) float64 {
	if len(frame) < n {
		return 0
	}
	start, end := BandRange(n, b)
	start = clampIndex(start, len(frame))
	end = clampIndex(end, len(frame))
	if end <= start {
		return 0
	}
	mean := stat.Mean(frame[start:end], nil)
	if math.IsNaN(mean) {
		return 0
	}
	return mean
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
