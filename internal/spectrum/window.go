package spectrum

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mjibson/go-dsp/window"
)

// ErrUnknownWindow indicates the window name is not recognised
var ErrUnknownWindow = errors.New("unknown window function")

// Window names a window function applied before the FFT.
type Window string

const (
	WindowBlackmanHarris Window = "blackman_harris"
	WindowBlackman       Window = "blackman"
	WindowHann           Window = "hann"
	WindowHamming        Window = "hamming"
	WindowBartlett       Window = "bartlett"
	WindowFlatTop        Window = "flat_top"
	WindowRectangular    Window = "rectangular"
)

// Windows lists every supported window name.
func Windows() []Window {
	return []Window{
		WindowBlackmanHarris,
		WindowBlackman,
		WindowHann,
		WindowHamming,
		WindowBartlett,
		WindowFlatTop,
		WindowRectangular,
	}
}

// Valid reports whether w names a supported window.
func (w Window) Valid() bool {
	return slices.Contains(Windows(), w)
}

// Coefficients returns the size-point coefficients of w.
func (w Window) Coefficients(size int) ([]float64, error) {
	switch w {
	case WindowBlackmanHarris:
		return blackmanHarris(size), nil
	case WindowBlackman:
		return window.Blackman(size), nil
	case WindowHann:
		return window.Hann(size), nil
	case WindowHamming:
		return window.Hamming(size), nil
	case WindowBartlett:
		return window.Bartlett(size), nil
	case WindowFlatTop:
		return window.FlatTop(size), nil
	case WindowRectangular:
		return window.Rectangular(size), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWindow, string(w))
	}
}

// blackmanHarris returns a symmetric 4-term Blackman-Harris window.
// go-dsp has no Blackman-Harris, so the coefficients are built here.
func blackmanHarris(size int) []float64 {
	coeffs := make([]float64, size)
	if size == 1 {
		coeffs[0] = 1
		return coeffs
	}

	const a0, a1, a2, a3 = 0.35875, 0.48829, 0.14128, 0.01168
	denominator := float64(size - 1)
	for i := range coeffs {
		arg := 2 * math.Pi * float64(i) / denominator
		coeffs[i] = a0 - a1*math.Cos(arg) + a2*math.Cos(2*arg) - a3*math.Cos(3*arg)
	}
	return coeffs
}
