// Package spectrum turns a live PCM stream into per-tick magnitude spectra.
//
// The Analyzer keeps the most recent 2N samples, windows them, runs a real
// FFT and reports the first N bin magnitudes. Magnitudes are scaled so a
// full-scale sine centred on a bin reads close to 1.0.
package spectrum

import (
	"errors"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidSampleCount indicates the bin count must be a positive power of 2
	ErrInvalidSampleCount = errors.New("sample count must be a positive power of 2")
)

// Config holds configuration for the analyzer.
// All values should come from the application config file.
type Config struct {
	// SampleCount is the number of output bins N (from config: sample_count)
	SampleCount int
	// Window is the window function name (from config: window)
	Window Window
}

// DefaultConfig returns 1024 bins with a Blackman-Harris window.
func DefaultConfig() Config {
	return Config{
		SampleCount: 1024,
		Window:      WindowBlackmanHarris,
	}
}

// Analyzer is a SpectrumSource fed by audio capture. Write may be called
// from the audio thread while another goroutine calls Spectrum.
type Analyzer struct {
	config Config
	size   int // FFT length, 2*SampleCount

	// Ring of the latest samples, guarded by mu
	mu      sync.Mutex
	ring    []float64
	write   int
	written uint64

	// FFT scratch, guarded by fftMu
	fftMu  sync.Mutex
	fft    *fourier.FFT
	coeffs []float64
	gain   float64
	buf    []float64
	bins   []complex128
}

// NewAnalyzer creates an analyzer with the given configuration.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.SampleCount <= 0 || cfg.SampleCount&(cfg.SampleCount-1) != 0 {
		return nil, ErrInvalidSampleCount
	}
	size := 2 * cfg.SampleCount

	coeffs, err := cfg.Window.Coefficients(size)
	if err != nil {
		return nil, err
	}

	// Amplitude correction: a bin-centred sine of amplitude A peaks at A*sum(w)/2
	gain := 0.0
	if sum := floats.Sum(coeffs); sum > 0 {
		gain = 2 / sum
	}

	return &Analyzer{
		config: cfg,
		size:   size,
		ring:   make([]float64, size),
		fft:    fourier.NewFFT(size),
		coeffs: coeffs,
		gain:   gain,
		buf:    make([]float64, size),
		bins:   make([]complex128, size/2+1),
	}, nil
}

// Write appends PCM samples (normalised to -1.0..1.0). Only the latest 2N
// samples are kept.
func (a *Analyzer) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for _, s := range samples {
		a.ring[a.write] = float64(s)
		a.write++
		if a.write == a.size {
			a.write = 0
		}
	}
	a.written += uint64(len(samples))
}

// Written returns the total number of samples accepted so far.
func (a *Analyzer) Written() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Spectrum computes the magnitude spectrum of the latest 2N samples into dst
// and returns it with length N. Missing history reads as silence.
func (a *Analyzer) Spectrum(dst []float64) []float64 {
	a.fftMu.Lock()
	defer a.fftMu.Unlock()

	// Oldest sample first
	a.mu.Lock()
	n := copy(a.buf, a.ring[a.write:])
	copy(a.buf[n:], a.ring[:a.write])
	a.mu.Unlock()

	floats.Mul(a.buf, a.coeffs)
	a.bins = a.fft.Coefficients(a.bins, a.buf)

	if cap(dst) < a.config.SampleCount {
		dst = make([]float64, a.config.SampleCount)
	}
	dst = dst[:a.config.SampleCount]
	for i := range dst {
		dst[i] = cmplx.Abs(a.bins[i]) * a.gain
	}
	return dst
}

// Reset clears the sample history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.write = 0
	a.written = 0
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.config
}

// FFTSize returns the number of samples per analysis window (2N).
func (a *Analyzer) FFTSize() int {
	return a.size
}
