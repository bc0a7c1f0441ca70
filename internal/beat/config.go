package beat

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// ErrInvalidConfiguration is returned (wrapped) for any rejected band,
// threshold, refractory interval or BPM. Values are never clamped.
var ErrInvalidConfiguration = errors.New("invalid beat detector configuration")

// Default option values.
const (
	DefaultSampleCount   = 1024
	DefaultBand          = 1
	DefaultBaseThreshold = 0.3
	DefaultMinRefractory = 0.2
)

// BandConfig is the complete detection setup. It is always replaced as a
// whole, never field by field.
type BandConfig struct {
	// Band selects one of the BandCount slices of the spectrum
	Band int
	// Threshold is the band energy that must be exceeded to fire
	Threshold float64
	// Refractory is the lockout in seconds after a fired beat
	Refractory float64
}

// Validate reports whether c can be installed.
func (c BandConfig) Validate() error {
	if c.Band < 0 || c.Band >= BandCount {
		return fmt.Errorf("%w: band %d outside [0,%d)", ErrInvalidConfiguration, c.Band, BandCount)
	}
	if !(c.Threshold > 0) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidConfiguration, c.Threshold)
	}
	if !(c.Refractory > 0) || math.IsInf(c.Refractory, 0) {
		return fmt.Errorf("%w: refractory interval must be > 0, got %v", ErrInvalidConfiguration, c.Refractory)
	}
	return nil
}

// TrackPreset is the per-track part of a BandConfig; the refractory interval
// comes from the track's BPM.
type TrackPreset struct {
	Threshold float64
	Band      int
}

// TrackTable maps a track index to its preset. Tracks without an entry use
// the detector's base threshold and default band.
type TrackTable map[int]TrackPreset

// DefaultTrackTable returns the presets for the three bundled tracks.
func DefaultTrackTable() TrackTable {
	return TrackTable{
		0: {Threshold: 0.15, Band: 1},
		1: {Threshold: 0.20, Band: 2},
		2: {Threshold: 0.25, Band: 0},
	}
}

// Validate checks every preset in the table.
func (t TrackTable) Validate() error {
	var errs []error
	for _, idx := range slices.Sorted(maps.Keys(t)) {
		p := t[idx]
		cfg := BandConfig{Band: p.Band, Threshold: p.Threshold, Refractory: 1}
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("track %d: %w", idx, err))
		}
	}
	return errors.Join(errs...)
}

// RefractoryForBPM returns the lockout for a track: half a beat period,
// 30/bpm seconds.
func RefractoryForBPM(bpm float64) (float64, error) {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return 0, fmt.Errorf("%w: bpm must be > 0, got %v", ErrInvalidConfiguration, bpm)
	}
	return 30 / bpm, nil
}

// Options holds construction-time settings for a Detector.
type Options struct {
	// SampleCount is the number of bins per frame (N)
	SampleCount int
	// DefaultBand is used for tracks missing from the track table
	DefaultBand int
	// BaseThreshold is used for tracks missing from the track table
	BaseThreshold float64
	// MinRefractory is the lockout in effect before any Configure call
	MinRefractory float64
	// ResetOnTrackChange clears the last beat time and previous band energy
	// in ConfigureTrack. Off by default: a beat late in the old track can
	// then suppress the first beat of the new one.
	ResetOnTrackChange bool
}

// DefaultOptions returns the default detector options.
func DefaultOptions() Options {
	return Options{
		SampleCount:   DefaultSampleCount,
		DefaultBand:   DefaultBand,
		BaseThreshold: DefaultBaseThreshold,
		MinRefractory: DefaultMinRefractory,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.SampleCount < BandCount {
		return fmt.Errorf("%w: sample count must be at least %d, got %d", ErrInvalidConfiguration, BandCount, o.SampleCount)
	}
	return BandConfig{
		Band:       o.DefaultBand,
		Threshold:  o.BaseThreshold,
		Refractory: o.MinRefractory,
	}.Validate()
}
