// Package beat turns per-tick magnitude spectra into discrete beat events.
//
// A Detector averages one of eight equal frequency bands and fires when the
// band energy is above a threshold, rising relative to the previous tick and
// outside the refractory lockout that follows every fired beat. Whether the
// detector is armed is recomputed from the tick time on every call; there is
// no stored armed/refractory state.
package beat

import (
	"fmt"
	"maps"
	"math"
	"sync/atomic"

	"github.com/ColonelBlimp/beatdetector/internal/logging"
)

// DetectorOption customises a Detector at construction.
type DetectorOption func(*Detector)

// WithTrackTable replaces the default per-track presets.
func WithTrackTable(t TrackTable) DetectorOption {
	return func(d *Detector) {
		d.tracks = maps.Clone(t)
	}
}

// WithLogger sets the logger used for diagnostics. Defaults to a no-op.
func WithLogger(l logging.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// Detector is a rising-edge band-energy beat detector.
//
// Process, ConfigureTrack and ConfigureManual must be called from one
// goroutine or be externally serialised (see Driver). Listener registration
// and the diagnostic getters are safe from any goroutine.
type Detector struct {
	opts   Options
	tracks TrackTable
	log    logging.Logger

	// Swapped as a unit so a tick never sees a half-applied update
	config atomic.Pointer[BandConfig]

	listeners Registry

	// Tick state, owned by the processing goroutine
	previousEnergy float64
	lastBeat       float64 // -Inf until the first beat
	lastNow        float64 // -Inf until the first tick

	// Diagnostics, readable from other goroutines
	beatCount        atomic.Uint64
	currentEnergy    atomic.Uint64 // float64 bits
	clockRegressions atomic.Uint64
}

// NewDetector creates a detector using opts. The initial band configuration
// is {DefaultBand, BaseThreshold, MinRefractory}. No beat has been seen yet,
// so the first qualifying tick always fires whatever the refractory.
func NewDetector(opts Options, extra ...DetectorOption) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		opts:     opts,
		tracks:   DefaultTrackTable(),
		log:      logging.NoOpLogger{},
		lastBeat: math.Inf(-1),
		lastNow:  math.Inf(-1),
	}
	for _, o := range extra {
		o(d)
	}
	if err := d.tracks.Validate(); err != nil {
		return nil, err
	}

	d.config.Store(&BandConfig{
		Band:       opts.DefaultBand,
		Threshold:  opts.BaseThreshold,
		Refractory: opts.MinRefractory,
	})
	return d, nil
}

// Process analyses one spectrum frame taken at time now (seconds on a
// monotonic clock) and reports whether a beat fired. Listeners run before
// Process returns.
func (d *Detector) Process(frame []float64, now float64) bool {
	cfg := d.config.Load()
	energy := BandEnergy(frame, d.opts.SampleCount, cfg.Band)
	d.currentEnergy.Store(math.Float64bits(energy))

	if now < d.lastNow || math.IsNaN(now) {
		d.clockRegressions.Add(1)
		d.log.Warn("clock went backwards, skipping tick", logging.Fields{
			"now":      now,
			"previous": d.lastNow,
		})
		return false
	}
	d.lastNow = now

	fired := energy > cfg.Threshold &&
		energy > d.previousEnergy &&
		now > d.lastBeat+cfg.Refractory
	d.previousEnergy = energy

	if !fired {
		return false
	}

	d.lastBeat = now
	count := d.beatCount.Add(1)
	d.log.Debug("beat detected", logging.Fields{
		"count":  count,
		"energy": energy,
		"band":   cfg.Band,
	})
	d.listeners.Dispatch(Event{
		Count:  count,
		Time:   now,
		Energy: energy,
		Band:   cfg.Band,
	})
	return true
}

// ConfigureTrack applies the preset for track and sets the refractory
// interval to half a beat at bpm (30/bpm seconds).
func (d *Detector) ConfigureTrack(bpm float64, track int) error {
	refractory, err := RefractoryForBPM(bpm)
	if err != nil {
		return err
	}

	preset, ok := d.tracks[track]
	if !ok {
		preset = TrackPreset{Threshold: d.opts.BaseThreshold, Band: d.opts.DefaultBand}
	}

	cfg := BandConfig{Band: preset.Band, Threshold: preset.Threshold, Refractory: refractory}
	if err := d.apply(cfg); err != nil {
		return fmt.Errorf("track %d: %w", track, err)
	}

	if d.opts.ResetOnTrackChange {
		d.previousEnergy = 0
		d.lastBeat = math.Inf(-1)
	}

	d.log.Info("track configured", logging.Fields{
		"track":      track,
		"bpm":        bpm,
		"band":       cfg.Band,
		"threshold":  cfg.Threshold,
		"refractory": cfg.Refractory,
	})
	return nil
}

// ConfigureManual replaces the whole band configuration.
func (d *Detector) ConfigureManual(band int, threshold, refractory float64) error {
	return d.apply(BandConfig{Band: band, Threshold: threshold, Refractory: refractory})
}

func (d *Detector) apply(cfg BandConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.config.Store(&cfg)
	return nil
}

// AddListener registers l for beat events.
func (d *Detector) AddListener(l Listener) Handle {
	return d.listeners.Add(l)
}

// RemoveListener unregisters a listener. Unknown handles are ignored.
func (d *Detector) RemoveListener(h Handle) {
	d.listeners.Remove(h)
}

// ListenerCount returns the number of registered listeners.
func (d *Detector) ListenerCount() int {
	return d.listeners.Len()
}

// Config returns the active band configuration.
func (d *Detector) Config() BandConfig {
	return *d.config.Load()
}

// Options returns the construction options.
func (d *Detector) Options() Options {
	return d.opts
}

// TrackTable returns a copy of the per-track presets.
func (d *Detector) TrackTable() TrackTable {
	return maps.Clone(d.tracks)
}

// BeatCount returns the number of beats fired so far.
func (d *Detector) BeatCount() uint64 {
	return d.beatCount.Load()
}

// CurrentBandEnergy returns the band energy computed on the latest tick.
func (d *Detector) CurrentBandEnergy() float64 {
	return math.Float64frombits(d.currentEnergy.Load())
}

// CurrentBPM returns the tempo the active refractory interval corresponds to
// (30/refractory).
func (d *Detector) CurrentBPM() float64 {
	return 30 / d.config.Load().Refractory
}

// ClockRegressions returns how many ticks were skipped because the clock
// went backwards.
func (d *Detector) ClockRegressions() uint64 {
	return d.clockRegressions.Load()
}
