package beat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/beatdetector/internal/logging"
)

var (
	// ErrSourceRequired indicates a spectrum source is required
	ErrSourceRequired = errors.New("spectrum source is required")
	// ErrClockRequired indicates a clock is required
	ErrClockRequired = errors.New("clock is required")
	// ErrDetectorRequired indicates a detector is required
	ErrDetectorRequired = errors.New("detector is required")
	// ErrInvalidTickInterval indicates the tick interval must be positive
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
	// ErrAlreadyRunning indicates Run was called more than once
	ErrAlreadyRunning = errors.New("driver already running")
	// ErrDriverStopped indicates the driver no longer accepts requests
	ErrDriverStopped = errors.New("driver stopped")
)

// SpectrumSource supplies the current magnitude spectrum. Spectrum fills dst
// (growing it if needed) and returns the frame; the detector does not keep
// it past the tick.
type SpectrumSource interface {
	Spectrum(dst []float64) []float64
}

// Clock returns a monotonic time in seconds.
type Clock interface {
	Now() float64
}

// MonotonicClock reports seconds elapsed since it was created, using the
// monotonic reading carried by time.Time.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now returns seconds since the clock was created.
func (c *MonotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

type request struct {
	apply func(*Detector) error
	stop  bool
	reply chan error
}

// Driver runs a Detector as a periodic task. Every tick and every
// reconfiguration or stop request is executed on the goroutine calling Run,
// so the detector never sees concurrent mutation.
type Driver struct {
	detector *Detector
	source   SpectrumSource
	clock    Clock
	interval time.Duration
	log      logging.Logger

	frame    []float64
	requests chan request
	done     chan struct{}
	running  atomic.Bool
	ticks    atomic.Uint64
}

// NewDriver wires a detector to its spectrum source and clock.
func NewDriver(det *Detector, src SpectrumSource, clk Clock, interval time.Duration, log logging.Logger) (*Driver, error) {
	if det == nil {
		return nil, ErrDetectorRequired
	}
	if src == nil {
		return nil, ErrSourceRequired
	}
	if clk == nil {
		return nil, ErrClockRequired
	}
	if interval <= 0 {
		return nil, ErrInvalidTickInterval
	}
	if log == nil {
		log = logging.NoOpLogger{}
	}

	return &Driver{
		detector: det,
		source:   src,
		clock:    clk,
		interval: interval,
		log:      log,
		frame:    make([]float64, 0, det.Options().SampleCount),
		requests: make(chan request, 8),
		done:     make(chan struct{}),
	}, nil
}

// Detector returns the driven detector.
func (d *Driver) Detector() *Detector {
	return d.detector
}

// Ticks returns the number of ticks processed.
func (d *Driver) Ticks() uint64 {
	return d.ticks.Load()
}

// Tick pulls one frame and one timestamp and processes them. Run calls it on
// every tick; calling it directly is only safe while Run is not running.
func (d *Driver) Tick() bool {
	d.frame = d.source.Spectrum(d.frame[:0])
	d.ticks.Add(1)
	return d.detector.Process(d.frame, d.clock.Now())
}

// Run ticks until ctx is cancelled or a stop is requested. It returns nil on
// a requested stop and ctx.Err() on cancellation. A Driver runs once.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Debug("driver started", logging.Fields{"interval": d.interval})
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("driver cancelled")
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		case r := <-d.requests:
			if r.stop {
				r.reply <- nil
				d.log.Debug("driver stopped on request")
				return nil
			}
			r.reply <- r.apply(d.detector)
		}
	}
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// ConfigureTrack asks the running driver to reconfigure for a track.
func (d *Driver) ConfigureTrack(ctx context.Context, bpm float64, track int) error {
	return d.submit(ctx, request{apply: func(det *Detector) error {
		return det.ConfigureTrack(bpm, track)
	}})
}

// ConfigureManual asks the running driver to replace the band configuration.
func (d *Driver) ConfigureManual(ctx context.Context, band int, threshold, refractory float64) error {
	return d.submit(ctx, request{apply: func(det *Detector) error {
		return det.ConfigureManual(band, threshold, refractory)
	}})
}

// Stop asks the running driver to return from Run.
func (d *Driver) Stop(ctx context.Context) error {
	return d.submit(ctx, request{stop: true})
}

// StopAfter schedules a stop after dur, the way a song-completion timer ends
// a run. onComplete is called after the driver accepted the stop. The
// returned function cancels the timer and reports whether it was still
// pending.
func (d *Driver) StopAfter(dur time.Duration, onComplete func()) (cancel func() bool) {
	t := time.AfterFunc(dur, func() {
		if err := d.Stop(context.Background()); err != nil {
			d.log.Debug("song timer fired after driver stopped", logging.Fields{"error": err.Error()})
			return
		}
		d.log.Info("song complete", logging.Fields{"beats": d.detector.BeatCount()})
		if onComplete != nil {
			onComplete()
		}
	})
	return t.Stop
}

func (d *Driver) submit(ctx context.Context, r request) error {
	r.reply = make(chan error, 1)

	select {
	case d.requests <- r:
	case <-d.done:
		return ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		select {
		case err := <-r.reply:
			return err
		default:
			return ErrDriverStopped
		}
	}
}
