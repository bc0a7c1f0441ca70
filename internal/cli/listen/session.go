// Package listen wires audio capture, spectrum analysis and beat detection
// into a runnable session for the CLI.
package listen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ColonelBlimp/beatdetector/internal/audio"
	"github.com/ColonelBlimp/beatdetector/internal/beat"
	"github.com/ColonelBlimp/beatdetector/internal/config"
	"github.com/ColonelBlimp/beatdetector/internal/logging"
	"github.com/ColonelBlimp/beatdetector/internal/recovery"
	"github.com/ColonelBlimp/beatdetector/internal/spawn"
	"github.com/ColonelBlimp/beatdetector/internal/spectrum"
)

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the monotonic clock, mainly for tests.
func WithClock(c beat.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// Session is one run of the beat detector against a live or fed signal.
type Session struct {
	settings *config.Settings
	log      logging.Logger
	out      *syncWriter
	clock    beat.Clock

	analyzer *spectrum.Analyzer
	detector *beat.Detector
	driver   *beat.Driver
	pulse    *beat.Pulse
	spawner  *spawn.Spawner

	songDone chan struct{}
	songOnce sync.Once
}

// NewSession builds the processing chain from settings and configures the
// detector for the selected track. Beats and spawns are written to out.
func NewSession(settings *config.Settings, out io.Writer, log logging.Logger, opts ...Option) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logging.NoOpLogger{}
	}

	s := &Session{
		settings: settings,
		log:      log,
		out:      &syncWriter{w: out},
		songDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = beat.NewMonotonicClock()
	}

	var err error
	s.analyzer, err = spectrum.NewAnalyzer(settings.SpectrumConfig())
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	s.detector, err = beat.NewDetector(settings.DetectorOptions(),
		beat.WithTrackTable(settings.TrackTable()),
		beat.WithLogger(log.WithFields(logging.Fields{"component": "detector"})),
	)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	// The driver is not running yet, so configure the detector directly
	if err = s.detector.ConfigureTrack(settings.EffectiveBPM(), settings.Track); err != nil {
		return nil, fmt.Errorf("configure track: %w", err)
	}

	s.driver, err = beat.NewDriver(s.detector, s.analyzer, s.clock, settings.TickInterval(),
		log.WithFields(logging.Fields{"component": "driver"}))
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	s.spawner, err = spawn.New(spawn.Config{
		Every:     settings.SpawnEvery,
		Variation: settings.SpawnVariation,
	}, spawn.SinkFunc(s.printSpawn), nil, log.WithFields(logging.Fields{"component": "spawner"}))
	if err != nil {
		return nil, fmt.Errorf("create spawner: %w", err)
	}

	s.pulse = beat.NewPulse(settings.PulseDuration.Seconds())

	// Pulse first so the printed meter includes the beat being printed
	s.detector.AddListener(s.pulse.OnBeat)
	s.detector.AddListener(s.printBeat)
	s.detector.AddListener(s.spawner.OnBeat)
	if settings.Debug {
		s.detector.AddListener(s.debugBeat)
	}

	return s, nil
}

// Analyzer returns the sink audio should be written to.
func (s *Session) Analyzer() *spectrum.Analyzer {
	return s.analyzer
}

// Detector returns the session's detector.
func (s *Session) Detector() *beat.Detector {
	return s.detector
}

// Driver returns the session's driver.
func (s *Session) Driver() *beat.Driver {
	return s.driver
}

// Spawner returns the session's spawner.
func (s *Session) Spawner() *spawn.Spawner {
	return s.spawner
}

// SongDone is closed when the song timer ends the session.
func (s *Session) SongDone() <-chan struct{} {
	return s.songDone
}

// Run captures from the configured audio device and processes until ctx is
// cancelled, the song ends or a quit command arrives.
func (s *Session) Run(ctx context.Context) error {
	capture := audio.New(s.settings.AudioConfig())
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			s.log.Error(err, "audio close failed")
		}
	}()
	capture.SetSink(s.analyzer)

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio start: %w", err)
	}
	defer func() {
		s.log.Debug("capture finished", logging.Fields{
			"frames":  capture.Frames(),
			"dropped": capture.Dropped(),
		})
	}()

	return s.Process(ctx)
}

// Process runs the beat driver over whatever is written to the analyzer.
// Cancellation of ctx is a normal exit and returns nil.
func (s *Session) Process(ctx context.Context) error {
	s.log.Info("listening", logging.Fields{
		"track":      s.settings.TrackName(s.settings.Track),
		"bpm":        s.detector.CurrentBPM(),
		"band":       s.detector.Config().Band,
		"threshold":  s.detector.Config().Threshold,
		"refractory": s.detector.Config().Refractory,
	})

	if s.settings.SongLength > 0 {
		cancelSong := s.driver.StopAfter(s.settings.SongLength, s.songComplete)
		defer cancelSong()
	}
	if s.settings.DiagnosticsDelay > 0 {
		t := time.AfterFunc(s.settings.DiagnosticsDelay, s.logDiagnostics)
		defer t.Stop()
	}

	err := recovery.Guard(func() error {
		return s.driver.Run(ctx)
	})

	beats, spawned, _ := s.spawner.Stats()
	s.out.printf("%d beats, %d obstacles\n", beats, spawned)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// SelectTrack reconfigures a running session for another track. A bpm of
// zero uses the track's configured tempo. The spawn count restarts.
func (s *Session) SelectTrack(ctx context.Context, track int, bpm float64) error {
	if bpm == 0 {
		resolved := *s.settings
		resolved.Track = track
		resolved.BPM = 0
		bpm = resolved.EffectiveBPM()
	}
	if err := s.driver.ConfigureTrack(ctx, bpm, track); err != nil {
		return err
	}
	s.spawner.Reset()
	s.log.Info("track selected", logging.Fields{"track": s.settings.TrackName(track), "bpm": bpm})
	return nil
}

func (s *Session) songComplete() {
	s.songOnce.Do(func() {
		s.out.printf("song complete\n")
		close(s.songDone)
	})
}

// logDiagnostics reports the detector state once the session has settled.
func (s *Session) logDiagnostics() {
	s.log.Info("detector diagnostics", logging.Fields{
		"beat_count":        s.detector.BeatCount(),
		"band_energy":       s.detector.CurrentBandEnergy(),
		"bpm":               s.detector.CurrentBPM(),
		"ticks":             s.driver.Ticks(),
		"samples":           s.analyzer.Written(),
		"clock_regressions": s.detector.ClockRegressions(),
		"listeners":         s.detector.ListenerCount(),
	})
}

func (s *Session) printBeat(ev beat.Event) {
	s.out.printf("beat %4d  t=%8.3fs  band=%d  energy=%.4f  %s\n",
		ev.Count, ev.Time, ev.Band, ev.Energy, Meter(s.pulse.Snapshot(ev.Time)))
}

func (s *Session) printSpawn(sp spawn.Spawn) {
	marker := "obstacle"
	if sp.Flipped {
		marker = "obstacle (variation)"
	}
	s.out.printf("           %s on beat %d\n", marker, sp.Beat)
}

func (s *Session) debugBeat(ev beat.Event) {
	s.log.Debug("BEAT", logging.Fields{"count": ev.Count, "time": ev.Time, "energy": ev.Energy})
}

// Meter renders one cell per band, filled while the band's marker is lit.
func Meter(active [beat.BandCount]bool) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, on := range active {
		if on {
			b.WriteRune('■')
		} else {
			b.WriteRune('·')
		}
	}
	b.WriteByte(']')
	return b.String()
}

// ListAudioDevices returns the available capture devices.
func ListAudioDevices() ([]audio.Device, error) {
	capture := audio.New(audio.DefaultConfig())
	if err := capture.Init(); err != nil {
		return nil, fmt.Errorf("audio init: %w", err)
	}
	defer capture.Close()

	return capture.ListDevices()
}

// syncWriter serialises writes from the driver goroutine and the control loop
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.w, format, args...)
}
