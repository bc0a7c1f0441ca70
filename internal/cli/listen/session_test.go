package listen

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ColonelBlimp/beatdetector/internal/beat"
	"github.com/ColonelBlimp/beatdetector/internal/config"
	"github.com/ColonelBlimp/beatdetector/internal/logging"
)

// Test configuration constants
const (
	sessionTestSampleCount = 64
	sessionTestToneBin     = 10 // inside band 1: bins [8,16)
)

// lockedBuffer is a bytes.Buffer safe to read while goroutines write
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testSettings returns valid settings for a small, fast session
func testSettings() *config.Settings {
	return &config.Settings{
		DeviceIndex:   -1,
		SampleRate:    44100,
		Channels:      1,
		BufferSize:    512,
		SampleCount:   sessionTestSampleCount,
		Window:        "rectangular",
		TickRate:      100,
		DefaultBand:   1,
		BaseThreshold: 0.05,
		MinRefractory: 0.2,
		Track:         5, // no preset: base threshold and default band
		BPM:           120,
		SpawnEvery:    1,
		PulseDuration: 200 * time.Millisecond,
	}
}

// createTestSession creates a session writing to a locked buffer
func createTestSession(t *testing.T, settings *config.Settings, log logging.Logger) (*Session, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	s, err := NewSession(settings, out, log)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s, out
}

// toneSamples returns a full analysis window of a sine centred on bin k
func toneSamples(k, size int) []float32 {
	samples := make([]float32, size)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * float64(k) * float64(i) / float64(size)))
	}
	return samples
}

func TestNewSession_InvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.SampleCount = 1000

	_, err := NewSession(settings, &bytes.Buffer{}, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("NewSession() error = %v, want invalid config", err)
	}
}

func TestNewSession_ConfiguresSelectedTrack(t *testing.T) {
	settings := testSettings()
	settings.Track = 1
	settings.BPM = 0
	settings.Tracks = []config.TrackSettings{
		{Name: "Intro", BPM: 90, Threshold: 0.1, Band: 4},
		{Name: "Drop", BPM: 150, Threshold: 0.4, Band: 6},
	}

	s, _ := createTestSession(t, settings, nil)

	want := beat.BandConfig{Band: 6, Threshold: 0.4, Refractory: 0.2}
	if got := s.Detector().Config(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if got := s.Detector().CurrentBPM(); math.Abs(got-150) > 1e-9 {
		t.Errorf("CurrentBPM() = %v, want 150", got)
	}
}

func TestNewSession_UnlistedTrackUsesBaseValues(t *testing.T) {
	s, _ := createTestSession(t, testSettings(), nil)

	want := beat.BandConfig{Band: 1, Threshold: 0.05, Refractory: 0.25}
	if got := s.Detector().Config(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
}

func TestProcess_SteadyToneFiresOnce(t *testing.T) {
	settings := testSettings()
	settings.SongLength = 150 * time.Millisecond

	s, out := createTestSession(t, settings, nil)
	s.Analyzer().Write(toneSamples(sessionTestToneBin, s.Analyzer().FFTSize()))

	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	select {
	case <-s.SongDone():
	case <-time.After(time.Second):
		t.Fatal("song timer did not complete")
	}

	// Constant energy never rises again after the first tick
	if got := s.Detector().BeatCount(); got != 1 {
		t.Errorf("BeatCount() = %d, want 1", got)
	}
	if s.Driver().Ticks() == 0 {
		t.Error("driver never ticked")
	}

	output := out.String()
	for _, want := range []string{"beat    1", "band=1", "[·■······]", "obstacle on beat 1", "1 beats, 1 obstacles", "song complete"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestProcess_SilenceNeverFires(t *testing.T) {
	settings := testSettings()
	settings.SongLength = 80 * time.Millisecond

	s, out := createTestSession(t, settings, nil)
	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := s.Detector().BeatCount(); got != 0 {
		t.Errorf("BeatCount() = %d, want 0", got)
	}
	if !strings.Contains(out.String(), "0 beats, 0 obstacles") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}

func TestProcess_CancelIsCleanExit(t *testing.T) {
	s, _ := createTestSession(t, testSettings(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Process(ctx); err != nil {
		t.Errorf("Process() error = %v, want nil on cancellation", err)
	}
}

func TestProcess_LogsDiagnostics(t *testing.T) {
	settings := testSettings()
	settings.DiagnosticsDelay = 60 * time.Millisecond
	settings.SongLength = 150 * time.Millisecond

	logs := &lockedBuffer{}
	s, _ := createTestSession(t, settings, logging.NewWriterLogger(logs, logging.InfoLevel))
	s.Analyzer().Write(toneSamples(sessionTestToneBin, s.Analyzer().FFTSize()))

	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	<-s.SongDone()

	output := logs.String()
	for _, want := range []string{"listening", "detector diagnostics", "beat_count=1", "bpm=120", "listeners=3", "song complete"} {
		if !strings.Contains(output, want) {
			t.Errorf("log missing %q:\n%s", want, output)
		}
	}
}

func TestProcess_ListenerPanicBecomesError(t *testing.T) {
	s, _ := createTestSession(t, testSettings(), nil)
	s.Detector().AddListener(func(beat.Event) {
		panic("bad listener")
	})
	s.Analyzer().Write(toneSamples(sessionTestToneBin, s.Analyzer().FFTSize()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := s.Process(ctx)
	if err == nil || !strings.Contains(err.Error(), "bad listener") {
		t.Errorf("Process() error = %v, want recovered panic", err)
	}
	select {
	case <-s.Driver().Done():
	default:
		t.Error("driver Done() not closed after panic")
	}
}

func TestSelectTrack_UsesTrackBPM(t *testing.T) {
	settings := testSettings()
	settings.Tracks = []config.TrackSettings{
		{BPM: 90, Threshold: 0.1, Band: 4},
		{BPM: 174, Threshold: 0.3, Band: 3},
	}
	s, _ := createTestSession(t, settings, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Process(ctx) }()

	if err := s.SelectTrack(ctx, 1, 0); err != nil {
		t.Fatalf("SelectTrack() error = %v", err)
	}

	cfg := s.Detector().Config()
	if cfg.Band != 3 || cfg.Threshold != 0.3 || math.Abs(cfg.Refractory-30.0/174) > 1e-12 {
		t.Errorf("Config() = %+v, want band 3 threshold 0.3 refractory 30/174", cfg)
	}

	if err := s.SelectTrack(ctx, 0, 60); err != nil {
		t.Fatalf("SelectTrack() error = %v", err)
	}
	if got := s.Detector().Config().Refractory; got != 0.5 {
		t.Errorf("Refractory = %v, want 0.5 for the bpm override", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Process() error = %v", err)
	}
}

func TestSelectTrack_InvalidBPM(t *testing.T) {
	s, _ := createTestSession(t, testSettings(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Process(ctx) }()

	before := s.Detector().Config()
	err := s.SelectTrack(ctx, 0, -10)
	if !errors.Is(err, beat.ErrInvalidConfiguration) {
		t.Errorf("SelectTrack() error = %v, want ErrInvalidConfiguration", err)
	}
	if got := s.Detector().Config(); got != before {
		t.Errorf("Config() changed to %+v after rejected track", got)
	}

	cancel()
	<-done
}

func TestMeter(t *testing.T) {
	var active [beat.BandCount]bool
	if got := Meter(active); got != "[········]" {
		t.Errorf("Meter(none) = %q", got)
	}

	active[0] = true
	active[7] = true
	if got := Meter(active); got != "[■······■]" {
		t.Errorf("Meter(0,7) = %q", got)
	}
}
