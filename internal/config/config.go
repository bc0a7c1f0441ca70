// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ColonelBlimp/beatdetector/internal/audio"
	"github.com/ColonelBlimp/beatdetector/internal/beat"
	"github.com/ColonelBlimp/beatdetector/internal/spectrum"
	"github.com/spf13/viper"
)

const (
	AppName       = "beatdetector"
	ConfigType    = "yaml"
	DefaultBPM    = 120.0
	DefaultConfig = `# Beat Detector Configuration

# Audio device settings
device_index: -1        # -1 for default device
sample_rate: 44100      # Audio sample rate in Hz
channels: 1             # Number of channels (stereo is downmixed)
buffer_size: 512        # Frames per capture callback

# Spectrum
sample_count: 1024      # Spectrum bins per frame (power of 2), FFT size is twice this
window: blackman_harris # blackman_harris, blackman, hann, hamming, bartlett, flat_top, rectangular
tick_rate: 60           # Detector ticks per second

# Detection
default_band: 1         # Band (0-7) for tracks without a preset
base_threshold: 0.3     # Threshold for tracks without a preset
min_refractory: 0.2     # Lockout in seconds before a track is configured
reset_on_track_change: false # Forget the last beat when switching tracks

# Track selection
track: 0                # Track index to configure at start
bpm: 0                  # Tempo override, 0 uses the track's bpm (or 120)
song_length: 0s         # Stop after this long, 0s runs until interrupted

# Track presets: refractory interval is 30/bpm seconds
tracks:
  - name: "Track 1"
    bpm: 120
    threshold: 0.15
    band: 1
  - name: "Track 2"
    bpm: 120
    threshold: 0.20
    band: 2
  - name: "Track 3"
    bpm: 120
    threshold: 0.25
    band: 0

# Obstacle spawning
spawn_every: 2          # Spawn on every Nth beat
spawn_variation: 0.3    # Chance (0.0-1.0) to flip a spawn decision

# Output
pulse_duration: 200ms   # How long a band marker stays lit after a beat
diagnostics_delay: 5s   # Delay before logging a detector snapshot, 0s disables
debug: false            # Enable debug output
`
)

// TrackSettings is one entry of the tracks list
type TrackSettings struct {
	Name      string  `mapstructure:"name"`
	BPM       float64 `mapstructure:"bpm"`
	Threshold float64 `mapstructure:"threshold"`
	Band      int     `mapstructure:"band"`
}

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int `mapstructure:"device_index"`
	SampleRate  int `mapstructure:"sample_rate"`
	Channels    int `mapstructure:"channels"`
	BufferSize  int `mapstructure:"buffer_size"`

	// Spectrum
	SampleCount int     `mapstructure:"sample_count"`
	Window      string  `mapstructure:"window"`
	TickRate    float64 `mapstructure:"tick_rate"`

	// Detection
	DefaultBand        int     `mapstructure:"default_band"`
	BaseThreshold      float64 `mapstructure:"base_threshold"`
	MinRefractory      float64 `mapstructure:"min_refractory"`
	ResetOnTrackChange bool    `mapstructure:"reset_on_track_change"`

	// Track selection
	Track      int             `mapstructure:"track"`
	BPM        float64         `mapstructure:"bpm"`
	SongLength time.Duration   `mapstructure:"song_length"`
	Tracks     []TrackSettings `mapstructure:"tracks"`

	// Obstacle spawning
	SpawnEvery     int     `mapstructure:"spawn_every"`
	SpawnVariation float64 `mapstructure:"spawn_variation"`

	// Output
	PulseDuration    time.Duration `mapstructure:"pulse_duration"`
	DiagnosticsDelay time.Duration `mapstructure:"diagnostics_delay"`
	Debug            bool          `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/beatdetector/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 512)
	viper.SetDefault("sample_count", beat.DefaultSampleCount)
	viper.SetDefault("window", string(spectrum.WindowBlackmanHarris))
	viper.SetDefault("tick_rate", 60)
	viper.SetDefault("default_band", beat.DefaultBand)
	viper.SetDefault("base_threshold", beat.DefaultBaseThreshold)
	viper.SetDefault("min_refractory", beat.DefaultMinRefractory)
	viper.SetDefault("reset_on_track_change", false)
	viper.SetDefault("track", 0)
	viper.SetDefault("bpm", 0)
	viper.SetDefault("song_length", "0s")
	viper.SetDefault("spawn_every", 2)
	viper.SetDefault("spawn_variation", 0.3)
	viper.SetDefault("pulse_duration", "200ms")
	viper.SetDefault("diagnostics_delay", "5s")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}

	// Spectrum
	if s.SampleCount < 64 || s.SampleCount > 16384 || s.SampleCount&(s.SampleCount-1) != 0 {
		errs = append(errs, fmt.Errorf("sample_count must be a power of 2 between 64 and 16384, got %d", s.SampleCount))
	}
	if !spectrum.Window(s.Window).Valid() {
		errs = append(errs, fmt.Errorf("window must be one of %v, got %q", spectrum.Windows(), s.Window))
	}
	if !(s.TickRate >= 1 && s.TickRate <= 1000) {
		errs = append(errs, fmt.Errorf("tick_rate must be between 1 and 1000 Hz, got %v", s.TickRate))
	}

	// Detection
	if s.DefaultBand < 0 || s.DefaultBand >= beat.BandCount {
		errs = append(errs, fmt.Errorf("default_band must be between 0 and %d, got %d", beat.BandCount-1, s.DefaultBand))
	}
	if !(s.BaseThreshold > 0) || math.IsInf(s.BaseThreshold, 0) {
		errs = append(errs, fmt.Errorf("base_threshold must be greater than 0, got %v", s.BaseThreshold))
	}
	if !(s.MinRefractory > 0) || s.MinRefractory > 10 {
		errs = append(errs, fmt.Errorf("min_refractory must be between 0 and 10 seconds, got %v", s.MinRefractory))
	}

	// Track selection
	if s.Track < 0 {
		errs = append(errs, fmt.Errorf("track must not be negative, got %d", s.Track))
	}
	if s.BPM < 0 || s.BPM > 400 || math.IsNaN(s.BPM) {
		errs = append(errs, fmt.Errorf("bpm must be between 0 and 400, got %v", s.BPM))
	}
	if s.SongLength < 0 {
		errs = append(errs, fmt.Errorf("song_length must not be negative, got %v", s.SongLength))
	}
	for i, t := range s.Tracks {
		if t.BPM < 0 || t.BPM > 400 || math.IsNaN(t.BPM) {
			errs = append(errs, fmt.Errorf("tracks[%d].bpm must be between 0 and 400, got %v", i, t.BPM))
		}
		if t.Band < 0 || t.Band >= beat.BandCount {
			errs = append(errs, fmt.Errorf("tracks[%d].band must be between 0 and %d, got %d", i, beat.BandCount-1, t.Band))
		}
		if !(t.Threshold > 0) || math.IsInf(t.Threshold, 0) {
			errs = append(errs, fmt.Errorf("tracks[%d].threshold must be greater than 0, got %v", i, t.Threshold))
		}
	}

	// Obstacle spawning
	if s.SpawnEvery < 1 || s.SpawnEvery > 64 {
		errs = append(errs, fmt.Errorf("spawn_every must be between 1 and 64, got %d", s.SpawnEvery))
	}
	if !(s.SpawnVariation >= 0 && s.SpawnVariation <= 1) {
		errs = append(errs, fmt.Errorf("spawn_variation must be between 0.0 and 1.0, got %v", s.SpawnVariation))
	}

	// Output
	if s.PulseDuration <= 0 {
		errs = append(errs, fmt.Errorf("pulse_duration must be positive, got %v", s.PulseDuration))
	}
	if s.DiagnosticsDelay < 0 {
		errs = append(errs, fmt.Errorf("diagnostics_delay must not be negative, got %v", s.DiagnosticsDelay))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TrackTable converts the tracks list to detector presets, indexed by
// position. An empty list yields the built-in table.
func (s *Settings) TrackTable() beat.TrackTable {
	if len(s.Tracks) == 0 {
		return beat.DefaultTrackTable()
	}
	table := make(beat.TrackTable, len(s.Tracks))
	for i, t := range s.Tracks {
		table[i] = beat.TrackPreset{Threshold: t.Threshold, Band: t.Band}
	}
	return table
}

// TrackName returns the configured name of a track, or a generated one.
func (s *Settings) TrackName(track int) string {
	if track >= 0 && track < len(s.Tracks) && s.Tracks[track].Name != "" {
		return s.Tracks[track].Name
	}
	return fmt.Sprintf("Track %d", track+1)
}

// EffectiveBPM resolves the tempo for the selected track: the bpm override
// if set, then the track's own bpm, then DefaultBPM.
func (s *Settings) EffectiveBPM() float64 {
	if s.BPM > 0 {
		return s.BPM
	}
	if s.Track >= 0 && s.Track < len(s.Tracks) && s.Tracks[s.Track].BPM > 0 {
		return s.Tracks[s.Track].BPM
	}
	return DefaultBPM
}

// TickInterval returns the detector period for tick_rate.
func (s *Settings) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.TickRate)
}

// AudioConfig returns the capture settings.
func (s *Settings) AudioConfig() audio.Config {
	return audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    uint32(s.Channels),
		BufferSize:  uint32(s.BufferSize),
	}
}

// SpectrumConfig returns the analyzer settings.
func (s *Settings) SpectrumConfig() spectrum.Config {
	return spectrum.Config{
		SampleCount: s.SampleCount,
		Window:      spectrum.Window(s.Window),
	}
}

// DetectorOptions returns the detector construction options.
func (s *Settings) DetectorOptions() beat.Options {
	return beat.Options{
		SampleCount:        s.SampleCount,
		DefaultBand:        s.DefaultBand,
		BaseThreshold:      s.BaseThreshold,
		MinRefractory:      s.MinRefractory,
		ResetOnTrackChange: s.ResetOnTrackChange,
	}
}
