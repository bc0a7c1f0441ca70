// Package spawn turns detected beats into obstacle spawns.
package spawn

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/ColonelBlimp/beatdetector/internal/beat"
	"github.com/ColonelBlimp/beatdetector/internal/logging"
)

var (
	// ErrInvalidInterval indicates every must be at least 1
	ErrInvalidInterval = errors.New("spawn interval must be at least 1 beat")
	// ErrInvalidVariation indicates the flip chance must be within [0,1]
	ErrInvalidVariation = errors.New("spawn variation must be between 0 and 1")
	// ErrSinkRequired indicates a sink is required
	ErrSinkRequired = errors.New("spawn sink is required")
)

// Spawn describes one obstacle placed on a beat.
type Spawn struct {
	Beat    uint64  // detector beat count that triggered it
	Time    float64 // beat timestamp in seconds
	Band    int
	Flipped bool // true when the random variation forced this spawn
}

// Sink receives spawns. It is called on the detector's goroutine.
type Sink interface {
	Spawn(s Spawn)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Spawn)

// Spawn calls f.
func (f SinkFunc) Spawn(s Spawn) { f(s) }

// Config holds spawner settings.
type Config struct {
	// Every spawns on every Nth beat
	Every int
	// Variation is the chance that a beat's spawn decision is flipped
	Variation float64
}

// Spawner is a beat listener. Every Nth beat spawns; with probability
// Variation the decision for any beat is inverted.
type Spawner struct {
	config Config
	sink   Sink
	log    logging.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	beats   uint64
	spawned uint64
	skipped uint64
}

// New creates a spawner. A nil rng seeds one from the runtime.
func New(cfg Config, sink Sink, rng *rand.Rand, log logging.Logger) (*Spawner, error) {
	if cfg.Every < 1 {
		return nil, ErrInvalidInterval
	}
	if !(cfg.Variation >= 0 && cfg.Variation <= 1) {
		return nil, ErrInvalidVariation
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Spawner{config: cfg, sink: sink, rng: rng, log: log}, nil
}

// OnBeat is the beat.Listener.
func (s *Spawner) OnBeat(ev beat.Event) {
	s.mu.Lock()
	s.beats++
	spawn := s.beats%uint64(s.config.Every) == 0
	flipped := false
	if s.config.Variation > 0 && s.rng.Float64() < s.config.Variation {
		spawn = !spawn
		flipped = spawn
	}
	if !spawn {
		s.skipped++
		s.mu.Unlock()
		return
	}
	s.spawned++
	s.mu.Unlock()

	s.log.Debug("spawn", logging.Fields{"beat": ev.Count, "time": ev.Time, "flipped": flipped})
	s.sink.Spawn(Spawn{Beat: ev.Count, Time: ev.Time, Band: ev.Band, Flipped: flipped})
}

// Stats returns the number of beats seen, spawns emitted and beats skipped.
func (s *Spawner) Stats() (beats, spawned, skipped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats, s.spawned, s.skipped
}

// Reset restarts the beat count, as when a new song starts.
func (s *Spawner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats, s.spawned, s.skipped = 0, 0, 0
}
