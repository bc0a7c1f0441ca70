package beat

import (
	"sync"
)

// DefaultPulseDuration is how long a band stays marked after a beat.
const DefaultPulseDuration = 0.2

// Pulse tracks which bands had a beat recently. Register OnBeat as a
// listener and query Active with the same clock the detector is driven by.
type Pulse struct {
	duration float64

	mu      sync.Mutex
	expires [BandCount]float64
	marked  [BandCount]bool
}

// NewPulse returns a Pulse keeping bands active for duration seconds.
// Non-positive durations use DefaultPulseDuration.
func NewPulse(duration float64) *Pulse {
	if duration <= 0 {
		duration = DefaultPulseDuration
	}
	return &Pulse{duration: duration}
}

// OnBeat marks the event's band. Its signature matches Listener.
func (p *Pulse) OnBeat(ev Event) {
	if ev.Band < 0 || ev.Band >= BandCount {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marked[ev.Band] = true
	p.expires[ev.Band] = ev.Time + p.duration
}

// Active reports whether band had a beat within the pulse duration before now.
func (p *Pulse) Active(band int, now float64) bool {
	if band < 0 || band >= BandCount {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marked[band] && now < p.expires[band]
}

// Snapshot returns the active flag of every band at now.
func (p *Pulse) Snapshot(now float64) [BandCount]bool {
	var out [BandCount]bool
	p.mu.Lock()
	defer p.mu.Unlock()
	for b := range out {
		out[b] = p.marked[b] && now < p.expires[b]
	}
	return out
}
