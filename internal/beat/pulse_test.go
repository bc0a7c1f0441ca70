package beat

import (
	"testing"
)

func TestNewPulse_DefaultDuration(t *testing.T) {
	p := NewPulse(0)
	if p.duration != DefaultPulseDuration {
		t.Errorf("duration = %v, want %v", p.duration, DefaultPulseDuration)
	}
}

func TestPulse_ActiveWithinDuration(t *testing.T) {
	p := NewPulse(0.2)
	p.OnBeat(Event{Time: 1.0, Band: 3})

	tests := []struct {
		band int
		now  float64
		want bool
	}{
		{3, 1.0, true},
		{3, 1.19, true},
		{3, 1.2, false},
		{3, 2.0, false},
		{2, 1.0, false},
		{-1, 1.0, false},
		{8, 1.0, false},
	}
	for _, tt := range tests {
		if got := p.Active(tt.band, tt.now); got != tt.want {
			t.Errorf("Active(%d, %v) = %v, want %v", tt.band, tt.now, got, tt.want)
		}
	}
}

func TestPulse_NeverMarked(t *testing.T) {
	p := NewPulse(0.2)
	// Zero expiry must not read as active at negative times
	if p.Active(0, -1) {
		t.Error("unmarked band reported active")
	}
}

func TestPulse_Snapshot(t *testing.T) {
	p := NewPulse(0.5)
	p.OnBeat(Event{Time: 1.0, Band: 0})
	p.OnBeat(Event{Time: 1.3, Band: 5})
	p.OnBeat(Event{Time: 1.0, Band: 42}) // ignored

	snap := p.Snapshot(1.6)
	for b, active := range snap {
		want := b == 5
		if active != want {
			t.Errorf("band %d active = %v, want %v", b, active, want)
		}
	}
}

func TestPulse_AsDetectorListener(t *testing.T) {
	d := createTestDetector(t)
	p := NewPulse(0.1)
	d.AddListener(p.OnBeat)

	d.Process(bandFrame(detectorTestBand, 0.9), 2.0)

	if !p.Active(detectorTestBand, 2.05) {
		t.Error("band not marked after detector beat")
	}
}
