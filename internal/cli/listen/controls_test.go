package listen

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ColonelBlimp/beatdetector/internal/beat"
)

// runSession starts Process in the background and returns its result channel
func runSession(t *testing.T, s *Session) (context.Context, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- s.Process(ctx) }()
	return ctx, done
}

func TestControls_AppliesCommandsAndQuits(t *testing.T) {
	s, out := createTestSession(t, testSettings(), nil)
	ctx, done := runSession(t, s)

	input := strings.NewReader(`track 1 150

manual 2 0.4 0.25
bogus
status
quit
track 0
`)
	if err := s.Controls(ctx, input); err != nil {
		t.Fatalf("Controls() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Process() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after quit")
	}

	want := beat.BandConfig{Band: 2, Threshold: 0.4, Refractory: 0.25}
	if got := s.Detector().Config(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}

	output := out.String()
	for _, want := range []string{`unknown command "bogus"`, "band=2 threshold=0.400 refractory=0.250s"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestControls_ReportsBadArguments(t *testing.T) {
	s, out := createTestSession(t, testSettings(), nil)
	ctx, done := runSession(t, s)

	before := s.Detector().Config()
	input := strings.NewReader(`track
track x
track 0 fast
manual 1 0.5
manual 9 0.5 0.2
manual 1 nope 0.2
quit
`)
	if err := s.Controls(ctx, input); err != nil {
		t.Fatalf("Controls() error = %v", err)
	}
	<-done

	if got := s.Detector().Config(); got != before {
		t.Errorf("Config() = %+v, want unchanged %+v", got, before)
	}

	output := out.String()
	for _, want := range []string{
		"usage: track",
		"track index",
		"bpm:",
		"usage: manual",
		"invalid beat detector configuration",
		"threshold:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestControls_EOFLeavesSessionRunning(t *testing.T) {
	s, _ := createTestSession(t, testSettings(), nil)
	ctx, done := runSession(t, s)

	if err := s.Controls(ctx, strings.NewReader("status\n")); err != nil {
		t.Fatalf("Controls() error = %v", err)
	}

	select {
	case <-done:
		t.Fatal("session stopped at end of input")
	case <-time.After(50 * time.Millisecond):
	}

	if err := s.Driver().Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Process() error = %v", err)
	}
}
