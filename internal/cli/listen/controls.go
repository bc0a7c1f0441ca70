package listen

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Controls reads commands from r, one per line, and applies them to the
// running session:
//
//	track <index> [bpm]                   switch track
//	manual <band> <threshold> <refractory> replace the band configuration
//	status                                print the current configuration
//	quit                                  stop the session
//
// It returns nil at EOF or after quit.
func (s *Session) Controls(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		quit, err := s.command(ctx, fields)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.out.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (s *Session) command(ctx context.Context, fields []string) (bool, error) {
	switch fields[0] {
	case "track", "t":
		if len(fields) < 2 || len(fields) > 3 {
			return false, fmt.Errorf("usage: track <index> [bpm]")
		}
		track, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("track index: %w", err)
		}
		bpm := 0.0
		if len(fields) == 3 {
			if bpm, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return false, fmt.Errorf("bpm: %w", err)
			}
		}
		return false, s.SelectTrack(ctx, track, bpm)

	case "manual", "m":
		if len(fields) != 4 {
			return false, fmt.Errorf("usage: manual <band> <threshold> <refractory>")
		}
		band, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("band: %w", err)
		}
		threshold, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return false, fmt.Errorf("threshold: %w", err)
		}
		refractory, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return false, fmt.Errorf("refractory: %w", err)
		}
		return false, s.driver.ConfigureManual(ctx, band, threshold, refractory)

	case "status", "s":
		cfg := s.detector.Config()
		s.out.printf("band=%d threshold=%.3f refractory=%.3fs bpm=%.1f beats=%d\n",
			cfg.Band, cfg.Threshold, cfg.Refractory, s.detector.CurrentBPM(), s.detector.BeatCount())
		return false, nil

	case "quit", "q":
		return true, s.driver.Stop(ctx)

	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}
