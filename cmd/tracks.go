package cmd

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/ColonelBlimp/beatdetector/internal/beat"
	"github.com/ColonelBlimp/beatdetector/internal/config"
	"github.com/spf13/cobra"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "Show the effective track presets",
	RunE:  runTracks,
}

func runTracks(cmd *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACK\tNAME\tBPM\tBAND\tTHRESHOLD\tREFRACTORY")

	table := settings.TrackTable()
	for _, idx := range slices.Sorted(maps.Keys(table)) {
		preset := table[idx]
		resolved := *settings
		resolved.Track = idx
		bpm := resolved.EffectiveBPM()
		refractory, err := beat.RefractoryForBPM(bpm)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%.1f\t%d\t%.3f\t%.3fs\n",
			idx, settings.TrackName(idx), bpm, preset.Band, preset.Threshold, refractory)
	}
	fmt.Fprintf(w, "other\t-\t-\t%d\t%.3f\t30/bpm\n", settings.DefaultBand, settings.BaseThreshold)

	return w.Flush()
}
