// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/ColonelBlimp/beatdetector/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "beatdetector",
	Short: "Real-time beat detector for rhythm games",
	Long: `A real-time beat detector that splits the live audio spectrum into eight
bands and fires a beat when the selected band rises above its threshold.
Running without a sub-command is the same as "beatdetector listen".`,
	SilenceUsage: true,
	RunE:         runListen,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().IntP("track", "t", 0, "track index to configure")
	rootCmd.PersistentFlags().Float64P("bpm", "b", 0, "tempo override (0 uses the track's bpm)")
	rootCmd.PersistentFlags().Float64("threshold", 0.3, "threshold for tracks without a preset")
	rootCmd.PersistentFlags().DurationP("length", "l", 0, "stop after this long (0 runs until interrupted)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("track", rootCmd.PersistentFlags().Lookup("track"))
	viper.BindPFlag("bpm", rootCmd.PersistentFlags().Lookup("bpm"))
	viper.BindPFlag("base_threshold", rootCmd.PersistentFlags().Lookup("threshold"))
	viper.BindPFlag("song_length", rootCmd.PersistentFlags().Lookup("length"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(listenCmd, tracksCmd, devicesCmd)
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
