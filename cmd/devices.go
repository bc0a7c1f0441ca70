package cmd

import (
	"fmt"

	"github.com/ColonelBlimp/beatdetector/internal/cli/listen"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		devices, err := listen.ListAudioDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no capture devices found")
			return nil
		}
		for _, d := range devices {
			marker := ""
			if d.IsDefault {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s%s\n", d.Index, d.Name, marker)
		}
		return nil
	},
}
