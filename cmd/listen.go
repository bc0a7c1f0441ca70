package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ColonelBlimp/beatdetector/internal/cli/listen"
	"github.com/ColonelBlimp/beatdetector/internal/config"
	"github.com/ColonelBlimp/beatdetector/internal/logging"
	"github.com/ColonelBlimp/beatdetector/internal/recovery"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Detect beats from the audio input",
	Long: `Capture audio from the selected device and print every detected beat and
spawned obstacle. Commands read from stdin while listening:

  track <index> [bpm]                     switch track
  manual <band> <threshold> <refractory>  set the band configuration
  status                                  show the current configuration
  quit                                    stop`,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	log := logging.NewDefaultLogger()
	if settings.Debug {
		log.SetLevel(logging.DebugLevel)
	}

	session, err := listen.NewSession(settings, cmd.OutOrStdout(), log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readControls(ctx, stop, session.Controls, cmd.InOrStdin(), log)

	return session.Run(ctx)
}

// readControls feeds in to controls. A panic while handling a command
// releases the signal context before the process exits.
func readControls(ctx context.Context, stop context.CancelFunc, controls func(context.Context, io.Reader) error, in io.Reader, log logging.Logger) {
	defer recovery.HandlePanicFunc(stop)

	if err := controls(ctx, in); err != nil && ctx.Err() == nil {
		log.Error(err, "reading commands failed")
	}
}
