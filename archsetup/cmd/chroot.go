package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"archsetup/internal/config"
	"archsetup/internal/handoff"
	"archsetup/internal/log"
	"archsetup/internal/plan"
	"archsetup/internal/prompt"
	"archsetup/internal/stage"

	"github.com/spf13/cobra"
)

// chrootRoot is the new root as seen by the inner run.
var chrootRoot = "/"

var (
	payloadPath string
	logDir      string
)

var chrootCmd = &cobra.Command{
	Use:    "chroot",
	Short:  "Finishes an install from inside the new root",
	Long:   `Reads the handoff payload and runs the remaining install stages. The install command runs this through arch-chroot; it is not meant to be run by hand.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out := cmd.OutOrStdout()

		payload, err := handoff.Read(filepath.Join(chrootRoot, payloadPath))
		if err != nil {
			return err
		}

		dir := logDir
		if dir == "" {
			s, err := config.Defaults()
			if err != nil {
				return err
			}
			dir = s.LogDir
		}
		closer, err := log.Setup(filepath.Join(chrootRoot, dir), verbosity, payload.Session)
		if err != nil {
			return err
		}
		defer closer.Close()
		defer log.Reset()

		p := prompt.New(cmd.InOrStdin(), out)
		p.SetContext(ctx)
		runner := stage.NewRunner(p.YesNo)
		stages, err := plan.PostHandoff(&plan.Post{
			Root:     chrootRoot,
			Payload:  payload,
			Outcomes: func() []stage.Outcome { return runner.Outcomes },
		})
		if err != nil {
			return err
		}
		log.Debug("post-handoff plan: %s", plan.Names(stages))

		if err := runner.RunAll(ctx, stages); err != nil {
			log.Step("Report (inside the new root)")
			runner.WriteReport(out)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chrootCmd)
	chrootCmd.Flags().StringVar(&payloadPath, "payload", handoff.PayloadPath, "handoff payload to read")
	chrootCmd.Flags().StringVar(&logDir, "log-dir", "", "log directory inside the new root")
}
