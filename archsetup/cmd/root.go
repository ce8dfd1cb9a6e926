package cmd

import (
	"os"

	ierrors "archsetup/internal/errors"
	"archsetup/internal/log"

	"github.com/spf13/cobra"
)

var (
	verbosity  int
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "archsetup",
	Short: "archsetup installs an Arch Linux Hyprland desktop from the live ISO",
	// SilenceErrors is used to prevent cobra from printing the error,
	// as we handle it ourselves in the Execute function.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Print the help message if no subcommand is provided
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "raise the log file level (-v debug, -vv trace)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default /etc/archsetup.toml)")
}

// Execute runs the root command. Any error ends the process with one FATAL
// line and exit status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		op, msg := ierrors.Diagnostic(err)
		log.Fatal(ierrors.KindOf(err).String(), op, msg)
		os.Exit(1)
	}
}
