package cmd

import (
	"fmt"

	"archsetup/internal/config"
	"archsetup/internal/installcfg"
	"archsetup/internal/sysinfo"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var disksCmd = &cobra.Command{
	Use:   "disks",
	Short: "Lists disks and whether they can be installed to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.New(configPath)
		if err != nil {
			return err
		}
		disks, err := sysinfo.Disks(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing disks: %w", err)
		}
		if len(disks) == 0 {
			color.Yellow("No disks found.")
			return nil
		}
		installcfg.WriteDiskTable(cmd.OutOrStdout(), disks, s.MinDiskBytes())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disksCmd)
}
