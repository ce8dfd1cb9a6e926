package cmd

import (
	"fmt"
	"strconv"

	"archsetup/internal/config"
	"archsetup/internal/handoff"
	"archsetup/internal/installcfg"
	"archsetup/internal/plan"
	"archsetup/internal/stage"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	planFilesystem string
	planBootloader string
	planDisk       string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Prints the ordered install stages for a filesystem and bootloader",
	Long:  `Prints every stage the install would run, in order, without touching the system.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := installcfg.ParseFilesystem(planFilesystem)
		if err != nil {
			return err
		}
		bl, err := installcfg.ParseBootloader(planBootloader)
		if err != nil {
			return err
		}
		s, err := config.New(configPath)
		if err != nil {
			return err
		}

		cfg := installcfg.InstallConfig{
			Username:   "user",
			Filesystem: fs,
			Bootloader: bl,
			Disk:       planDisk,
			Partitions: installcfg.DerivePartitions(planDisk),
		}
		pre, err := plan.PreHandoff(&plan.Pre{Config: cfg, Settings: s})
		if err != nil {
			return err
		}
		post, err := plan.PostHandoff(&plan.Post{Root: "/", Payload: &handoff.Payload{
			Username:        cfg.Username,
			Filesystem:      string(fs),
			Bootloader:      string(bl),
			Disk:            cfg.Disk,
			EFIPartition:    cfg.Partitions.EFI,
			RootPartition:   cfg.Partitions.Root,
			DesktopPackages: s.Packages.Desktop,
			AURHelper:       s.AURHelper,
			WallpaperURL:    s.WallpaperURL,
		}})
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header([]string{"#", "WHERE", "STAGE", "ON FAILURE", "DESCRIPTION"})
		n := 0
		add := func(where string, stages []stage.Stage) {
			for _, st := range stages {
				n++
				table.Append([]string{strconv.Itoa(n), where, st.Name, onFailure(st.Criticality), st.Description})
			}
		}
		add("live", pre)
		add("new root", post)
		table.Render()
		fmt.Fprintf(cmd.OutOrStdout(), "%d stages\n", n)
		return nil
	},
}

func onFailure(c stage.Criticality) string {
	switch c {
	case stage.Critical:
		return color.RedString("stop")
	case stage.Confirmable:
		return color.YellowString("ask")
	default:
		return "warn"
	}
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planFilesystem, "filesystem", string(installcfg.Ext4), "root filesystem (ext4, btrfs, xfs)")
	planCmd.Flags().StringVar(&planBootloader, "bootloader", string(installcfg.SystemdBoot), "bootloader (systemd-boot, grub)")
	planCmd.Flags().StringVar(&planDisk, "disk", "/dev/sda", "target disk shown in descriptions")
}
