package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"archsetup/internal/config"
	"archsetup/internal/handoff"
	"archsetup/internal/installcfg"
	"archsetup/internal/log"
	"archsetup/internal/probe"
	"archsetup/internal/runner"
	"archsetup/internal/stage"
	"archsetup/internal/sysinfo"
	"archsetup/internal/waiter"
)

// RootLabel is the filesystem label given to the root partition.
const RootLabel = "archroot"

// Pre is everything the live-system stages read. Stages write only Derived.
type Pre struct {
	Config   installcfg.InstallConfig
	Settings *config.Settings
	Session  string
	// InnerArgs are appended to the inner run's command line.
	InnerArgs []string
	Derived   Derived
}

type subvolume struct {
	name       string
	mountpoint string
}

// btrfsSubvolumes are created on the root filesystem and mounted in order.
var btrfsSubvolumes = []subvolume{
	{"@", ""},
	{"@home", "home"},
	{"@log", "var/log"},
	{"@pkg", "var/cache/pacman/pkg"},
	{"@snapshots", ".snapshots"},
}

const btrfsMountOptions = "compress=zstd,noatime"

// PacstrapPackages returns the base set plus the tools the chosen filesystem
// and bootloader need.
func PacstrapPackages(cfg installcfg.InstallConfig, s *config.Settings) ([]string, error) {
	pkgs := append([]string{}, s.Packages.Base...)
	switch cfg.Filesystem {
	case installcfg.Ext4:
		pkgs = append(pkgs, "e2fsprogs")
	case installcfg.Btrfs:
		pkgs = append(pkgs, "btrfs-progs")
	case installcfg.XFS:
		pkgs = append(pkgs, "xfsprogs")
	default:
		return nil, unknownFilesystem(cfg.Filesystem)
	}
	switch cfg.Bootloader {
	case installcfg.SystemdBoot:
	case installcfg.GRUB:
		pkgs = append(pkgs, "grub", "efibootmgr")
	default:
		return nil, unknownBootloader(cfg.Bootloader)
	}
	return pkgs, nil
}

// PreHandoff returns the stages run on the live system, ending with the
// handoff into the new root.
func PreHandoff(env *Pre) ([]stage.Stage, error) {
	cfg, s := env.Config, env.Settings
	disk, parts, mnt := cfg.Disk, cfg.Partitions, s.MountRoot

	formatRoot, err := formatRootStage(cfg)
	if err != nil {
		return nil, err
	}
	mountRoot, err := mountRootStage(cfg, mnt)
	if err != nil {
		return nil, err
	}
	pkgs, err := PacstrapPackages(cfg, s)
	if err != nil {
		return nil, err
	}

	fstab := under(mnt, "etc", "fstab")

	return []stage.Stage{
		{
			Name:        "sync-clock",
			Description: "Enabling network time",
			Criticality: stage.Optional,
			Action: func(ctx context.Context) error {
				return run(ctx, "timedatectl", "set-ntp", "true")
			},
		},
		{
			Name:        "wipe-disk",
			Description: fmt.Sprintf("Wiping %s", disk),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return runAll(ctx,
					[]string{"wipefs", "-af", disk},
					[]string{"sgdisk", "--zap-all", disk},
				)
			},
		},
		{
			Name:        "partition",
			Description: fmt.Sprintf("Partitioning %s", disk),
			Criticality: stage.Critical,
			Stream:      true,
			Action: func(ctx context.Context) error {
				err := runAll(ctx,
					[]string{"sgdisk",
						"-n", "1:0:+" + s.EFISgdiskSize(), "-t", "1:ef00", "-c", "1:EFI",
						"-n", "2:0:0", "-t", "2:8300", "-c", "2:root",
						disk},
					[]string{"partprobe", disk},
				)
				if err != nil {
					return err
				}
				return waiter.ForBlockDevices(ctx, s.PartitionTimeout, parts.EFI, parts.Root)
			},
			Checks: []stage.Check{
				exists(parts.EFI, probe.BlockDevice),
				exists(parts.Root, probe.BlockDevice),
				func(ctx context.Context) probe.Result {
					size, err := sysinfo.DeviceSize(ctx, parts.EFI)
					if err != nil {
						return probe.Failf("EFI partition size", "cannot measure %s: %v", parts.EFI, err)
					}
					return probe.Bounds("EFI partition", size, s.EFIMinMiB, s.EFIMaxMiB, probe.MiB)
				},
			},
		},
		{
			Name:        "format-efi",
			Description: fmt.Sprintf("Formatting %s as FAT32", parts.EFI),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return run(ctx, "mkfs.fat", "-F", "32", "-n", "EFI", parts.EFI)
			},
			Checks: []stage.Check{formatted(parts.EFI, "vfat")},
		},
		formatRoot,
		mountRoot,
		{
			Name:        "mount-efi",
			Description: "Mounting the EFI partition",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				if err := os.MkdirAll(under(mnt, "boot"), 0755); err != nil {
					return err
				}
				return run(ctx, "mount", parts.EFI, under(mnt, "boot"))
			},
			Checks: []stage.Check{succeeds("findmnt", under(mnt, "boot"))},
		},
		{
			Name:        "read-root-uuid",
			Description: "Reading the root filesystem UUID",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				uuid, err := sysinfo.UUID(ctx, parts.Root)
				if err != nil {
					return err
				}
				env.Derived.RootUUID = uuid
				return nil
			},
			Checks: []stage.Check{func(ctx context.Context) probe.Result {
				if env.Derived.RootUUID == "" {
					return probe.Failf("root UUID", "no UUID was read from %s", parts.Root)
				}
				return probe.Pass("root UUID")
			}},
		},
		{
			Name:        "pacstrap",
			Description: "Installing the base system",
			Criticality: stage.Critical,
			Stream:      true,
			Action: func(ctx context.Context) error {
				_, err := runner.Stream(ctx, "pacstrap", append([]string{"-K", mnt}, pkgs...)...)
				return err
			},
			Checks: []stage.Check{listed([]string{"base", "linux"}, "pacman", "--root", mnt, "-Qq")},
		},
		{
			Name:        "fstab",
			Description: "Generating /etc/fstab",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				out, err := runner.Output(ctx, "genfstab", "-U", mnt)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(fstab), 0755); err != nil {
					return err
				}
				return os.WriteFile(fstab, out, 0644)
			},
			Checks: []stage.Check{func(ctx context.Context) probe.Result {
				return probe.FileContains(fstab, "UUID="+env.Derived.RootUUID)
			}},
		},
		{
			Name:        "handoff",
			Description: "Continuing inside the new system",
			Criticality: stage.Critical,
			Stream:      true,
			Action: func(ctx context.Context) error {
				return handOff(ctx, env)
			},
		},
	}, nil
}

func handOff(ctx context.Context, env *Pre) error {
	mnt := env.Settings.MountRoot
	p, err := handoff.New(env.Config, env.Derived.RootUUID, env.Session, env.Settings)
	if err != nil {
		return err
	}
	if err := handoff.Write(mnt, p); err != nil {
		return err
	}
	defer func() {
		if err := handoff.Remove(mnt); err != nil {
			log.Warn("could not remove the handoff payload: %v", err)
		}
	}()
	return handoff.Invoke(ctx, mnt, env.InnerArgs...)
}

func formatRootStage(cfg installcfg.InstallConfig) (stage.Stage, error) {
	root := cfg.Partitions.Root
	var cmd []string
	switch cfg.Filesystem {
	case installcfg.Ext4:
		cmd = []string{"mkfs.ext4", "-F", "-L", RootLabel, root}
	case installcfg.Btrfs:
		cmd = []string{"mkfs.btrfs", "-f", "-L", RootLabel, root}
	case installcfg.XFS:
		cmd = []string{"mkfs.xfs", "-f", "-L", RootLabel, root}
	default:
		return stage.Stage{}, unknownFilesystem(cfg.Filesystem)
	}
	return stage.Stage{
		Name:        "format-root",
		Description: fmt.Sprintf("Formatting %s as %s", root, cfg.Filesystem),
		Criticality: stage.Critical,
		Action: func(ctx context.Context) error {
			return run(ctx, cmd[0], cmd[1:]...)
		},
		Checks: []stage.Check{formatted(root, string(cfg.Filesystem))},
	}, nil
}

func mountRootStage(cfg installcfg.InstallConfig, mnt string) (stage.Stage, error) {
	root := cfg.Partitions.Root
	st := stage.Stage{
		Name:        "mount-root",
		Description: fmt.Sprintf("Mounting %s on %s", root, mnt),
		Criticality: stage.Critical,
		Checks:      []stage.Check{succeeds("findmnt", mnt)},
	}
	switch cfg.Filesystem {
	case installcfg.Ext4, installcfg.XFS:
		st.Action = func(ctx context.Context) error {
			if err := os.MkdirAll(mnt, 0755); err != nil {
				return err
			}
			return run(ctx, "mount", "-o", "noatime", root, mnt)
		}
	case installcfg.Btrfs:
		st.Action = func(ctx context.Context) error {
			return mountBtrfs(ctx, root, mnt)
		}
		for _, sv := range btrfsSubvolumes[1:] {
			st.Checks = append(st.Checks, succeeds("findmnt", under(mnt, sv.mountpoint)))
		}
	default:
		return stage.Stage{}, unknownFilesystem(cfg.Filesystem)
	}
	return st, nil
}

// mountBtrfs creates the subvolumes on a freshly formatted filesystem and
// mounts each one at its place below mnt.
func mountBtrfs(ctx context.Context, device, mnt string) error {
	if err := os.MkdirAll(mnt, 0755); err != nil {
		return err
	}
	if err := run(ctx, "mount", device, mnt); err != nil {
		return err
	}
	for _, sv := range btrfsSubvolumes {
		if err := run(ctx, "btrfs", "subvolume", "create", under(mnt, sv.name)); err != nil {
			return errors.Join(err, run(ctx, "umount", mnt))
		}
	}
	if err := run(ctx, "umount", mnt); err != nil {
		return err
	}
	for _, sv := range btrfsSubvolumes {
		target := under(mnt, sv.mountpoint)
		if err := os.MkdirAll(target, 0755); err != nil {
			return err
		}
		opts := btrfsMountOptions + ",subvol=" + sv.name
		if err := run(ctx, "mount", "-o", opts, device, target); err != nil {
			return err
		}
	}
	return nil
}

// Names lists the stage names of a plan, for display.
func Names(stages []stage.Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
