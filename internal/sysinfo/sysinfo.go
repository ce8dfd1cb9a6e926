// Package sysinfo answers questions about the host: block devices, their sizes
// and filesystem identifiers, and the boot mode.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"archsetup/internal/runner"
)

// EFIVarsDir exists only when the live system booted in UEFI mode.
var EFIVarsDir = "/sys/firmware/efi/efivars"

// Disk is one whole-disk block device reported by lsblk.
type Disk struct {
	Path     string
	Size     int64
	ReadOnly bool
	Model    string
}

// IsBlockDevice reports whether path is a block device node.
var IsBlockDevice = func(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	mode := info.Mode()
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
}

// DeviceSize returns the size of a disk or partition in bytes.
var DeviceSize = func(ctx context.Context, device string) (int64, error) {
	output, err := runner.Output(ctx, "lsblk", "-b", "-d", "-n", "-o", "SIZE", device)
	if err != nil {
		return 0, err
	}
	sizeStr := strings.TrimSpace(string(output))
	if sizeStr == "" {
		return 0, fmt.Errorf("no output from lsblk for device %s", device)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected lsblk size %q for %s", sizeStr, device)
	}
	return size, nil
}

// UUID returns the filesystem UUID of a partition.
func UUID(ctx context.Context, device string) (string, error) {
	return blkid(ctx, "UUID", device)
}

// FSType returns the filesystem type of a partition, e.g. "vfat" or "btrfs".
func FSType(ctx context.Context, device string) (string, error) {
	return blkid(ctx, "TYPE", device)
}

func blkid(ctx context.Context, tag, device string) (string, error) {
	output, err := runner.Output(ctx, "blkid", "-s", tag, "-o", "value", device)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(output))
	if value == "" {
		return "", fmt.Errorf("blkid reported no %s for %s", tag, device)
	}
	return value, nil
}

// Disks lists whole disks, skipping loop devices, partitions and optical drives.
var Disks = func(ctx context.Context) ([]Disk, error) {
	output, err := runner.Output(ctx, "lsblk", "-b", "-d", "-n", "-p", "-o", "NAME,SIZE,TYPE,RO,MODEL")
	if err != nil {
		return nil, err
	}
	return parseDisks(string(output)), nil
}

func parseDisks(output string) []Disk {
	var disks []Disk
	for line := range strings.SplitSeq(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "disk" {
			continue
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		disks = append(disks, Disk{
			Path:     fields[0],
			Size:     size,
			ReadOnly: fields[3] == "1",
			Model:    strings.Join(fields[4:], " "),
		})
	}
	return disks
}

// IsUEFI reports whether the live system booted in UEFI mode.
func IsUEFI() bool {
	info, err := os.Stat(EFIVarsDir)
	return err == nil && info.IsDir()
}
