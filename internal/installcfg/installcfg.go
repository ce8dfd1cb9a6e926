// Package installcfg defines the answers an install is built from and the rules
// each answer must satisfy.
package installcfg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"archsetup/internal/runner"
	"archsetup/internal/sysinfo"
	"archsetup/internal/util"
)

// Filesystem is the root filesystem type.
type Filesystem string

const (
	Ext4  Filesystem = "ext4"
	Btrfs Filesystem = "btrfs"
	XFS   Filesystem = "xfs"
)

// Filesystems lists the supported filesystems in menu order.
var Filesystems = []Filesystem{Ext4, Btrfs, XFS}

// Bootloader is the UEFI boot manager to install.
type Bootloader string

const (
	SystemdBoot Bootloader = "systemd-boot"
	GRUB        Bootloader = "grub"
)

// Bootloaders lists the supported bootloaders in menu order.
var Bootloaders = []Bootloader{SystemdBoot, GRUB}

// ParseFilesystem accepts only the supported filesystem names.
func ParseFilesystem(s string) (Filesystem, error) {
	for _, fs := range Filesystems {
		if s == string(fs) {
			return fs, nil
		}
	}
	return "", fmt.Errorf("unsupported filesystem %q (choose ext4, btrfs or xfs)", s)
}

// ParseBootloader accepts only the supported bootloader names.
func ParseBootloader(s string) (Bootloader, error) {
	for _, bl := range Bootloaders {
		if s == string(bl) {
			return bl, nil
		}
	}
	return "", fmt.Errorf("unsupported bootloader %q (choose systemd-boot or grub)", s)
}

// Partitions holds the device paths of the two partitions on the target disk.
type Partitions struct {
	EFI  string
	Root string
}

// DerivePartitions names the partitions sgdisk creates on disk. NVMe (and any
// device whose name contains nvme) uses a "p" separator.
func DerivePartitions(disk string) Partitions {
	sep := ""
	if strings.Contains(disk, "nvme") {
		sep = "p"
	}
	return Partitions{
		EFI:  disk + sep + "1",
		Root: disk + sep + "2",
	}
}

// InstallConfig is the validated set of answers. It is built once and only
// read afterwards. Password is plaintext and never leaves this process.
type InstallConfig struct {
	Keymap     string
	Timezone   string
	Locale     string
	Hostname   string
	Username   string
	Password   string
	Filesystem Filesystem
	Bootloader Bootloader
	Disk       string
	Partitions Partitions
}

const (
	minPasswordLength = 6
	// maxPasswordBytes is the longest input bcrypt hashes.
	maxPasswordBytes = 72
)

var (
	localeRe   = regexp.MustCompile(`^[a-z]{2}_[A-Z]{2}\.UTF-8$`)
	hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
)

// ValidateLocale accepts locales of the form en_GB.UTF-8.
func ValidateLocale(s string) error {
	if !localeRe.MatchString(s) {
		return fmt.Errorf("locale %q must look like en_GB.UTF-8", s)
	}
	return nil
}

// ValidateHostname accepts letters, digits and hyphens.
func ValidateHostname(s string) error {
	if !hostnameRe.MatchString(s) {
		return fmt.Errorf("hostname %q may contain only letters, digits and hyphens", s)
	}
	return nil
}

// ValidateUsername accepts lowercase names usable by useradd.
func ValidateUsername(s string) error {
	if !usernameRe.MatchString(s) {
		return fmt.Errorf("username %q must start with a lowercase letter or underscore and contain only lowercase letters, digits, underscores and hyphens", s)
	}
	return nil
}

// ValidateTimezone accepts a zone id only when zoneinfoDir holds a compiled
// zone file for it.
func ValidateTimezone(zoneinfoDir, tz string) error {
	if tz == "" || filepath.IsAbs(tz) || strings.Contains(tz, "..") {
		return fmt.Errorf("unknown timezone %q: expected a zone such as Europe/London", tz)
	}
	path := filepath.Join(zoneinfoDir, tz)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("unknown timezone %q: no entry in %s", tz, zoneinfoDir)
	}
	if !isTZif(path) {
		return fmt.Errorf("unknown timezone %q: %s is not a zone file", tz, path)
	}
	return nil
}

// tzifMagic starts every compiled zone file. Index files such as zone.tab
// live in the same directory but lack it.
var tzifMagic = []byte("TZif")

func isTZif(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, len(tzifMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, tzifMagic)
}

// ValidatePasswordLength rejects passwords shorter than six characters or
// longer than 72 bytes.
func ValidatePasswordLength(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("password is too short: at least %d characters are required", minPasswordLength)
	}
	if len(pw) > maxPasswordBytes {
		return fmt.Errorf("password is too long: at most %d bytes are allowed", maxPasswordBytes)
	}
	return nil
}

// ValidatePassword accepts pw when it is long enough and equals confirm.
func ValidatePassword(pw, confirm string) error {
	if err := ValidatePasswordLength(pw); err != nil {
		return err
	}
	if pw != confirm {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// LoadKeymap validates a keymap by loading it into the console. A successful
// validation leaves the keymap active.
var LoadKeymap = func(ctx context.Context, keymap string) error {
	if keymap == "" || strings.ContainsAny(keymap, " /") {
		return fmt.Errorf("keymap %q is not a keymap name", keymap)
	}
	if _, err := runner.Output(ctx, "loadkeys", keymap); err != nil {
		return fmt.Errorf("keymap %q could not be loaded: %s", keymap, runner.Tail(err.Error(), 1))
	}
	return nil
}

// ValidateDisk accepts a block device of at least minBytes.
func ValidateDisk(ctx context.Context, disk string, minBytes int64) error {
	if !sysinfo.IsBlockDevice(disk) {
		return fmt.Errorf("%s is not a block device", disk)
	}
	size, err := sysinfo.DeviceSize(ctx, disk)
	if err != nil {
		return fmt.Errorf("cannot read the size of %s: %v", disk, err)
	}
	if size < minBytes {
		return fmt.Errorf("%s is %s; at least %s is required", disk, util.FormatSize(size), util.FormatSize(minBytes))
	}
	return nil
}
