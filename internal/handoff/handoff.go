// Package handoff carries the install configuration across the chroot
// boundary. The outer process writes a payload and a copy of its own binary
// into the new root, then runs that binary inside it with arch-chroot.
package handoff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/installcfg"
	"archsetup/internal/log"
	"archsetup/internal/runner"
	"archsetup/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Version is bumped whenever a payload key is added, removed or changes meaning.
const Version = 1

const (
	// PayloadPath is where the payload lives, as seen from inside the new root.
	PayloadPath = "/root/archsetup/handoff.yaml"
	// BinaryPath is where the installer copies itself inside the new root.
	BinaryPath = "/usr/local/bin/archsetup"
)

var (
	// executable is a variable to allow mocking of os.Executable in tests
	executable = os.Executable
	// hashCost is lowered in tests.
	hashCost = bcrypt.DefaultCost
)

// Payload is every value the inner run reads. Nothing else crosses the
// boundary; the inner process inherits no environment from the outer one.
type Payload struct {
	Version         int      `yaml:"version"`
	Session         string   `yaml:"session"`
	Timezone        string   `yaml:"timezone"`
	Locale          string   `yaml:"locale"`
	Keymap          string   `yaml:"keymap"`
	Hostname        string   `yaml:"hostname"`
	Username        string   `yaml:"username"`
	PasswordHash    string   `yaml:"password_hash"`
	Bootloader      string   `yaml:"bootloader"`
	Filesystem      string   `yaml:"filesystem"`
	Disk            string   `yaml:"disk"`
	EFIPartition    string   `yaml:"efi_partition"`
	RootPartition   string   `yaml:"root_partition"`
	RootUUID        string   `yaml:"root_uuid"`
	DesktopPackages []string `yaml:"desktop_packages"`
	AURHelper       string   `yaml:"aur_helper"`
	WallpaperURL    string   `yaml:"wallpaper_url"`
}

// requiredKeys must be present in every payload. aur_helper and wallpaper_url
// may be empty but must still be present.
var requiredKeys = []string{
	"version", "session", "timezone", "locale", "keymap", "hostname", "username",
	"password_hash", "bootloader", "filesystem", "disk", "efi_partition",
	"root_partition", "root_uuid", "desktop_packages", "aur_helper", "wallpaper_url",
}

// New builds the payload for cfg. The password is replaced by its bcrypt hash.
func New(cfg installcfg.InstallConfig, rootUUID, session string, s *config.Settings) (*Payload, error) {
	if err := installcfg.ValidatePasswordLength(cfg.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	p := &Payload{
		Version:         Version,
		Session:         session,
		Timezone:        cfg.Timezone,
		Locale:          cfg.Locale,
		Keymap:          cfg.Keymap,
		Hostname:        cfg.Hostname,
		Username:        cfg.Username,
		PasswordHash:    string(hash),
		Bootloader:      string(cfg.Bootloader),
		Filesystem:      string(cfg.Filesystem),
		Disk:            cfg.Disk,
		EFIPartition:    cfg.Partitions.EFI,
		RootPartition:   cfg.Partitions.Root,
		RootUUID:        rootUUID,
		DesktopPackages: append([]string{}, s.Packages.Desktop...),
		AURHelper:       s.AURHelper,
		WallpaperURL:    s.WallpaperURL,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every required value is set and every enum is known.
func (p *Payload) Validate() error {
	if p.Version != Version {
		return fmt.Errorf("payload version %d is not supported (want %d)", p.Version, Version)
	}
	values := map[string]string{
		"session":        p.Session,
		"timezone":       p.Timezone,
		"locale":         p.Locale,
		"keymap":         p.Keymap,
		"hostname":       p.Hostname,
		"username":       p.Username,
		"password_hash":  p.PasswordHash,
		"disk":           p.Disk,
		"efi_partition":  p.EFIPartition,
		"root_partition": p.RootPartition,
		"root_uuid":      p.RootUUID,
	}
	var empty []string
	for key, v := range values {
		if v == "" {
			empty = append(empty, key)
		}
	}
	if len(empty) > 0 {
		sort.Strings(empty)
		return fmt.Errorf("payload values are empty: %v", empty)
	}
	if _, err := installcfg.ParseFilesystem(p.Filesystem); err != nil {
		return err
	}
	if _, err := installcfg.ParseBootloader(p.Bootloader); err != nil {
		return err
	}
	return nil
}

// Config returns the InstallConfig carried by the payload. Password is empty;
// the inner run only ever sees PasswordHash.
func (p *Payload) Config() installcfg.InstallConfig {
	return installcfg.InstallConfig{
		Keymap:     p.Keymap,
		Timezone:   p.Timezone,
		Locale:     p.Locale,
		Hostname:   p.Hostname,
		Username:   p.Username,
		Filesystem: installcfg.Filesystem(p.Filesystem),
		Bootloader: installcfg.Bootloader(p.Bootloader),
		Disk:       p.Disk,
		Partitions: installcfg.Partitions{EFI: p.EFIPartition, Root: p.RootPartition},
	}
}

// Write places the payload (0600) and a copy of the running binary (0755)
// below root.
func Write(root string, p *Payload) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", fmt.Errorf("failed to encode payload: %w", err))
	}
	payload := filepath.Join(root, PayloadPath)
	if err := os.MkdirAll(filepath.Dir(payload), 0700); err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", err)
	}
	if err := os.WriteFile(payload, data, 0600); err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", err)
	}

	exe, err := executable()
	if err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", fmt.Errorf("cannot locate the running binary: %w", err))
	}
	bin := filepath.Join(root, BinaryPath)
	if err := os.MkdirAll(filepath.Dir(bin), 0755); err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", err)
	}
	if err := util.CopyFile(exe, bin, 0755); err != nil {
		return ierrors.K(ierrors.KindHandoff, "handoff-write", fmt.Errorf("failed to copy %s into the new root: %w", exe, err))
	}
	log.Debug("payload written to %s, binary copied to %s", payload, bin)
	return nil
}

// Read decodes and validates a payload. Unknown keys and missing required keys
// are errors.
func Read(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ierrors.K(ierrors.KindHandoff, "handoff-read", err)
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, ierrors.K(ierrors.KindHandoff, "handoff-read", fmt.Errorf("payload is not valid YAML: %w", err))
	}
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := keys[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, ierrors.K(ierrors.KindHandoff, "handoff-read", fmt.Errorf("payload is missing keys: %v", missing))
	}

	var p Payload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, ierrors.K(ierrors.KindHandoff, "handoff-read", fmt.Errorf("payload does not match the schema: %w", err))
	}
	if err := p.Validate(); err != nil {
		return nil, ierrors.K(ierrors.KindHandoff, "handoff-read", err)
	}
	return &p, nil
}

// Invoke runs the copied binary inside root. The inner run shares the terminal.
// Any failure inside is reported as one handoff error.
func Invoke(ctx context.Context, root string, extraArgs ...string) error {
	args := []string{root, BinaryPath, "chroot", "--payload", PayloadPath}
	args = append(args, extraArgs...)
	if _, err := runner.Stream(ctx, "arch-chroot", args...); err != nil {
		return ierrors.K(ierrors.KindHandoff, "chroot", fmt.Errorf("the install inside %s failed: %w", root, err))
	}
	return nil
}

// Remove deletes the payload directory below root. The copied binary stays.
func Remove(root string) error {
	dir := filepath.Join(root, filepath.Dir(PayloadPath))
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// VerifyPartitions re-derives the partition names from the disk and compares
// them with the ones carried across. A mismatch means the two sides disagree
// about which devices to touch.
func (p *Payload) VerifyPartitions() error {
	want := installcfg.DerivePartitions(p.Disk)
	got := installcfg.Partitions{EFI: p.EFIPartition, Root: p.RootPartition}
	if want != got {
		return ierrors.K(ierrors.KindHandoff, "handoff-verify", fmt.Errorf("partitions carried across (%s, %s) differ from the ones derived from %s (%s, %s)",
			got.EFI, got.Root, p.Disk, want.EFI, want.Root))
	}
	return nil
}
