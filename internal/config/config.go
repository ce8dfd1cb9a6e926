package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"archsetup/internal/util"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// AppName is the name of the application
	AppName = "archsetup"
	// DefaultPath is the settings file read when --config is not given.
	DefaultPath = "/etc/archsetup.toml"
	// EnvPrefix prefixes environment overrides. A double underscore separates
	// nested keys, e.g. ARCHSETUP_PACKAGES__DESKTOP.
	EnvPrefix = "ARCHSETUP_"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Packages holds the package sets installed by pacstrap and pacman.
type Packages struct {
	Base    []string `koanf:"base"`
	Desktop []string `koanf:"desktop"`
}

// Settings holds the installer's tunables. They shape how the install runs;
// the answers collected from the user live in installcfg.InstallConfig.
type Settings struct {
	MountRoot        string        `koanf:"mount_root"`
	LogDir           string        `koanf:"log_dir"`
	// ZoneinfoDir is read on the live system only. The new root always links
	// /usr/share/zoneinfo.
	ZoneinfoDir      string        `koanf:"zoneinfo_dir"`
	MinDiskSize      string        `koanf:"min_disk_size"`
	EFISize          string        `koanf:"efi_size"`
	EFIMinMiB        int64         `koanf:"efi_min_mib"`
	EFIMaxMiB        int64         `koanf:"efi_max_mib"`
	PartitionTimeout time.Duration `koanf:"partition_timeout"`
	WallpaperURL     string        `koanf:"wallpaper_url"`
	AURHelper        string        `koanf:"aur_helper"`
	Packages         Packages      `koanf:"packages"`
}

// New loads the embedded defaults, then the settings file at path, then the
// environment. A missing file at DefaultPath is not an error; a missing file
// anywhere else is.
var New = func(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var s Settings
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &s,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &s, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if _, err := util.ParseSize(s.MinDiskSize); err != nil {
		return fmt.Errorf("min_disk_size: %w", err)
	}
	efiBytes, err := util.ParseSize(s.EFISize)
	if err != nil {
		return fmt.Errorf("efi_size: %w", err)
	}
	if s.EFIMinMiB <= 0 || s.EFIMaxMiB < s.EFIMinMiB {
		return fmt.Errorf("efi bounds [%d, %d] MiB are not a valid range", s.EFIMinMiB, s.EFIMaxMiB)
	}
	if efiMiB := efiBytes >> 20; efiMiB < s.EFIMinMiB || efiMiB > s.EFIMaxMiB {
		return fmt.Errorf("efi_size %s is outside [%d, %d] MiB", s.EFISize, s.EFIMinMiB, s.EFIMaxMiB)
	}
	if !strings.HasPrefix(s.MountRoot, "/") {
		return fmt.Errorf("mount_root %q must be an absolute path", s.MountRoot)
	}
	if s.PartitionTimeout <= 0 {
		return fmt.Errorf("partition_timeout must be positive")
	}
	if len(s.Packages.Base) == 0 {
		return fmt.Errorf("packages.base must not be empty")
	}
	return nil
}

// MinDiskBytes returns min_disk_size in bytes. An unparsable value yields zero;
// New rejects those.
func (s *Settings) MinDiskBytes() int64 {
	n, _ := util.ParseSize(s.MinDiskSize)
	return n
}

// EFISgdiskSize renders efi_size for sgdisk's +<size> syntax.
func (s *Settings) EFISgdiskSize() string {
	n, _ := util.ParseSize(s.EFISize)
	return fmt.Sprintf("%dM", n>>20)
}

// Defaults returns the embedded settings plus environment overrides, reading no
// settings file.
func Defaults() (*Settings, error) {
	return New(os.DevNull)
}
