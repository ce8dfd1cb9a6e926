package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"archsetup/internal/artifacts"
	"archsetup/internal/downloader"
	"archsetup/internal/handoff"
	"archsetup/internal/installcfg"
	"archsetup/internal/probe"
	"archsetup/internal/receipt"
	"archsetup/internal/runner"
	"archsetup/internal/stage"
)

// Post is everything the stages inside the new root read. All values come from
// the handoff payload.
type Post struct {
	// Root is "/" inside arch-chroot.
	Root     string
	Payload  *handoff.Payload
	Outcomes func() []stage.Outcome
}

// ZoneinfoDir is where tzdata lives inside the new root. The zoneinfo_dir
// setting only points timezone validation at the live system's copy.
const ZoneinfoDir = "/usr/share/zoneinfo"

// services are enabled for the first boot. ufw is installed but left disabled.
var services = []string{"greetd", "tlp", "fstrim.timer"}

func (env *Post) values() artifacts.Values {
	p := env.Payload
	return artifacts.Values{
		Hostname: p.Hostname,
		Username: p.Username,
		Keymap:   p.Keymap,
		Locale:   p.Locale,
		RootUUID: p.RootUUID,
		Btrfs:    p.Filesystem == string(installcfg.Btrfs),
	}
}

// PostHandoff returns the stages run inside the new root.
func PostHandoff(env *Post) ([]stage.Stage, error) {
	p, root := env.Payload, env.Root
	v := env.values()
	user := p.Username
	home := artifacts.HomeDir(user)

	bootloader, err := bootloaderStage(env)
	if err != nil {
		return nil, err
	}

	return []stage.Stage{
		{
			Name:        "verify-payload",
			Description: "Checking the carried-over partition layout",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return p.VerifyPartitions()
			},
		},
		{
			Name:        "timezone",
			Description: fmt.Sprintf("Setting the timezone to %s", p.Timezone),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				localtime := under(root, "etc", "localtime")
				if err := os.MkdirAll(filepath.Dir(localtime), 0755); err != nil {
					return err
				}
				if err := os.Remove(localtime); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				if err := os.Symlink(path.Join(ZoneinfoDir, p.Timezone), localtime); err != nil {
					return err
				}
				return run(ctx, "hwclock", "--systohc")
			},
			Checks: []stage.Check{exists(under(root, "etc", "localtime"), probe.Symlink)},
		},
		{
			Name:        "locale",
			Description: fmt.Sprintf("Generating the %s locale", p.Locale),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				if err := enableLocale(under(root, "etc", "locale.gen"), p.Locale); err != nil {
					return err
				}
				if err := run(ctx, "locale-gen"); err != nil {
					return err
				}
				return writeFiles(root, v, artifacts.LocaleConf)
			},
			Checks: []stage.Check{contains(under(root, "etc", "locale.conf"), "LANG="+p.Locale)},
		},
		{
			Name:        "console",
			Description: "Configuring the console keymap",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return writeFiles(root, v, artifacts.VconsoleConf)
			},
			Checks: []stage.Check{contains(under(root, "etc", "vconsole.conf"), "KEYMAP="+p.Keymap)},
		},
		{
			Name:        "hostname",
			Description: fmt.Sprintf("Setting the hostname to %s", p.Hostname),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return writeFiles(root, v, artifacts.Hostname, artifacts.Hosts)
			},
			Checks: []stage.Check{contains(under(root, "etc", "hostname"), p.Hostname)},
		},
		{
			Name:        "initramfs",
			Description: "Building the initramfs",
			Criticality: stage.Critical,
			Stream:      true,
			Action: func(ctx context.Context) error {
				_, err := runner.Stream(ctx, "mkinitcpio", "-P")
				return err
			},
		},
		{
			Name:        "users",
			Description: fmt.Sprintf("Creating the user %s", user),
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				if err := run(ctx, "useradd", "-m", "-G", "wheel", "-s", "/bin/bash", user); err != nil {
					return err
				}
				input := fmt.Sprintf("%s:%s\nroot:%s\n", user, p.PasswordHash, p.PasswordHash)
				if _, err := runner.Input(ctx, input, "chpasswd", "-e"); err != nil {
					return err
				}
				return writeFiles(root, v, artifacts.Sudoers)
			},
			Checks: []stage.Check{
				succeeds("id", "-u", user),
				exists(under(root, "etc", "sudoers.d", "10-wheel"), probe.File),
			},
		},
		bootloader,
		{
			Name:        "desktop-packages",
			Description: "Installing the desktop packages",
			Criticality: stage.Confirmable,
			Stream:      true,
			Action: func(ctx context.Context) error {
				if len(p.DesktopPackages) == 0 {
					return nil
				}
				args := append([]string{"-S", "--needed", "--noconfirm"}, p.DesktopPackages...)
				_, err := runner.Stream(ctx, "pacman", args...)
				return err
			},
			Checks: []stage.Check{func(ctx context.Context) probe.Result {
				if len(p.DesktopPackages) == 0 {
					return probe.Pass("no desktop packages requested")
				}
				return probe.Listed(ctx, p.DesktopPackages, "pacman", "-Qq")
			}},
		},
		{
			Name:        "network",
			Description: "Configuring NetworkManager with iwd",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				if err := writeFiles(root, v, artifacts.NetworkManagerIwd); err != nil {
					return err
				}
				return run(ctx, "systemctl", "enable", "NetworkManager")
			},
			Checks: []stage.Check{succeeds("systemctl", "is-enabled", "NetworkManager")},
		},
		{
			Name:        "zram",
			Description: "Configuring zram swap",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return writeFiles(root, v, artifacts.ZramGenerator)
			},
			Checks: []stage.Check{exists(under(root, "etc", "systemd", "zram-generator.conf"), probe.File)},
		},
		{
			Name:        "firewall",
			Description: "Writing firewall defaults (left disabled)",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return writeFiles(root, v, artifacts.UFWDefaults)
			},
			Checks: []stage.Check{contains(under(root, "etc", "default", "ufw"), `DEFAULT_INPUT_POLICY="DROP"`)},
		},
		{
			Name:        "greeter",
			Description: "Configuring greetd",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return writeFiles(root, v, artifacts.GreetdConfig)
			},
			Checks: []stage.Check{contains(under(root, "etc", "greetd", "config.toml"), "Hyprland")},
		},
		{
			Name:        "services",
			Description: "Enabling services",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return run(ctx, "systemctl", append([]string{"enable"}, services...)...)
			},
			Checks: []stage.Check{succeeds("systemctl", append([]string{"is-enabled"}, services...)...)},
		},
		{
			Name:        "desktop-config",
			Description: "Writing Hyprland, Waybar and hyprpaper configuration",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				files, err := artifacts.DesktopFiles(v)
				if err != nil {
					return err
				}
				for _, f := range files {
					if err := artifacts.Write(root, f); err != nil {
						return err
					}
				}
				return chownHome(ctx, root, user, ".config")
			},
			Checks: []stage.Check{exists(under(root, home, ".config", "hypr", "hyprland.conf"), probe.File)},
		},
		wallpaperStage(env, v),
		aurHelperStage(env),
		{
			Name:        "receipt",
			Description: "Writing the install receipt",
			Criticality: stage.Critical,
			Action: func(ctx context.Context) error {
				return receipt.Save(root, receipt.Receipt{
					Session:    p.Session,
					Finished:   time.Now().UTC(),
					Hostname:   p.Hostname,
					Username:   p.Username,
					Disk:       p.Disk,
					Filesystem: p.Filesystem,
					Bootloader: p.Bootloader,
					RootUUID:   p.RootUUID,
					Packages:   p.DesktopPackages,
					Stages:     env.outcomes(),
				})
			},
			Checks: []stage.Check{exists(under(root, receipt.Path), probe.File)},
		},
	}, nil
}

func (env *Post) outcomes() []stage.Outcome {
	if env.Outcomes == nil {
		return nil
	}
	return env.Outcomes()
}

func bootloaderStage(env *Post) (stage.Stage, error) {
	p, root := env.Payload, env.Root
	v := env.values()
	st := stage.Stage{
		Name:        "bootloader",
		Description: fmt.Sprintf("Installing %s", p.Bootloader),
		Criticality: stage.Critical,
	}
	switch installcfg.Bootloader(p.Bootloader) {
	case installcfg.SystemdBoot:
		st.Action = func(ctx context.Context) error {
			if err := run(ctx, "bootctl", "install", "--esp-path=/boot"); err != nil {
				return err
			}
			return writeFiles(root, v, artifacts.LoaderConf, artifacts.ArchEntry)
		}
		st.Checks = []stage.Check{
			exists(under(root, "boot", "EFI", "systemd", "systemd-bootx64.efi"), probe.File),
			contains(under(root, "boot", "loader", "entries", "arch.conf"), "root=UUID="+p.RootUUID),
		}
	case installcfg.GRUB:
		st.Action = func(ctx context.Context) error {
			return runAll(ctx,
				[]string{"grub-install", "--target=x86_64-efi", "--efi-directory=/boot", "--bootloader-id=GRUB"},
				[]string{"grub-mkconfig", "-o", "/boot/grub/grub.cfg"},
			)
		}
		st.Checks = []stage.Check{
			exists(under(root, "boot", "EFI", "GRUB", "grubx64.efi"), probe.File),
			exists(under(root, "boot", "grub", "grub.cfg"), probe.File),
		}
	default:
		return stage.Stage{}, unknownBootloader(installcfg.Bootloader(p.Bootloader))
	}
	return st, nil
}

func wallpaperStage(env *Post, v artifacts.Values) stage.Stage {
	p, root := env.Payload, env.Root
	ext := path.Ext(p.WallpaperURL)
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	wallpaper := path.Join(artifacts.HomeDir(p.Username), ".local", "share", "backgrounds", "wallpaper"+ext)

	return stage.Stage{
		Name:        "wallpaper",
		Description: "Downloading the wallpaper",
		Criticality: stage.Optional,
		Action: func(ctx context.Context) error {
			if p.WallpaperURL == "" {
				return nil
			}
			if err := downloader.Image(ctx, under(root, wallpaper), p.WallpaperURL); err != nil {
				return err
			}
			v.WallpaperPath = "/" + wallpaper
			if err := writeFiles(root, v, artifacts.HyprpaperConf); err != nil {
				return err
			}
			return chownHome(ctx, root, p.Username, ".local", ".config")
		},
		Checks: []stage.Check{func(ctx context.Context) probe.Result {
			if p.WallpaperURL == "" {
				return probe.Pass("no wallpaper configured")
			}
			return probe.Exists(under(root, wallpaper), probe.File)
		}},
	}
}

func aurHelperStage(env *Post) stage.Stage {
	p, root := env.Payload, env.Root
	helper, user := p.AURHelper, p.Username
	dir := under(root, artifacts.HomeDir(user), ".cache", "archsetup", helper)

	return stage.Stage{
		Name:        "aur-helper",
		Description: fmt.Sprintf("Building the AUR helper %s", helper),
		Criticality: stage.Optional,
		Action: func(ctx context.Context) error {
			if helper == "" {
				return nil
			}
			err := runAll(ctx,
				[]string{"runuser", "-u", user, "--", "git", "clone", "--depth", "1", "https://aur.archlinux.org/" + helper + ".git", dir},
				[]string{"runuser", "-u", user, "--", "bash", "-c", `cd "$1" && makepkg --noconfirm`, "makepkg", dir},
			)
			if err != nil {
				return err
			}
			pkgs, err := builtPackages(dir)
			if err != nil {
				return err
			}
			return run(ctx, "pacman", append([]string{"-U", "--noconfirm"}, pkgs...)...)
		},
		Checks: []stage.Check{func(ctx context.Context) probe.Result {
			if helper == "" {
				return probe.Pass("no AUR helper configured")
			}
			return probe.CommandSucceeds(ctx, "pacman", "-Q", helper)
		}},
	}
}

// builtPackages finds the packages makepkg left in dir, skipping debug splits.
func builtPackages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pkg.tar.zst"))
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, m := range matches {
		if !strings.Contains(filepath.Base(m), "-debug-") {
			pkgs = append(pkgs, m)
		}
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("makepkg left no package in %s", dir)
	}
	return pkgs, nil
}

// chownHome hands the named entries of the user's home directory to the user.
func chownHome(ctx context.Context, root, user string, entries ...string) error {
	args := []string{"-R", user + ":" + user}
	for _, e := range entries {
		args = append(args, under(root, artifacts.HomeDir(user), e))
	}
	return run(ctx, "chown", args...)
}

// enableLocale uncomments the locale's line in locale.gen, appending it when
// the file lacks one.
func enableLocale(localeGen, locale string) error {
	entry := locale + " UTF-8"
	data, err := os.ReadFile(localeGen)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	found := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if trimmed == entry {
			lines[i] = entry
			found = true
		}
	}
	if !found {
		lines = append(lines, entry)
	}
	out := strings.TrimLeft(strings.Join(lines, "\n"), "\n") + "\n"

	if err := os.MkdirAll(filepath.Dir(localeGen), 0755); err != nil {
		return err
	}
	return os.WriteFile(localeGen, []byte(out), 0644)
}
