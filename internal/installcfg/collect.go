package installcfg

import (
	"context"
	"errors"
	"fmt"
	"io"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/log"
	"archsetup/internal/prompt"
	"archsetup/internal/sysinfo"
	"archsetup/internal/util"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Collector asks for every InstallConfig field in turn and returns only once
// all of them are valid.
type Collector struct {
	Prompt   *prompt.Prompt
	Settings *config.Settings
	Out      io.Writer
}

// Collect runs the questionnaire. The only errors it returns are aborts: the
// input closed or the context was cancelled. The prompt stays bound to ctx.
func (c *Collector) Collect(ctx context.Context) (InstallConfig, error) {
	var cfg InstallConfig
	var err error
	c.Prompt.SetContext(ctx)

	field := func(label string, validate func(string) error) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = c.Prompt.Field(label, validate)
		return v
	}

	log.Step("Installation settings")
	cfg.Keymap = field("Console keymap (e.g. us, uk, de-latin1)", func(s string) error {
		return LoadKeymap(ctx, s)
	})
	cfg.Timezone = field("Timezone (e.g. Europe/London)", func(s string) error {
		return ValidateTimezone(c.Settings.ZoneinfoDir, s)
	})
	cfg.Locale = field("Locale (e.g. en_GB.UTF-8)", ValidateLocale)
	cfg.Hostname = field("Hostname", ValidateHostname)
	cfg.Username = field("Username", ValidateUsername)
	if err == nil {
		cfg.Password, err = c.password()
	}
	if err == nil {
		var fs string
		fs, err = c.Prompt.Choice("Root filesystem", toStrings(Filesystems))
		cfg.Filesystem = Filesystem(fs)
	}
	if err == nil {
		var bl string
		bl, err = c.Prompt.Choice("Bootloader", toStrings(Bootloaders))
		cfg.Bootloader = Bootloader(bl)
	}
	if err == nil {
		c.listDisks(ctx)
	}
	cfg.Disk = field("Target disk (e.g. /dev/sda, /dev/nvme0n1)", func(s string) error {
		return ValidateDisk(ctx, s, c.Settings.MinDiskBytes())
	})

	if err != nil {
		return InstallConfig{}, abort("collect", err)
	}
	cfg.Partitions = DerivePartitions(cfg.Disk)
	return cfg, nil
}

func (c *Collector) password() (string, error) {
	for {
		pw, err := c.Prompt.Secret("Password for the user and root")
		if err != nil {
			return "", err
		}
		if err := ValidatePasswordLength(pw); err != nil {
			c.Prompt.Problem("%v", err)
			continue
		}
		confirm, err := c.Prompt.Secret("Confirm password")
		if err != nil {
			return "", err
		}
		if err := ValidatePassword(pw, confirm); err != nil {
			c.Prompt.Problem("%v", err)
			continue
		}
		return pw, nil
	}
}

func (c *Collector) listDisks(ctx context.Context) {
	disks, err := sysinfo.Disks(ctx)
	if err != nil {
		log.Warn("could not list disks: %v", err)
		return
	}
	WriteDiskTable(c.Out, disks, c.Settings.MinDiskBytes())
}

// WriteDiskTable prints candidate disks with their eligibility.
func WriteDiskTable(w io.Writer, disks []sysinfo.Disk, minBytes int64) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"DISK", "SIZE", "MODEL", "ELIGIBLE"})
	for _, d := range disks {
		eligible := color.GreenString("yes")
		switch {
		case d.ReadOnly:
			eligible = color.RedString("no (read-only)")
		case d.Size < minBytes:
			eligible = color.RedString("no (< %s)", util.FormatSize(minBytes))
		}
		table.Append([]string{d.Path, util.FormatSize(d.Size), d.Model, eligible})
	}
	table.Render()
}

// WriteSummary prints the collected answers. The password is never shown.
func WriteSummary(w io.Writer, cfg InstallConfig) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"SETTING", "VALUE"})
	rows := [][]string{
		{"Keymap", cfg.Keymap},
		{"Timezone", cfg.Timezone},
		{"Locale", cfg.Locale},
		{"Hostname", cfg.Hostname},
		{"Username", cfg.Username},
		{"Filesystem", string(cfg.Filesystem)},
		{"Bootloader", string(cfg.Bootloader)},
		{"Disk", cfg.Disk},
		{"EFI partition", cfg.Partitions.EFI},
		{"Root partition", cfg.Partitions.Root},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// ConfirmDestructive asks for the literal YES. Anything else aborts.
func ConfirmDestructive(p *prompt.Prompt, cfg InstallConfig) error {
	log.Warn("every partition and all data on %s will be destroyed", cfg.Disk)
	ok, err := p.Exact(fmt.Sprintf("Type YES to erase %s and install", cfg.Disk), "YES")
	if err != nil {
		return abort("confirm", err)
	}
	if !ok {
		return ierrors.K(ierrors.KindAborted, "confirm", errors.New("installation aborted: confirmation was not YES; no changes were made"))
	}
	return nil
}

func abort(op string, err error) error {
	if errors.Is(err, prompt.ErrInputClosed) {
		return ierrors.K(ierrors.KindAborted, op, errors.New("input closed; no changes were made"))
	}
	if errors.Is(err, context.Canceled) {
		return ierrors.K(ierrors.KindAborted, op, errors.New("interrupted; no changes were made"))
	}
	return ierrors.K(ierrors.KindAborted, op, err)
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
