// Package preflight checks that the live system can be installed from before
// any question is asked.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"archsetup/internal/config"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/sysinfo"
	"archsetup/internal/util"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	// geteuid is a variable to allow mocking of os.Geteuid in tests
	geteuid = os.Geteuid
	// stdinIsTerminal is a variable to allow mocking in tests
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	// isUEFI is a variable to allow mocking of sysinfo.IsUEFI in tests
	isUEFI = sysinfo.IsUEFI
)

// Check is one precondition.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Checks returns the preconditions in the order they are evaluated.
func Checks(s *config.Settings) []Check {
	return []Check{
		{Name: "root", Run: func(context.Context) error {
			if geteuid() != 0 {
				return errors.New("archsetup must run as root")
			}
			return nil
		}},
		{Name: "uefi", Run: func(context.Context) error {
			if !isUEFI() {
				return fmt.Errorf("the live system did not boot in UEFI mode (%s is missing)", sysinfo.EFIVarsDir)
			}
			return nil
		}},
		{Name: "terminal", Run: func(context.Context) error {
			if !stdinIsTerminal() {
				return errors.New("standard input is not a terminal; the installer is interactive only")
			}
			return nil
		}},
		{Name: "disk", Run: func(ctx context.Context) error {
			disks, err := sysinfo.Disks(ctx)
			if err != nil {
				return fmt.Errorf("cannot list disks: %w", err)
			}
			if len(Eligible(disks, s.MinDiskBytes())) == 0 {
				return fmt.Errorf("no writable disk of at least %s was found", util.FormatSize(s.MinDiskBytes()))
			}
			return nil
		}},
	}
}

// Run evaluates every check in order and stops at the first failure.
func Run(ctx context.Context, s *config.Settings) error {
	sp := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(color.Output))
	sp.Suffix = " Checking preconditions..."
	sp.Start()
	defer sp.Stop()

	for _, c := range Checks(s) {
		if err := c.Run(ctx); err != nil {
			sp.FinalMSG = color.RedString("✖ Precondition %s failed.\n", c.Name)
			return ierrors.K(ierrors.KindPrecondition, c.Name, err)
		}
	}
	sp.FinalMSG = color.GreenString("✔ Preconditions met.\n")
	return nil
}

// Eligible returns the disks an install may target.
func Eligible(disks []sysinfo.Disk, minBytes int64) []sysinfo.Disk {
	var out []sysinfo.Disk
	for _, d := range disks {
		if !d.ReadOnly && d.Size >= minBytes {
			out = append(out, d)
		}
	}
	return out
}
