package waiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archsetup/internal/sysinfo"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// pollInterval is shortened in tests.
var pollInterval = 200 * time.Millisecond

// ForBlockDevices polls until every path is a block device or the timeout is
// reached. The kernel creates partition nodes asynchronously after partprobe.
func ForBlockDevices(ctx context.Context, timeout time.Duration, paths ...string) error {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(color.Output))
	s.Suffix = fmt.Sprintf(" Waiting for %s to appear...", strings.Join(paths, ", "))
	s.Start()
	defer s.Stop()

	timeoutChan := time.After(timeout)
	for {
		missing := missingDevices(paths)
		if len(missing) == 0 {
			s.FinalMSG = color.GreenString("✔ %s ready.\n", strings.Join(paths, ", "))
			return nil
		}
		select {
		case <-ctx.Done():
			s.FinalMSG = color.RedString("✖ Interrupted while waiting for partitions.\n")
			return ctx.Err()
		case <-timeoutChan:
			s.FinalMSG = color.RedString("✖ Timed out waiting for %s\n", strings.Join(missing, ", "))
			return fmt.Errorf("timed out after %s waiting for %s", timeout, strings.Join(missing, ", "))
		case <-time.After(pollInterval):
		}
	}
}

func missingDevices(paths []string) []string {
	var missing []string
	for _, p := range paths {
		if !sysinfo.IsBlockDevice(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
