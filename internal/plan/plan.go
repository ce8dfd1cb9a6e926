// Package plan turns an install configuration into the ordered stage lists run
// on the live system and inside the new root.
package plan

import (
	"context"
	"fmt"
	"path/filepath"

	"archsetup/internal/artifacts"
	ierrors "archsetup/internal/errors"
	"archsetup/internal/installcfg"
	"archsetup/internal/probe"
	"archsetup/internal/runner"
	"archsetup/internal/stage"
	"archsetup/internal/sysinfo"
)

// Derived holds values discovered by pre-handoff stages.
type Derived struct {
	RootUUID string
}

// run executes a command and keeps only its error.
func run(ctx context.Context, name string, args ...string) error {
	_, err := runner.Output(ctx, name, args...)
	return err
}

// runAll executes commands in order, stopping at the first failure.
func runAll(ctx context.Context, cmds ...[]string) error {
	for _, c := range cmds {
		if err := run(ctx, c[0], c[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// writeFiles renders and writes artifacts below root.
func writeFiles(root string, v artifacts.Values, renderers ...func(artifacts.Values) (artifacts.File, error)) error {
	for _, render := range renderers {
		f, err := render(v)
		if err != nil {
			return err
		}
		if err := artifacts.Write(root, f); err != nil {
			return err
		}
	}
	return nil
}

func unknownFilesystem(fs installcfg.Filesystem) error {
	return ierrors.K(ierrors.KindLogic, "plan", fmt.Errorf("no stages for filesystem %q", fs))
}

func unknownBootloader(bl installcfg.Bootloader) error {
	return ierrors.K(ierrors.KindLogic, "plan", fmt.Errorf("no stages for bootloader %q", bl))
}

func exists(path string, kind probe.Kind) stage.Check {
	return func(ctx context.Context) probe.Result { return probe.Exists(path, kind) }
}

func succeeds(name string, args ...string) stage.Check {
	return func(ctx context.Context) probe.Result { return probe.CommandSucceeds(ctx, name, args...) }
}

func listed(tokens []string, name string, args ...string) stage.Check {
	return func(ctx context.Context) probe.Result { return probe.Listed(ctx, tokens, name, args...) }
}

// formatted checks that blkid reports want as the filesystem type of dev.
func formatted(dev, want string) stage.Check {
	return func(ctx context.Context) probe.Result {
		check := fmt.Sprintf("%s is formatted as %s", dev, want)
		got, err := sysinfo.FSType(ctx, dev)
		if err != nil {
			return probe.Failf(check, "%v", err)
		}
		if got != want {
			return probe.Failf(check, "%s is formatted as %s, expected %s", dev, got, want)
		}
		return probe.Pass(check)
	}
}

func contains(path, substr string) stage.Check {
	return func(ctx context.Context) probe.Result { return probe.FileContains(path, substr) }
}

func under(root string, parts ...string) string {
	return filepath.Join(append([]string{root}, parts...)...)
}
