// Package probe verifies that an action had its intended effect. Probes only
// observe; whether a failed probe ends the run is decided by the stage runner.
package probe

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"archsetup/internal/runner"
	"archsetup/internal/sysinfo"
)

// Result is the outcome of one check.
type Result struct {
	OK         bool
	Check      string
	Diagnostic string
}

// Pass returns a successful result.
func Pass(check string) Result {
	return Result{OK: true, Check: check}
}

// Failf returns a failed result with a formatted diagnostic.
func Failf(check, format string, a ...any) Result {
	return Result{Check: check, Diagnostic: fmt.Sprintf(format, a...)}
}

// Kind is the type of filesystem object Exists looks for.
type Kind int

const (
	File Kind = iota
	Dir
	BlockDevice
	Symlink
)

func (k Kind) String() string {
	switch k {
	case File:
		return "regular file"
	case Dir:
		return "directory"
	case BlockDevice:
		return "block device"
	case Symlink:
		return "symlink"
	}
	return "object"
}

// Exists checks that path exists and is of the given kind.
func Exists(path string, kind Kind) Result {
	check := fmt.Sprintf("%s is a %s", path, kind)
	if kind == BlockDevice {
		if sysinfo.IsBlockDevice(path) {
			return Pass(check)
		}
		return Failf(check, "%s is not a block device", path)
	}

	var (
		info os.FileInfo
		err  error
	)
	if kind == Symlink {
		info, err = os.Lstat(path)
	} else {
		info, err = os.Stat(path)
	}
	if err != nil {
		return Failf(check, "%s does not exist", path)
	}

	var ok bool
	switch kind {
	case File:
		ok = info.Mode().IsRegular()
	case Dir:
		ok = info.IsDir()
	case Symlink:
		ok = info.Mode()&os.ModeSymlink != 0
	}
	if !ok {
		return Failf(check, "%s exists but is not a %s", path, kind)
	}
	return Pass(check)
}

// Unit scales byte counts for Bounds.
type Unit struct {
	Name  string
	Bytes int64
}

var (
	MiB = Unit{Name: "MiB", Bytes: 1 << 20}
	GiB = Unit{Name: "GiB", Bytes: 1 << 30}
)

// Bounds checks that measured bytes, converted to whole units, lies within
// [min, max] inclusive. A max of zero means no upper bound.
func Bounds(what string, measured, min, max int64, unit Unit) Result {
	value := measured / unit.Bytes
	check := fmt.Sprintf("%s size in range", what)
	if max > 0 {
		check = fmt.Sprintf("%s size within [%d, %d] %s", what, min, max, unit.Name)
	}
	if value < min || (max > 0 && value > max) {
		if max > 0 {
			return Failf(check, "%s is %d %s, expected between %d and %d %s", what, value, unit.Name, min, max, unit.Name)
		}
		return Failf(check, "%s is %d %s, expected at least %d %s", what, value, unit.Name, min, unit.Name)
	}
	return Pass(check)
}

// CommandSucceeds checks that a command exits zero. The diagnostic carries
// whatever the command printed.
func CommandSucceeds(ctx context.Context, name string, args ...string) Result {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	check := fmt.Sprintf("%s succeeds", line)
	if _, err := runner.Output(ctx, name, args...); err != nil {
		return Failf(check, "%v", err)
	}
	return Pass(check)
}

// Listed checks that every token appears as a whitespace-separated word in the
// output of a command.
func Listed(ctx context.Context, tokens []string, name string, args ...string) Result {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	check := fmt.Sprintf("%s lists %s", line, strings.Join(tokens, ", "))
	output, err := runner.Output(ctx, name, args...)
	if err != nil {
		return Failf(check, "%v", err)
	}

	found := strings.Fields(string(output))
	var missing []string
	for _, token := range tokens {
		if !slices.Contains(found, token) {
			missing = append(missing, token)
		}
	}
	if len(missing) > 0 {
		shown := strings.Join(found, " ")
		if len(found) > 20 {
			shown = strings.Join(found[:20], " ") + " ..."
		}
		if shown == "" {
			shown = "nothing"
		}
		return Failf(check, "missing %s (found %s)", strings.Join(missing, ", "), shown)
	}
	return Pass(check)
}

// FileContains checks that the file at path contains substr.
func FileContains(path, substr string) Result {
	check := fmt.Sprintf("%s mentions %s", path, substr)
	data, err := os.ReadFile(path)
	if err != nil {
		return Failf(check, "cannot read %s: %v", path, err)
	}
	if !strings.Contains(string(data), substr) {
		return Failf(check, "%s does not contain %q", path, substr)
	}
	return Pass(check)
}
