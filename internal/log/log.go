// Package log prints installer progress to the terminal and mirrors every line
// into a structured log file.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// FileName is the name of the install log inside the log directory.
const FileName = "archsetup.log"

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	stepColor  = color.New(color.FgCyan, color.Bold)
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	cmdColor   = color.New(color.FgWhite)

	file = zerolog.Nop()
)

// Setup opens <dir>/archsetup.log in append mode and routes the file mirror to it.
// The level follows verbosity: 0 info, 1 debug, 2 and above trace.
func Setup(dir string, verbosity int, session string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.InfoLevel
	switch {
	case verbosity == 1:
		level = zerolog.DebugLevel
	case verbosity >= 2:
		level = zerolog.TraceLevel
	}

	ctx := zerolog.New(f).Level(level).With().Timestamp()
	if session != "" {
		ctx = ctx.Str("session", session)
	}
	file = ctx.Logger()
	file.Debug().Int("verbosity", verbosity).Msg("logger initialized")
	return f, nil
}

// Reset detaches the file mirror.
func Reset() {
	file = zerolog.Nop()
}

// Logger returns the file logger tagged with a component name.
func Logger(component string) zerolog.Logger {
	return file.With().Str("component", component).Logger()
}

// Title prints a title message.
func Title(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	titleColor.Printf("==> %s\n", msg)
	file.Info().Str("kind", "title").Msg(msg)
}

// Step prints a major step in the installation process.
func Step(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	stepColor.Printf("\n==> %s\n", msg)
	file.Info().Str("kind", "step").Msg(msg)
}

// Info prints an informational message.
func Info(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	infoColor.Printf("  -> %s\n", msg)
	file.Info().Msg(msg)
}

// Warn prints a warning message.
func Warn(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	warnColor.Printf("  -> WARNING: %s\n", msg)
	file.Warn().Msg(msg)
}

// Command prints the command being executed.
func Command(name string, args ...string) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	cmdColor.Printf("  -> Running: %s\n", line)
	file.Debug().Str("command", name).Strs("args", args).Msg("running command")
}

// Debug writes to the log file only.
func Debug(format string, a ...any) {
	file.Debug().Msg(fmt.Sprintf(format, a...))
}

// Fatal prints the diagnostic for an error that ends the run. The first line
// of msg goes on the FATAL line; captured command output below it is indented.
func Fatal(kind, op, msg string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	line := first
	if op != "" {
		line = op + ": " + first
	}
	errorColor.Printf("✖ FATAL [%s] %s\n", kind, line)
	for detail := range strings.SplitSeq(rest, "\n") {
		if strings.TrimSpace(detail) != "" {
			cmdColor.Printf("    %s\n", strings.TrimRight(detail, "\r"))
		}
	}
	file.Error().Str("kind", kind).Str("op", op).Msg(msg)
}
