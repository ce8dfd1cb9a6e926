package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"archsetup/internal/log"
)

// streamTailLines bounds how much streamed output is carried in an error.
const streamTailLines = 20

var (
	// execCommand is a variable to allow mocking of exec.CommandContext in tests
	execCommand = exec.CommandContext

	// Stdout and Stderr receive streamed command output.
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
	Stdin  io.Reader = os.Stdin
)

// Output runs a command quietly and returns its combined output. On failure the
// error carries the command line and everything it printed.
var Output = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	log.Debug("exec %s %s", name, strings.Join(args, " "))
	cmd := execCommand(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command failed: %s\n%s", cmd.String(), strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Input runs a command quietly with input on its stdin. The input is never
// logged.
var Input = func(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	log.Debug("exec %s %s (with stdin)", name, strings.Join(args, " "))
	cmd := execCommand(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command failed: %s\n%s", cmd.String(), strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Stream runs a command with its output shown live on the terminal. The output
// is also captured so a failure can report the last lines.
var Stream = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	log.Command(name, args...)
	cmd := execCommand(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdin = Stdin
	cmd.Stdout = io.MultiWriter(Stdout, &buf)
	cmd.Stderr = io.MultiWriter(Stderr, &buf)
	if err := cmd.Run(); err != nil {
		return buf.Bytes(), fmt.Errorf("command failed: %s (%v)\n%s", cmd.String(), err, Tail(buf.String(), streamTailLines))
	}
	return buf.Bytes(), nil
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) string {
	var lines []string
	for line := range strings.SplitSeq(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
