// Package runnertest replaces runner.Output and runner.Stream with a recorder so
// tests can assert which external commands ran without touching the host.
package runnertest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"archsetup/internal/runner"
)

// Call is one recorded invocation.
type Call struct {
	Name     string
	Args     []string
	Streamed bool
	Stdin    string
}

// Line returns the command line as a single string.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type failure struct {
	output string
}

// Recorder records calls and answers them from canned responses. A key matches a
// call when the call's command line starts with the key on a word boundary; the
// longest matching key wins.
type Recorder struct {
	Calls []Call

	outputs  map[string]string
	failures map[string]failure
	hooks    map[string]func(args []string) error
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{
		outputs:  map[string]string{},
		failures: map[string]failure{},
		hooks:    map[string]func(args []string) error{},
	}
}

// Install swaps runner.Output, runner.Input and runner.Stream for the recorder
// until the test ends.
func (r *Recorder) Install(t testing.TB) *Recorder {
	t.Helper()
	originalOutput, originalInput, originalStream := runner.Output, runner.Input, runner.Stream
	t.Cleanup(func() {
		runner.Output, runner.Input, runner.Stream = originalOutput, originalInput, originalStream
	})
	runner.Output = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return r.call(ctx, Call{Name: name, Args: append([]string(nil), args...)})
	}
	runner.Input = func(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
		return r.call(ctx, Call{Name: name, Args: append([]string(nil), args...), Stdin: input})
	}
	runner.Stream = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return r.call(ctx, Call{Name: name, Args: append([]string(nil), args...), Streamed: true})
	}
	return r
}

// Respond sets the output returned for matching calls.
func (r *Recorder) Respond(key, output string) *Recorder {
	r.outputs[key] = output
	return r
}

// Fail makes matching calls fail with the given output.
func (r *Recorder) Fail(key, output string) *Recorder {
	r.failures[key] = failure{output: output}
	return r
}

// OnCall runs fn for matching calls, so a fake can leave side effects behind.
func (r *Recorder) OnCall(key string, fn func(args []string) error) *Recorder {
	r.hooks[key] = fn
	return r
}

// Ran reports whether any call matched key.
func (r *Recorder) Ran(key string) bool {
	for _, c := range r.Calls {
		if matches(c.Line(), key) {
			return true
		}
	}
	return false
}

// Lines returns every recorded command line in order.
func (r *Recorder) Lines() []string {
	lines := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		lines = append(lines, c.Line())
	}
	return lines
}

func (r *Recorder) call(ctx context.Context, c Call) ([]byte, error) {
	r.Calls = append(r.Calls, c)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line := c.Line()

	if key, ok := longest(r.hooks, line); ok {
		if err := r.hooks[key](c.Args); err != nil {
			return nil, err
		}
	}
	if key, ok := longest(r.failures, line); ok {
		out := r.failures[key].output
		return []byte(out), errors.New("command failed: " + line + "\n" + out)
	}
	if key, ok := longest(r.outputs, line); ok {
		return []byte(r.outputs[key]), nil
	}
	return nil, nil
}

func longest[V any](m map[string]V, line string) (string, bool) {
	best, found := "", false
	for key := range m {
		if matches(line, key) && len(key) >= len(best) {
			best, found = key, true
		}
	}
	return best, found
}

func matches(line, key string) bool {
	return strings.HasPrefix(line+" ", key+" ")
}
