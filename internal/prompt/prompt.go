// Package prompt reads answers from the operator. Every read either returns a
// value, ErrInputClosed or the cancellation error of the bound context; neither
// error is retried.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrInputClosed is returned when the input ends before an answer is read.
var ErrInputClosed = errors.New("input closed before an answer was given")

var (
	labelColor   = color.New(color.FgCyan)
	problemColor = color.New(color.FgRed)
	optionColor  = color.New(color.FgWhite, color.Bold)
)

// Prompt reads lines from an input and writes questions to an output.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
	ctx context.Context

	fd       int
	terminal bool
}

// readPassword is a variable to allow mocking of term.ReadPassword in tests.
var readPassword = term.ReadPassword

// New returns a Prompt reading from in. When in is a terminal, secrets are read
// without echo.
func New(in io.Reader, out io.Writer) *Prompt {
	p := &Prompt{in: bufio.NewReader(in), out: out, ctx: context.Background(), fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.terminal = true
	}
	return p
}

// SetContext binds ctx to the prompt. Once ctx is done, every read returns
// ctx.Err() instead of the answer, so retry loops end.
func (p *Prompt) SetContext(ctx context.Context) {
	p.ctx = ctx
}

func (p *Prompt) ask(label string) {
	labelColor.Fprintf(p.out, "%s: ", label)
}

func (p *Prompt) readLine() (string, error) {
	if err := p.ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if ctxErr := p.ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Line asks once and returns the trimmed answer.
func (p *Prompt) Line(label string) (string, error) {
	p.ask(label)
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret asks once without echo. Leading and trailing spaces are kept.
func (p *Prompt) Secret(label string) (string, error) {
	p.ask(label)
	if !p.terminal {
		return p.readLine()
	}
	if err := p.ctx.Err(); err != nil {
		return "", err
	}
	b, err := readPassword(p.fd)
	fmt.Fprintln(p.out)
	if ctxErr := p.ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return string(b), nil
}

// Problem prints a validation diagnostic.
func (p *Prompt) Problem(format string, a ...any) {
	problemColor.Fprintf(p.out, "  ✖ %s\n", fmt.Sprintf(format, a...))
}

// Field asks until validate accepts the answer, printing each rejection.
func (p *Prompt) Field(label string, validate func(string) error) (string, error) {
	for {
		value, err := p.Line(label)
		if err != nil {
			return "", err
		}
		if err := validate(value); err != nil {
			p.Problem("%v", err)
			continue
		}
		return value, nil
	}
}

// Choice lists options and asks until the answer names one of them or gives
// its 1-based number. The chosen option is returned.
func (p *Prompt) Choice(label string, options []string) (string, error) {
	for i, opt := range options {
		optionColor.Fprintf(p.out, "  %d) ", i+1)
		fmt.Fprintln(p.out, opt)
	}
	for {
		answer, err := p.Line(label)
		if err != nil {
			return "", err
		}
		chosen, err := Pick(answer, options)
		if err != nil {
			p.Problem("%v", err)
			continue
		}
		return chosen, nil
	}
}

// Pick resolves an answer against options by name or 1-based number.
func Pick(answer string, options []string) (string, error) {
	answer = strings.TrimSpace(answer)
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
	}
	for _, opt := range options {
		if strings.EqualFold(answer, opt) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("%q is not one of: %s", answer, strings.Join(options, ", "))
}

// Exact reports whether the answer is exactly literal, with only the line
// ending removed.
func (p *Prompt) Exact(label, literal string) (bool, error) {
	p.ask(label)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	return line == literal, nil
}

// YesNo asks a question defaulting to no. Only "y" and "yes", in any case,
// count as yes.
func (p *Prompt) YesNo(label string) (bool, error) {
	answer, err := p.Line(label + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
