// Package stage runs an ordered list of install stages, verifying each one and
// deciding from its criticality whether a failure ends the run.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	ierrors "archsetup/internal/errors"
	"archsetup/internal/log"
	"archsetup/internal/probe"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Criticality says what a failed stage does to the run.
type Criticality int

const (
	// Critical failures end the run.
	Critical Criticality = iota
	// Confirmable failures ask the operator whether to continue.
	Confirmable
	// Optional failures are reported as warnings.
	Optional
)

func (c Criticality) String() string {
	switch c {
	case Critical:
		return "critical"
	case Confirmable:
		return "confirmable"
	case Optional:
		return "optional"
	}
	return "unknown"
}

// Check is a postcondition evaluated after a stage's action.
type Check func(ctx context.Context) probe.Result

// Stage is one ordered unit of install work.
type Stage struct {
	Name        string
	Description string
	Criticality Criticality
	Action      func(ctx context.Context) error
	Checks      []Check
	// Stream shows external command output live instead of a spinner.
	Stream bool
}

// Status is the recorded result of a stage.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusContinued Status = "continued"
	StatusWarned    Status = "warned"
)

// Outcome records how one stage ended.
type Outcome struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Duration   time.Duration `json:"duration"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

// Runner executes stages strictly in order.
type Runner struct {
	// Confirm asks whether to continue after a confirmable stage failed.
	Confirm func(question string) (bool, error)
	Out     io.Writer

	Outcomes []Outcome
}

// NewRunner returns a Runner writing progress to the colored console.
func NewRunner(confirm func(question string) (bool, error)) *Runner {
	return &Runner{Confirm: confirm, Out: color.Output}
}

// Run executes the stage action and then its checks, stopping at the first
// failure. It never decides whether the failure is fatal.
func (r *Runner) Run(ctx context.Context, s Stage) probe.Result {
	res, _ := r.run(ctx, s)
	return res
}

func (r *Runner) run(ctx context.Context, s Stage) (probe.Result, error) {
	var sp *spinner.Spinner
	if s.Stream {
		log.Step("%s", s.Description)
	} else {
		sp = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(r.Out))
		sp.Suffix = fmt.Sprintf(" %s...", s.Description)
		sp.Start()
	}

	res, actionErr := execute(ctx, s)

	var final string
	if res.OK {
		final = color.GreenString("✔ %s\n", s.Description)
	} else {
		final = color.RedString("✖ %s: %s\n", s.Description, res.Diagnostic)
	}
	if sp != nil {
		active := sp.Active()
		sp.FinalMSG = final
		sp.Stop()
		if !active {
			fmt.Fprint(r.Out, final)
		}
	} else {
		fmt.Fprint(r.Out, final)
	}
	return res, actionErr
}

func execute(ctx context.Context, s Stage) (probe.Result, error) {
	if err := ctx.Err(); err != nil {
		return probe.Failf(s.Name, "interrupted before the stage started"), err
	}
	if s.Action != nil {
		if err := s.Action(ctx); err != nil {
			_, msg := ierrors.Diagnostic(err)
			return probe.Failf(s.Name, "%s", msg), err
		}
	}
	for _, check := range s.Checks {
		if res := check(ctx); !res.OK {
			return res, nil
		}
	}
	return probe.Pass(s.Name), nil
}

// RunAll runs stages in order. The first critical failure, a declined
// confirmable failure or a logic error returns a fatal error and no later stage
// runs. Optional failures only warn.
func (r *Runner) RunAll(ctx context.Context, stages []Stage) error {
	for _, s := range stages {
		start := time.Now()
		logger := log.Logger("stage")
		logger.Info().Str("stage", s.Name).Str("criticality", s.Criticality.String()).Msg("stage started")

		res, actionErr := r.run(ctx, s)
		outcome := Outcome{Name: s.Name, Status: StatusOK, Duration: time.Since(start).Round(time.Millisecond)}
		if !res.OK {
			outcome.Status = StatusFailed
			outcome.Diagnostic = res.Diagnostic
		}

		if res.OK {
			r.record(outcome)
			continue
		}
		logger.Error().Str("stage", s.Name).Str("check", res.Check).Msg(res.Diagnostic)

		if err := fatalCause(ctx, s, actionErr); err != nil {
			r.record(outcome)
			return err
		}

		switch s.Criticality {
		case Critical:
			r.record(outcome)
			return ierrors.K(ierrors.KindStage, s.Name, errors.New(res.Diagnostic))
		case Confirmable:
			ok, err := r.Confirm(fmt.Sprintf("Stage %s failed. Continue anyway?", s.Name))
			if err != nil || !ok {
				r.record(outcome)
				return ierrors.K(ierrors.KindAborted, s.Name, fmt.Errorf("stopped after failure: %s", res.Diagnostic))
			}
			outcome.Status = StatusContinued
			log.Warn("continuing after %s failed", s.Name)
		case Optional:
			outcome.Status = StatusWarned
			log.Warn("optional stage %s failed: %s", s.Name, res.Diagnostic)
		default:
			r.record(outcome)
			return ierrors.K(ierrors.KindLogic, s.Name, fmt.Errorf("unknown criticality %d", s.Criticality))
		}
		r.record(outcome)
	}
	return nil
}

// fatalCause returns an error that ends the run regardless of criticality:
// cancellation, logic errors and handoff failures.
func fatalCause(ctx context.Context, s Stage, actionErr error) error {
	if actionErr == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(actionErr, context.Canceled) {
		return ierrors.K(ierrors.KindAborted, s.Name, errors.New("interrupted"))
	}
	switch ierrors.KindOf(actionErr) {
	case ierrors.KindLogic, ierrors.KindHandoff, ierrors.KindAborted:
		return ierrors.E(s.Name, actionErr)
	}
	return nil
}

func (r *Runner) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// WriteReport prints the recorded outcomes as a table.
func (r *Runner) WriteReport(w io.Writer) {
	WriteOutcomes(w, r.Outcomes)
}
