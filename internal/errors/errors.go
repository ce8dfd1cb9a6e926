package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error so the CLI can print a distinguishing marker.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPrecondition covers checks made before any input is collected.
	KindPrecondition
	// KindStage is a critical stage failure.
	KindStage
	// KindHandoff is a failure of the nested run inside the new root.
	KindHandoff
	// KindAborted is an explicit user abort at a confirmation prompt.
	KindAborted
	// KindLogic is an impossible state, such as an unknown enum value.
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindStage:
		return "stage"
	case KindHandoff:
		return "handoff"
	case KindAborted:
		return "aborted"
	case KindLogic:
		return "logic"
	default:
		return "error"
	}
}

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// K is E with a kind attached.
func K(kind Kind, op string, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// Diagnostic returns the outermost op and the message beneath the directly nested
// *Error values, the one line shown to the user.
func Diagnostic(err error) (string, string) {
	e, ok := err.(*Error)
	if !ok {
		return "", err.Error()
	}
	op := e.Op
	inner := e.Err
	for {
		next, ok := inner.(*Error)
		if !ok {
			break
		}
		if op == "" {
			op = next.Op
		}
		inner = next.Err
	}
	if inner == nil {
		return op, "unknown error"
	}
	return op, inner.Error()
}
