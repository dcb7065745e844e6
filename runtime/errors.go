// Package runtime evaluates a parsed *ast.Template against a value.Context
// and renders it to a writer: expression evaluation, scope management,
// inheritance/block resolution, macro calls and the built-in extension
// registries all live here. It never imports the registry package — the
// Resolver interface in resolver.go is the seam the registry implements,
// so templates can resolve each other without a package import cycle.
package runtime

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies a runtime failure the way a host needs to
// distinguish programmatically.
type ErrorKind int

const (
	KindUndefinedVariable ErrorKind = iota
	KindTypeError
	KindArithmeticError
	KindMissingArgument
	KindUnknownArgument
	KindRenderError
	KindUserError
	KindRegistryError
)

func (k ErrorKind) String() string {
	switch k {
	case KindUndefinedVariable:
		return "UndefinedVariable"
	case KindTypeError:
		return "TypeError"
	case KindArithmeticError:
		return "ArithmeticError"
	case KindMissingArgument:
		return "MissingArgument"
	case KindUnknownArgument:
		return "UnknownArgument"
	case KindRenderError:
		return "RenderError"
	case KindUserError:
		return "UserError"
	case KindRegistryError:
		return "RegistryError"
	default:
		return "Error"
	}
}

// Frame is one entry of a render error's source-position stack: one frame
// per include/macro/block transition, outermost first.
type Frame struct {
	Template string
	Line     int
	Column   int
}

func (f Frame) String() string { return fmt.Sprintf("%s:%d:%d", f.Template, f.Line, f.Column) }

// Error is a render-time failure with a kind, message and frame stack.
type Error struct {
	Kind ErrorKind
	// RenderID correlates this error back to the top-level Render/OneOff
	// call that produced it, so a host can tie a log line to the
	// originating request even after the error has been wrapped or logged
	// elsewhere.
	RenderID string
	Message  string
	Frames   []Frame
	Cause    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	for _, f := range e.Frames {
		sb.WriteString("\n\tat ")
		sb.WriteString(f.String())
	}
	if e.RenderID != "" {
		sb.WriteString(" [render ")
		sb.WriteString(e.RenderID)
		sb.WriteString("]")
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds an Error, wrapping cause (if any) with a stack via
// github.com/pkg/errors so the original failure site survives frame-pushing.
func newError(kind ErrorKind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: wrapped}
}

// NewError lets a filter/test/function/macro implementation outside this
// package (builtins, or a host's own registered extension) raise an Error of
// a specific Kind — e.g. KindMissingArgument for a required argument that
// was never supplied — rather than being folded into KindUserError the way
// a plain error from entry.Fn is.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return newError(kind, nil, format, args...)
}

func isUndefinedErr(err error) bool {
	re, ok := err.(*Error)
	return ok && re.Kind == KindUndefinedVariable
}

// pushFrame prepends a source-position frame to err if it is an *Error,
// building the frame stack as evaluation unwinds through include/macro/block
// transitions.
func pushFrame(err error, template string, line, col int) error {
	if err == nil {
		return nil
	}
	if err == errBreak || err == errContinue {
		return err
	}
	re, ok := err.(*Error)
	if !ok {
		re = &Error{Kind: KindRenderError, Message: err.Error(), Cause: err}
	}
	re.Frames = append([]Frame{{Template: template, Line: line, Column: col}}, re.Frames...)
	return re
}
