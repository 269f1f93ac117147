// Package vm implements the runtime: call frames, the value stack, and the
// opcode dispatch loop described in spec.md §§4.7-4.8.
package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StackFrame captures one call frame at the moment a runtime error was
// raised: which function it was in and which source line its instruction
// pointer had reached. This keeps a message-plus-call-stack shape
// (name + line, rendered innermost-first) but drops the Smalltalk-specific
// Selector/IP/SourceCol fields nothing in this VM produces.
type StackFrame struct {
	FunctionName string
	Line         int
}

// RuntimeError is a Lox runtime error (spec.md §4.8's "runtime error"
// edge case): a message plus the call stack active when it was raised.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := 0; i < len(e.StackTrace); i++ {
		frame := e.StackTrace[i]
		if frame.FunctionName == "" {
			b.WriteString(fmt.Sprintf("\n[line %d] in script", frame.Line))
		} else {
			b.WriteString(fmt.Sprintf("\n[line %d] in %s()", frame.Line, frame.FunctionName))
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

// wrapf is the errors.Wrap boundary SPEC_FULL.md's ambient-errors section
// calls for: runtime failures that aren't themselves a RuntimeError (a
// native function returning a Go error, say) get tagged with the frame
// they surfaced in before propagating out of Run.
func wrapf(err error, frame string) error {
	return errors.Wrapf(err, "in %s", frame)
}
