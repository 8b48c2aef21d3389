package cmd

import (
	"fmt"
)

// Kind is the result category of a dispatch.
type Kind uint8

const (
	// NoSubCommand means no arguments were passed or the first argument did
	// not resolve to a sub-command. The caller decides what to do, usually
	// showing a welcome or usage text.
	NoSubCommand Kind = iota
	// Success means the handler ran and returned no error.
	Success
	// PermissionDenied means the actor lacks the permission of the
	// sub-command.
	PermissionDenied
	// ActorMismatch means a non-interactive actor ran an interactive-only
	// sub-command.
	ActorMismatch
	// CooldownActive means the actor ran the sub-command too recently.
	CooldownActive
	// BadArity means the number of arguments was outside the accepted range.
	BadArity
	// HandlerError means the handler returned an error or panicked.
	HandlerError
)

var kindNames = [...]string{
	NoSubCommand:     "no_sub_command",
	Success:          "success",
	PermissionDenied: "permission_denied",
	ActorMismatch:    "actor_mismatch",
	CooldownActive:   "cooldown_active",
	BadArity:         "bad_arity",
	HandlerError:     "handler_error",
}

// String returns the stable lower-case name of the Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Outcome is the result of Engine.Dispatch. Only the fields relevant to Kind
// are set.
type Outcome struct {
	Kind Kind
	// Command is the name of the resolved sub-command. It is empty for
	// NoSubCommand.
	Command string
	// Remaining is the number of seconds left on the cooldown for
	// CooldownActive.
	Remaining int
	// MinArgs, MaxArgs and Usage describe the accepted arguments for
	// BadArity.
	MinArgs, MaxArgs int
	Usage            string
	// Result is the value returned by the handler for Success.
	Result any
	// Err is the handler error, or a *PanicError, for HandlerError.
	Err error
}

// OK reports if the Outcome is Success.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Command string
	Value   any
}

// Error ...
func (e *PanicError) Error() string {
	return fmt.Sprintf("sub-command %s panicked: %v", e.Command, e.Value)
}

// Unwrap returns the recovered value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
