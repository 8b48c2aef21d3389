package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Unbounded may be used as Spec.MaxArgs to accept any number of trailing
// arguments.
const Unbounded = -1

// ActorRestriction limits which kind of actor may run a sub-command.
type ActorRestriction uint8

const (
	// AnyActor allows both interactive actors (players) and non-interactive
	// actors such as the console.
	AnyActor ActorRestriction = iota
	// InteractiveOnly rejects non-interactive actors with ActorMismatch.
	InteractiveOnly
)

// String ...
func (r ActorRestriction) String() string {
	if r == InteractiveOnly {
		return "interactive-only"
	}
	return "any"
}

// Handler runs a sub-command. The value returned is passed back to the caller
// through Outcome.Result when the handler returns a nil error.
type Handler func(ctx Context) (any, error)

// CompletionFunc returns argument suggestions for a partially typed
// sub-command. ctx.Args holds the arguments typed after the sub-command
// token, the last one usually being incomplete.
type CompletionFunc func(ctx Context) []string

// PermissionFunc reports whether an actor holds a permission node.
type PermissionFunc func(node string) bool

var (
	// ErrDuplicateName is returned by Registry.Register when the name or one
	// of the aliases of a Spec is already taken by another Spec.
	ErrDuplicateName = errors.New("sub-command name already registered")
	// ErrInvalidArity is returned by Registry.Register when MinArgs is
	// negative or MaxArgs is lower than MinArgs without being Unbounded.
	ErrInvalidArity = errors.New("invalid sub-command arity")
	// ErrInvalidSpec is returned by Registry.Register for a Spec without a
	// name or handler, or with a negative cooldown.
	ErrInvalidSpec = errors.New("invalid sub-command spec")
)

// Spec describes a sub-command nested under a root command. A Spec is copied
// when registered and must not be changed afterwards through the slices it
// shares with the caller.
type Spec struct {
	// Name is the primary token of the sub-command. It is matched
	// case-insensitively and stored in lower case.
	Name string
	// Aliases are alternative tokens resolving to the same Spec.
	Aliases []string
	// Description is a short, one line explanation shown in help listings.
	Description string
	// Usage is the argument synopsis shown after the sub-command name, for
	// example "<player> [reason]". It may be empty.
	Usage string
	// Permission is the node an actor must hold. An empty Permission disables
	// the permission gate.
	Permission string
	// Restriction limits the kind of actor allowed to run the sub-command.
	Restriction ActorRestriction
	// CooldownSeconds is the per-actor delay between two runs. Zero disables
	// the cooldown gate.
	CooldownSeconds int
	// MinArgs and MaxArgs bound the number of arguments after the sub-command
	// token. MaxArgs may be Unbounded.
	MinArgs, MaxArgs int
	// Handler runs the sub-command.
	Handler Handler
	// Completer, if set, provides argument suggestions.
	Completer CompletionFunc
}

// Tokens returns the lower-cased name of the Spec followed by its aliases.
func (s Spec) Tokens() []string {
	tokens := make([]string, 0, 1+len(s.Aliases))
	tokens = append(tokens, normalise(s.Name))
	for _, alias := range s.Aliases {
		tokens = append(tokens, normalise(alias))
	}
	return tokens
}

// UsageLine returns the full usage of the Spec for the root label passed, such
// as "/pt kick <player>".
func (s Spec) UsageLine(label string) string {
	line := "/" + label + " " + s.Name
	if s.Usage != "" {
		line += " " + s.Usage
	}
	return line
}

// AcceptsArgs reports if n trailing arguments satisfy the arity of the Spec.
func (s Spec) AcceptsArgs(n int) bool {
	if n < s.MinArgs {
		return false
	}
	return s.MaxArgs == Unbounded || n <= s.MaxArgs
}

// validate checks the Spec and returns a normalised copy of it.
func (s Spec) validate() (Spec, error) {
	s.Name = normalise(s.Name)
	if s.Name == "" {
		return s, fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if strings.ContainsAny(s.Name, " \t\n") {
		return s, fmt.Errorf("%w: name %q contains whitespace", ErrInvalidSpec, s.Name)
	}
	if s.Handler == nil {
		return s, fmt.Errorf("%w: %s has no handler", ErrInvalidSpec, s.Name)
	}
	if s.CooldownSeconds < 0 {
		return s, fmt.Errorf("%w: %s has negative cooldown %d", ErrInvalidSpec, s.Name, s.CooldownSeconds)
	}
	if s.MinArgs < 0 {
		return s, fmt.Errorf("%w: %s has negative MinArgs %d", ErrInvalidArity, s.Name, s.MinArgs)
	}
	if s.MaxArgs != Unbounded && s.MaxArgs < s.MinArgs {
		return s, fmt.Errorf("%w: %s has MaxArgs %d below MinArgs %d", ErrInvalidArity, s.Name, s.MaxArgs, s.MinArgs)
	}

	aliases := make([]string, 0, len(s.Aliases))
	seen := map[string]struct{}{s.Name: {}}
	for _, alias := range s.Aliases {
		alias = normalise(alias)
		if alias == "" {
			return s, fmt.Errorf("%w: %s has an empty alias", ErrInvalidSpec, s.Name)
		}
		if _, ok := seen[alias]; ok {
			return s, fmt.Errorf("%w: %s repeats token %q", ErrDuplicateName, s.Name, alias)
		}
		seen[alias] = struct{}{}
		aliases = append(aliases, alias)
	}
	s.Aliases = slices.Clip(aliases)
	return s, nil
}

func normalise(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
