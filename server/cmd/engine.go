package cmd

import (
	"log/slog"
	"time"
)

// Engine dispatches sub-commands resolved through a Registry, gating them on
// permission, actor kind, cooldown and arity. An Engine holds no state of its
// own apart from the Registry and Cooldowns it references and is safe for
// concurrent use.
type Engine struct {
	reg       *Registry
	cooldowns *Cooldowns
	log       *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(e *Engine)

// WithClock replaces the clock used for cooldowns. It is meant for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger handler failures are reported to.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine returns an Engine dispatching commands from reg and tracking
// cooldowns in cooldowns. Either may be nil, in which case a new, empty one is
// created.
func NewEngine(reg *Registry, cooldowns *Cooldowns, opts ...Option) *Engine {
	if reg == nil {
		reg = NewRegistry()
	}
	if cooldowns == nil {
		cooldowns = NewCooldowns()
	}
	e := &Engine{reg: reg, cooldowns: cooldowns, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("subsystem", "cmd")
	return e
}

// Registry returns the Registry of the Engine.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Cooldowns returns the Cooldowns of the Engine.
func (e *Engine) Cooldowns() *Cooldowns {
	return e.cooldowns
}

// Dispatch runs the sub-command named by args[0] on behalf of actor. label is
// the root command label the actor typed and is only used for usage text and
// the handler Context. The gates run in a fixed order: resolution,
// permission, actor restriction, cooldown, arity and finally the handler. The
// cooldown is armed once the cooldown gate passes, so a run rejected for its
// arity or failing in its handler still counts as an attempt.
func (e *Engine) Dispatch(actor Actor, label string, args []string) Outcome {
	if len(args) == 0 {
		return Outcome{Kind: NoSubCommand}
	}
	spec, ok := e.reg.Resolve(args[0])
	if !ok {
		return Outcome{Kind: NoSubCommand}
	}
	if !actor.Allowed(spec.Permission) {
		return Outcome{Kind: PermissionDenied, Command: spec.Name}
	}
	if spec.Restriction == InteractiveOnly && !actor.Interactive {
		return Outcome{Kind: ActorMismatch, Command: spec.Name}
	}
	if spec.CooldownSeconds > 0 {
		now := e.now()
		if e.cooldowns.Active(actor.ID, spec.Name, now) {
			return Outcome{Kind: CooldownActive, Command: spec.Name, Remaining: e.cooldowns.Remaining(actor.ID, spec.Name, now)}
		}
		e.cooldowns.Arm(actor.ID, spec.Name, now, spec.CooldownSeconds)
	}
	rest := args[1:]
	if !spec.AcceptsArgs(len(rest)) {
		return Outcome{
			Kind:    BadArity,
			Command: spec.Name,
			MinArgs: spec.MinArgs,
			MaxArgs: spec.MaxArgs,
			Usage:   spec.UsageLine(label),
		}
	}

	ctx := Context{Actor: actor, Interactive: actor.Interactive, Args: rest, Label: label, Command: spec}
	result, err := e.invoke(spec, ctx)
	if err != nil {
		e.log.Error("Sub-command failed.", "command", spec.Name, "actor", actor.Name, "err", err)
		return Outcome{Kind: HandlerError, Command: spec.Name, Err: err}
	}
	return Outcome{Kind: Success, Command: spec.Name, Result: result}
}

// invoke runs the handler of spec, turning a panic into a *PanicError.
func (e *Engine) invoke(spec Spec, ctx Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Command: spec.Name, Value: r}
		}
	}()
	return spec.Handler(ctx)
}
