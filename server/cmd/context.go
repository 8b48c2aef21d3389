package cmd

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Actor is whoever runs a sub-command: a player or the console.
type Actor struct {
	// ID identifies the actor. Cooldowns are tracked per ID.
	ID uuid.UUID
	// Name is the display name of the actor.
	Name string
	// Interactive is true for players and false for the console and other
	// automated callers.
	Interactive bool
	// Permission reports if the actor holds a node. A nil Permission denies
	// every node.
	Permission PermissionFunc
}

// Allowed reports if the actor holds node. An empty node is always allowed.
func (a Actor) Allowed(node string) bool {
	if node == "" {
		return true
	}
	return a.Permission != nil && a.Permission(node)
}

// Context is passed to handlers and completers. Args holds the arguments
// after the sub-command token.
type Context struct {
	Actor       Actor
	Interactive bool
	Args        []string
	// Label is the root command label the actor typed.
	Label string
	// Command is the resolved sub-command.
	Command Spec
}

// Len returns the number of arguments.
func (ctx Context) Len() int {
	return len(ctx.Args)
}

// Arg returns argument i, or an empty string if there are not enough
// arguments.
func (ctx Context) Arg(i int) string {
	return ctx.ArgOr(i, "")
}

// ArgOr returns argument i, or def if there are not enough arguments.
func (ctx Context) ArgOr(i int, def string) string {
	if i < 0 || i >= len(ctx.Args) {
		return def
	}
	return ctx.Args[i]
}

// Int parses argument i as an integer, returning def if it is missing or
// malformed.
func (ctx Context) Int(i, def int) int {
	v, err := strconv.Atoi(ctx.Arg(i))
	if err != nil {
		return def
	}
	return v
}

// Float parses argument i as a float, returning def if it is missing or
// malformed.
func (ctx Context) Float(i int, def float64) float64 {
	v, err := strconv.ParseFloat(ctx.Arg(i), 64)
	if err != nil {
		return def
	}
	return v
}

// Bool reads argument i as a switch. "true", "yes", "on" and "1" are true,
// "false", "no", "off" and "0" are false. Anything else gives def.
func (ctx Context) Bool(i int, def bool) bool {
	switch strings.ToLower(ctx.Arg(i)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	}
	return def
}

// Joined returns the arguments from start onwards joined by single spaces.
func (ctx Context) Joined(start int) string {
	if start < 0 {
		start = 0
	}
	if start >= len(ctx.Args) {
		return ""
	}
	return strings.Join(ctx.Args[start:], " ")
}
