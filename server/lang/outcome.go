package lang

import (
	"github.com/df-mc/plugintemplate/server/cmd"
)

// Message keys used for dispatch feedback.
const (
	KeyNoPermission = "commands.no-permission"
	KeyPlayersOnly  = "commands.players-only"
	KeyCooldown     = "commands.cooldown"
	KeyUsage        = "commands.usage"
	KeyError        = "commands.error"
	KeyUnknown      = "commands.unknown"
	KeyUnknownRoot  = "commands.unknown-root"
	KeyWelcome      = "commands.welcome"
	KeyFlood        = "commands.flood"
)

// Outcome renders the feedback an actor receives for a dispatch outcome. An
// empty string is returned for outcomes that need no feedback: Success, where
// the handler talks to the actor itself, and NoSubCommand, which the caller
// handles.
func (b *Bundle) Outcome(locale string, o cmd.Outcome) string {
	switch o.Kind {
	case cmd.PermissionDenied:
		return b.Text(locale, KeyNoPermission)
	case cmd.ActorMismatch:
		return b.Text(locale, KeyPlayersOnly)
	case cmd.CooldownActive:
		return b.Text(locale, KeyCooldown, o.Remaining)
	case cmd.BadArity:
		return b.Text(locale, KeyUsage, o.Usage)
	case cmd.HandlerError:
		return b.Text(locale, KeyError)
	}
	return ""
}
