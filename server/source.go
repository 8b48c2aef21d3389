package server

import (
	"log/slog"

	"github.com/google/uuid"
)

// Source is anything that can run a command line: a player or the console.
type Source interface {
	// ID identifies the source. Cooldowns and flood limits are tracked per ID.
	ID() uuid.UUID
	// Name is the display name of the source.
	Name() string
	// Interactive reports if the source is a player. Sub-commands restricted
	// to players refuse sources that are not interactive.
	Interactive() bool
	// SendMessage sends feedback to the source.
	SendMessage(msg string)
}

// Permissible may be implemented by a Source to decide its permissions
// itself. Sources that do not implement it are checked against the
// permission store by name.
type Permissible interface {
	HasPermission(node string) bool
}

// Localised may be implemented by a Source to pick the locale its feedback
// is rendered in.
type Localised interface {
	Locale() string
}

// ConsoleID is the ID of console sources.
var ConsoleID = uuid.Nil

// ConsoleSource returns a Source for the server console that logs its
// feedback to log. It holds every permission.
func ConsoleSource(log *slog.Logger) Source {
	if log == nil {
		log = slog.Default()
	}
	return consoleSource{log: log}
}

type consoleSource struct {
	log *slog.Logger
}

func (consoleSource) ID() uuid.UUID             { return ConsoleID }
func (consoleSource) Name() string              { return "Console" }
func (consoleSource) Interactive() bool         { return false }
func (consoleSource) HasPermission(string) bool { return true }
func (c consoleSource) SendMessage(msg string)  { c.log.Info(msg) }
