package plugin

import (
	"log/slog"
	"time"

	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/google/uuid"
)

// Host exposes the subset of server functionality required by the plugin
// manager and APIs.
type Host[S any, C any] interface {
	// Instance returns the underlying server value.
	Instance() S
	// Config returns a snapshot of the server configuration.
	Config() C
	// Logger returns the logger used for structured diagnostics.
	Logger() *slog.Logger
	// StartTime reports the time the server was created.
	StartTime() time.Time
	// MaxPlayerCount returns the configured player cap.
	MaxPlayerCount() int
	// PlayerCount returns the number of currently connected players.
	PlayerCount() int
	// PlayerSummaries returns metadata about all currently connected players.
	PlayerSummaries() []PlayerSummary
	// Message sends a message to the online player with the id passed. It
	// returns false if the player is not online.
	Message(id uuid.UUID, message string) bool
	// Broadcast sends a message to every online player and returns how many
	// received it.
	Broadcast(message string) int
	// ExecuteConsole runs a command line on behalf of the console.
	ExecuteConsole(line string) cmd.Outcome
	// Commands returns the registry of sub-commands of the root command.
	Commands() *cmd.Registry
	// PluginsEnabled reports if the plugin system is active.
	PluginsEnabled() bool
}
