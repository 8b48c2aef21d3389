package plugin

import "errors"

// Plugin defines an in-process extension that can interact with the server.
type Plugin interface {
	// Name returns the display name of the plugin. It should be unique for the
	// lifetime of the server process.
	Name() string
	// Close releases all resources held by the plugin. It is called once when
	// the server shuts down or when the plugin is disabled.
	Close() error
}

// VersionedPlugin may be implemented by plugins to expose a semantic version
// such as "1.2.0" or "v1.2.0".
type VersionedPlugin interface {
	Version() string
}

// Factory is the constructor of a plugin. The returned Plugin is enabled
// immediately and must be ready to handle callbacks. Sub-commands registered
// through the API during the call are owned by the plugin.
type Factory[S any, C any] func(api *API[S, C]) (Plugin, error)

// Info describes a plugin currently loaded by the manager.
type Info struct {
	Name    string
	Version string
	// Source is the name of the factory the plugin was created from.
	Source string
	// Commands lists the sub-commands the plugin registered.
	Commands []string
}

var (
	// ErrDisabled is returned when the plugin subsystem is disabled.
	ErrDisabled = errors.New("plugin subsystem disabled")
	// ErrAlreadyLoaded is returned when attempting to enable a plugin that has
	// already been loaded.
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	// ErrNameConflict is returned when another loaded plugin, or another
	// factory, already uses the same case-insensitive name.
	ErrNameConflict = errors.New("plugin name already registered")
	// ErrNotFound is returned when attempting to disable or reload a plugin that
	// is not currently loaded.
	ErrNotFound = errors.New("plugin not found")
	// ErrUnknownFactory is returned when enabling a plugin that no factory was
	// provided for.
	ErrUnknownFactory = errors.New("no plugin factory with that name")
	// ErrInvalidVersion is returned when a VersionedPlugin reports a version
	// that is not a valid semantic version.
	ErrInvalidVersion = errors.New("invalid plugin version")
)
