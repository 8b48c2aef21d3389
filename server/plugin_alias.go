package server

import "github.com/df-mc/plugintemplate/server/plugin"

type (
	Plugin          = plugin.Plugin
	VersionedPlugin = plugin.VersionedPlugin
	PluginFactory   = plugin.Factory[*Server, Config]
	PluginInfo      = plugin.Info
	PluginAPI       = plugin.API[*Server, Config]
	PluginHandler   = plugin.Handler
	PluginEvent     = plugin.CommandEvent
)

var (
	ErrPluginsDisabled     = plugin.ErrDisabled
	ErrPluginAlreadyLoaded = plugin.ErrAlreadyLoaded
	ErrPluginNameConflict  = plugin.ErrNameConflict
	ErrPluginNotFound      = plugin.ErrNotFound
	ErrPluginUnknown       = plugin.ErrUnknownFactory
)

// PluginsEnabled reports if the plugin system is active.
func (srv *Server) PluginsEnabled() bool {
	return srv.plugins.Enabled()
}

// ProvidePlugin makes a plugin factory available under name.
func (srv *Server) ProvidePlugin(name string, factory PluginFactory) error {
	return srv.plugins.Provide(name, factory)
}

// PluginFactories returns the names of all provided plugin factories.
func (srv *Server) PluginFactories() []string {
	return srv.plugins.Factories()
}

// LoadPlugins enables the plugins selected by the plugin configuration. Only
// the first call has an effect.
func (srv *Server) LoadPlugins() {
	srv.plugins.LoadConfigured()
}

// Plugins returns metadata of all loaded plugins.
func (srv *Server) Plugins() []PluginInfo {
	return srv.plugins.Infos()
}

// EnablePlugin enables the plugin provided under name.
func (srv *Server) EnablePlugin(name string) (PluginInfo, error) {
	return srv.plugins.Enable(name)
}

// DisablePlugin disables a loaded plugin by name.
func (srv *Server) DisablePlugin(name string) (PluginInfo, error) {
	return srv.plugins.Disable(name)
}

// ReloadPlugin disables and enables a loaded plugin again.
func (srv *Server) ReloadPlugin(name string) (PluginInfo, error) {
	return srv.plugins.Reload(name)
}
