package plugin

// Config controls the behaviour of the plugin manager.
type Config struct {
	// Enabled specifies if the plugin subsystem should be initialised. When
	// false, no plugins will be enabled.
	Enabled bool
	// Directory is the base directory under which plugin data lives.
	Directory string
	// DataDirectory controls where plugin data folders should be created. If
	// empty, a `data` directory inside Directory will be used. Relative
	// paths are resolved against Directory.
	DataDirectory string
	// Autoload controls whether every provided factory should be enabled by
	// LoadConfigured.
	Autoload bool
	// Load enumerates the factories LoadConfigured enables when Autoload is
	// false.
	Load []string
}
