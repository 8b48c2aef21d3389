package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

type pluginInstance[S any, C any] struct {
	name    string
	version string
	source  string
	plugin  Plugin
	api     *API[S, C]
	cancel  context.CancelFunc
}

func (pi pluginInstance[S, C]) info() Info {
	info := Info{Name: pi.name, Version: pi.version, Source: pi.source}
	if pi.api != nil {
		info.Commands = pi.api.OwnedCommands()
	}
	return info
}

type factoryEntry[S any, C any] struct {
	name    string
	factory Factory[S, C]
}

// Manager coordinates plugin factories and the lifecycle of the plugins they
// create.
type Manager[S any, C any] struct {
	host       Host[S, C]
	cfg        Config
	log        *slog.Logger
	runtimeLog *slog.Logger

	once      sync.Once
	mu        sync.RWMutex
	factories []factoryEntry[S, C]
	plugins   []pluginInstance[S, C]
	events    *eventHub[S, C]
}

// NewManager constructs a Manager using the provided host and configuration snapshot.
func NewManager[S any, C any](host Host[S, C], cfg Config) *Manager[S, C] {
	cfg.Load = slices.Clone(cfg.Load)
	manager := &Manager[S, C]{host: host, cfg: cfg}
	logger := host.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	manager.log = logger.With("subsystem", "plugin")
	manager.runtimeLog = logger.With("subsystem", "plugin.runtime")
	manager.events = newEventHub(manager, logger)
	return manager
}

// Enabled reports whether the plugin subsystem should run.
func (m *Manager[S, C]) Enabled() bool {
	return m.cfg.Enabled
}

// Directory returns the base plugin directory.
func (m *Manager[S, C]) Directory() string {
	return m.directory()
}

// DataRoot returns the root directory used for plugin data storage.
func (m *Manager[S, C]) DataRoot() string {
	return m.dataRoot()
}

// Provide makes a factory available under name. Provided factories can be
// enabled through Enable or LoadConfigured.
func (m *Manager[S, C]) Provide(name string, factory Factory[S, C]) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return fmt.Errorf("provide plugin factory: empty name or nil factory")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.factories {
		if strings.EqualFold(f.name, name) {
			return fmt.Errorf("%w: factory %s", ErrNameConflict, name)
		}
	}
	m.factories = append(m.factories, factoryEntry[S, C]{name: name, factory: factory})
	return nil
}

// Factories returns the names of all provided factories in the order they
// were provided.
func (m *Manager[S, C]) Factories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.factories))
	for i, f := range m.factories {
		names[i] = f.name
	}
	return names
}

// LoadConfigured enables plugins based on configuration. It only has an
// effect the first time it is called.
func (m *Manager[S, C]) LoadConfigured() {
	m.once.Do(func() {
		m.loadConfigured()
	})
}

// Infos returns metadata for all loaded plugins.
func (m *Manager[S, C]) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, len(m.plugins))
	for i, p := range m.plugins {
		infos[i] = p.info()
	}
	return infos
}

// Plugin returns a loaded plugin by its case-insensitive name.
func (m *Manager[S, C]) Plugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plugins {
		if strings.EqualFold(p.name, name) {
			return p.plugin, true
		}
	}
	return nil, false
}

// Enable creates and enables a plugin from the factory provided under name.
func (m *Manager[S, C]) Enable(name string) (info Info, err error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}
	if err := m.ensureDataRoot(); err != nil {
		return Info{}, fmt.Errorf("prepare plugin data storage: %w", err)
	}

	m.mu.RLock()
	var source factoryEntry[S, C]
	for _, f := range m.factories {
		if strings.EqualFold(f.name, name) {
			source = f
		}
	}
	for _, existing := range m.plugins {
		if source.factory != nil && existing.source == source.name {
			m.mu.RUnlock()
			return existing.info(), ErrAlreadyLoaded
		}
	}
	m.mu.RUnlock()
	if source.factory == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownFactory, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	api := newAPI(m, m.host, source.name)
	api.setContext(ctx)
	initialDataDir := m.pluginDataDirectory(source.name)
	if err := os.MkdirAll(initialDataDir, 0o755); err != nil {
		cancel()
		return Info{}, fmt.Errorf("create plugin data directory: %w", err)
	}
	api.setDataDirectory(initialDataDir)
	defer func() {
		if err != nil {
			cancel()
			m.events.clear(api.pluginName())
			api.releaseCommands()
		}
	}()
	inst, err := m.create(source, api)
	if err != nil {
		return Info{}, err
	}

	previousName := api.pluginName()
	pluginName := inst.Name()
	if pluginName == "" {
		pluginName = previousName
	}
	api.setName(pluginName)
	if previousName != pluginName {
		m.events.rename(previousName, pluginName)
	}

	if targetDir := m.pluginDataDirectory(pluginName); targetDir != api.DataDirectory() {
		if err := m.migrateDataDirectory(api.DataDirectory(), targetDir); err != nil {
			m.runtimeLog.Error("Migrate plugin data directory.", "plugin", pluginName, "error", err)
		} else {
			api.setDataDirectory(targetDir)
		}
	}

	version := ""
	if v, ok := inst.(VersionedPlugin); ok {
		version, err = normaliseVersion(v.Version())
		if err != nil {
			m.closeRejected(inst, pluginName)
			return Info{}, err
		}
	}

	entry := pluginInstance[S, C]{
		name:    pluginName,
		version: version,
		source:  source.name,
		plugin:  inst,
		api:     api,
		cancel:  cancel,
	}

	m.mu.Lock()
	for _, existing := range m.plugins {
		if strings.EqualFold(existing.name, entry.name) {
			m.mu.Unlock()
			m.closeRejected(inst, entry.name)
			return Info{}, fmt.Errorf("%w: %s", ErrNameConflict, entry.name)
		}
	}
	m.plugins = append(m.plugins, entry)
	m.mu.Unlock()

	attrs := []any{"name", entry.name, "source", entry.source}
	if entry.version != "" {
		attrs = append(attrs, "version", entry.version)
	}
	if commands := api.OwnedCommands(); len(commands) > 0 {
		attrs = append(attrs, "commands", strings.Join(commands, ","))
	}
	m.log.Info("Plugin enabled.", attrs...)

	return entry.info(), nil
}

// create calls the factory of source, turning a panic into an error.
func (m *Manager[S, C]) create(source factoryEntry[S, C], api *API[S, C]) (inst Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.runtimeLog.Error("Plugin factory panic.", "source", source.name, "panic", r, "stack", string(debug.Stack()))
			inst, err = nil, fmt.Errorf("initialise plugin %s: panic: %v", source.name, r)
		}
	}()
	inst, err = source.factory(api)
	if err != nil {
		return nil, fmt.Errorf("initialise plugin %s: %w", source.name, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("initialise plugin %s: factory returned nil", source.name)
	}
	return inst, nil
}

func (m *Manager[S, C]) closeRejected(inst Plugin, name string) {
	if err := inst.Close(); err != nil {
		m.log.Error("Close rejected plugin instance.", "error", err, "name", name)
	}
}

// Disable disables a plugin by its case-insensitive name and removes it from
// the manager together with its sub-commands and event handlers.
func (m *Manager[S, C]) Disable(name string) (Info, error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}

	m.mu.Lock()
	index := -1
	var entry pluginInstance[S, C]
	for i, p := range m.plugins {
		if strings.EqualFold(p.name, name) {
			index = i
			entry = p
			m.plugins = append(m.plugins[:i], m.plugins[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if index == -1 {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	info := entry.info()

	if err := entry.plugin.Close(); err != nil {
		m.mu.Lock()
		m.plugins = append(m.plugins, entry)
		m.mu.Unlock()
		return Info{}, fmt.Errorf("close plugin: %w", err)
	}
	m.release(entry)

	m.log.Info("Plugin disabled.", "name", entry.name, "source", entry.source)
	return info, nil
}

func (m *Manager[S, C]) release(entry pluginInstance[S, C]) {
	if entry.cancel != nil {
		entry.cancel()
	}
	m.events.clear(entry.name)
	if entry.api != nil {
		entry.api.releaseCommands()
	}
}

// Reload disables and then re-enables a plugin by name.
func (m *Manager[S, C]) Reload(name string) (Info, error) {
	info, err := m.Disable(name)
	if err != nil {
		return Info{}, err
	}

	reloaded, err := m.Enable(info.Source)
	if err != nil {
		return Info{}, err
	}

	attrs := []any{"name", reloaded.Name, "source", reloaded.Source}
	if reloaded.Version != "" {
		attrs = append(attrs, "version", reloaded.Version)
	}
	m.log.Info("Plugin reloaded.", attrs...)
	return reloaded, nil
}

// DisableAll disables all currently loaded plugins in reverse load order.
// The returned slice contains metadata for every plugin that was disabled in
// the order the operations were performed.
func (m *Manager[S, C]) DisableAll() ([]Info, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}

	m.mu.RLock()
	names := make([]string, len(m.plugins))
	for i, p := range m.plugins {
		names[i] = p.name
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		info, err := m.Disable(names[i])
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Shutdown disables all plugins in reverse load order, logging rather than
// returning errors.
func (m *Manager[S, C]) Shutdown() {
	m.mu.Lock()
	plugins := slices.Clone(m.plugins)
	m.plugins = nil
	m.mu.Unlock()

	for i := len(plugins) - 1; i >= 0; i-- {
		entry := plugins[i]
		m.release(entry)
		if err := entry.plugin.Close(); err != nil {
			m.log.Error("Disable plugin.", "error", err, "name", entry.name)
			continue
		}
		m.log.Info("Plugin disabled.", "name", entry.name, "source", entry.source)
	}
}

func (m *Manager[S, C]) loadConfigured() {
	cfg := m.cfg
	if !cfg.Enabled {
		m.log.Debug("Plugin system disabled.")
		return
	}

	var names []string
	if cfg.Autoload {
		names = m.Factories()
	}
	for _, name := range cfg.Load {
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, name) }) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		m.log.Debug("No plugins configured.")
		return
	}
	for _, name := range names {
		if _, err := m.Enable(name); err != nil {
			m.log.Error("Enable plugin.", "error", err, "source", name)
		}
	}
}

func (m *Manager[S, C]) directory() string {
	if m.cfg.Directory == "" {
		return "plugins"
	}
	return m.cfg.Directory
}

func (m *Manager[S, C]) dataRoot() string {
	dir := m.cfg.DataDirectory
	if dir == "" {
		dir = filepath.Join(m.directory(), "data")
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.directory(), dir)
	}
	return filepath.Clean(dir)
}

func (m *Manager[S, C]) ensureDataRoot() error {
	return os.MkdirAll(m.dataRoot(), 0o755)
}

func (m *Manager[S, C]) pluginDataDirectory(name string) string {
	return filepath.Join(m.dataRoot(), sanitizePluginDirectory(name))
}

func (m *Manager[S, C]) migrateDataDirectory(from, to string) error {
	if from == to {
		return nil
	}
	if to == "" {
		return fmt.Errorf("empty target data directory")
	}
	if from == "" {
		return os.MkdirAll(to, 0o755)
	}
	info, err := os.Stat(from)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(to, 0o755)
		}
		return fmt.Errorf("stat source data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source data directory is not a directory")
	}
	if _, err := os.Stat(to); err == nil {
		// Data from an earlier run under the final name wins.
		return os.RemoveAll(from)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("ensure target parent: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename data directory: %w", err)
	}
	return nil
}

func (m *Manager[S, C]) handlePluginPanic(name string, reason any) {
	pluginName := name
	if pluginName == "" {
		pluginName = "plugin"
	}
	stack := debug.Stack()
	m.events.clear(pluginName)
	m.runtimeLog.Error("Plugin panic.", "plugin", pluginName, "panic", reason, "stack", string(stack))
	go func() {
		info, err := m.Disable(pluginName)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.runtimeLog.Error("Disable panic plugin.", "plugin", pluginName, "error", err)
			}
			return
		}
		attrs := []any{"name", info.Name, "source", info.Source}
		if info.Version != "" {
			attrs = append(attrs, "version", info.Version)
		}
		m.runtimeLog.Warn("Plugin disabled after panic.", attrs...)
	}()
}

// normaliseVersion validates a plugin version as semver and returns it
// without the leading "v". An empty version is allowed.
func normaliseVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return "", nil
	}
	canonical := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(canonical) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return strings.TrimPrefix(canonical, "v"), nil
}

func sanitizePluginDirectory(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "plugin"
	}
	lower := strings.ToLower(trimmed)
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, lower)
	sanitized = strings.Trim(sanitized, "-_.")
	if sanitized == "" {
		return "plugin"
	}
	return sanitized
}
