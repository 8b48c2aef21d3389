package plugin

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/google/uuid"
)

// API is handed to a plugin factory and exposes the server to the plugin.
// All methods are safe for concurrent use.
type API[S any, C any] struct {
	manager *Manager[S, C]
	host    Host[S, C]
	name    atomic.Value // stores string
	ctx     atomic.Pointer[context.Context]
	dataDir atomic.Value // stores string

	cmdMu    sync.Mutex
	commands []string
}

func newAPI[S any, C any](manager *Manager[S, C], host Host[S, C], name string) *API[S, C] {
	api := &API[S, C]{manager: manager, host: host}
	api.name.Store(name)
	api.setContext(context.Background())
	return api
}

func (api *API[S, C]) setName(name string) {
	if name == "" {
		return
	}
	api.name.Store(name)
}

func (api *API[S, C]) pluginName() string {
	if v := api.name.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "plugin"
}

func (api *API[S, C]) setContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	api.ctx.Store(&ctx)
}

// Context returns the lifecycle context of the plugin. It is cancelled when
// the plugin is disabled.
func (api *API[S, C]) Context() context.Context {
	if ctx := api.ctx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

func (api *API[S, C]) setDataDirectory(dir string) {
	if dir == "" {
		api.dataDir.Store("")
		return
	}
	api.dataDir.Store(filepath.Clean(dir))
}

// DataDirectory returns the directory the plugin may store its data in.
func (api *API[S, C]) DataDirectory() string {
	if v := api.dataDir.Load(); v != nil {
		if dir, ok := v.(string); ok && dir != "" {
			return dir
		}
	}
	return api.manager.pluginDataDirectory(api.pluginName())
}

func (api *API[S, C]) resolveDataPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("data path is empty")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("data path must be relative")
	}
	base := api.DataDirectory()
	target := filepath.Join(base, filepath.Clean(name))
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("data path escapes plugin directory")
	}
	return target, nil
}

// EnsureDataSubdir creates a directory inside the data directory of the
// plugin and returns its path. An empty name creates the data directory
// itself.
func (api *API[S, C]) EnsureDataSubdir(name string) (string, error) {
	if name == "" {
		dir := api.DataDirectory()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		return dir, nil
	}
	path, err := api.resolveDataPath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// OpenDataFile opens a file relative to the data directory of the plugin,
// creating parent directories as needed. Paths escaping the data directory
// are rejected.
func (api *API[S, C]) OpenDataFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	path, err := api.resolveDataPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if perm == 0 {
		perm = 0o644
	}
	return os.OpenFile(path, flag, perm)
}

// Go runs fn in a new goroutine with the lifecycle context of the plugin. A
// panic in fn disables the plugin.
func (api *API[S, C]) Go(fn func(context.Context)) {
	if fn == nil {
		return
	}
	ctx := api.Context()
	name := api.pluginName()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				api.manager.handlePluginPanic(name, r)
			}
		}()
		fn(ctx)
	}()
}

// Server returns the server hosting the plugin.
func (api *API[S, C]) Server() S {
	return api.host.Instance()
}

// Config returns the configuration of the server.
func (api *API[S, C]) Config() C {
	return api.host.Config()
}

// StartTime returns the time the server was created.
func (api *API[S, C]) StartTime() time.Time {
	return api.host.StartTime()
}

// Logger returns a logger tagged with the name of the plugin.
func (api *API[S, C]) Logger() *slog.Logger {
	logger := api.host.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("plugin", api.pluginName())
}

func (api *API[S, C]) MaxPlayerCount() int {
	return api.host.MaxPlayerCount()
}

func (api *API[S, C]) PlayerCount() int {
	return api.host.PlayerCount()
}

func (api *API[S, C]) PlayerSummaries() []PlayerSummary {
	return api.host.PlayerSummaries()
}

// PlayerSummary returns the summary of the online player with the id passed.
func (api *API[S, C]) PlayerSummary(id uuid.UUID) (PlayerSummary, bool) {
	for _, summary := range api.PlayerSummaries() {
		if summary.UUID == id {
			return summary, true
		}
	}
	return PlayerSummary{}, false
}

// PlayerByName returns the summary of the online player with the name
// passed, ignoring case.
func (api *API[S, C]) PlayerByName(name string) (PlayerSummary, bool) {
	for _, summary := range api.PlayerSummaries() {
		if strings.EqualFold(summary.Name, name) {
			return summary, true
		}
	}
	return PlayerSummary{}, false
}

// MessagePlayer sends a message to an online player.
func (api *API[S, C]) MessagePlayer(id uuid.UUID, message string) bool {
	return api.host.Message(id, message)
}

// Broadcast sends a message to every online player.
func (api *API[S, C]) Broadcast(message string) int {
	return api.host.Broadcast(message)
}

// ExecuteConsole runs a command line as the console.
func (api *API[S, C]) ExecuteConsole(line string) cmd.Outcome {
	return api.host.ExecuteConsole(line)
}

// RegisterCommand adds a sub-command to the root command. The sub-command is
// owned by the plugin and removed when the plugin is disabled.
func (api *API[S, C]) RegisterCommand(spec cmd.Spec) error {
	api.cmdMu.Lock()
	defer api.cmdMu.Unlock()

	if err := api.host.Commands().Register(spec); err != nil {
		return fmt.Errorf("plugin %s: %w", api.pluginName(), err)
	}
	api.commands = append(api.commands, strings.ToLower(strings.TrimSpace(spec.Name)))
	return nil
}

// UnregisterCommand removes a sub-command the plugin registered before. It
// returns false for sub-commands the plugin does not own.
func (api *API[S, C]) UnregisterCommand(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))

	api.cmdMu.Lock()
	defer api.cmdMu.Unlock()
	i := slices.Index(api.commands, name)
	if i == -1 {
		return false
	}
	api.commands = slices.Delete(api.commands, i, i+1)
	return api.host.Commands().Unregister(name)
}

// OwnedCommands returns the names of the sub-commands owned by the plugin.
func (api *API[S, C]) OwnedCommands() []string {
	api.cmdMu.Lock()
	defer api.cmdMu.Unlock()
	return slices.Clone(api.commands)
}

// releaseCommands unregisters every sub-command owned by the plugin.
func (api *API[S, C]) releaseCommands() {
	api.cmdMu.Lock()
	defer api.cmdMu.Unlock()
	for _, name := range api.commands {
		api.host.Commands().Unregister(name)
	}
	api.commands = nil
}

// Plugins returns metadata of every loaded plugin.
func (api *API[S, C]) Plugins() []Info {
	return api.manager.Infos()
}

// Plugin returns a loaded plugin by its case-insensitive name.
func (api *API[S, C]) Plugin(name string) (Plugin, bool) {
	return api.manager.Plugin(name)
}

func (api *API[S, C]) PluginsEnabled() bool {
	return api.host.PluginsEnabled()
}

// PluginDataRoot returns the directory holding the data directories of all
// plugins.
func (api *API[S, C]) PluginDataRoot() string {
	return api.manager.DataRoot()
}

// Events returns the event subscriptions of the plugin.
func (api *API[S, C]) Events() *PluginEvents[S, C] {
	return &PluginEvents[S, C]{api: api}
}

// PluginEvents manages the event handlers of one plugin. Handlers are
// removed when the plugin is disabled.
type PluginEvents[S any, C any] struct {
	api *API[S, C]
}

// Subscribe adds a handler and returns a function removing it again.
func (pe *PluginEvents[S, C]) Subscribe(handler Handler) func() {
	if pe == nil || handler == nil {
		return func() {}
	}
	return pe.api.manager.events.add(pe.api.pluginName(), handler)
}

// Clear removes every handler of the plugin.
func (pe *PluginEvents[S, C]) Clear() {
	if pe == nil {
		return
	}
	pe.api.manager.events.clear(pe.api.pluginName())
}
