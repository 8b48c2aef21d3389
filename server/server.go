package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/plugintemplate/server/cache"
	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/df-mc/plugintemplate/server/lang"
	"github.com/df-mc/plugintemplate/server/perm"
	"github.com/df-mc/plugintemplate/server/playerdb"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/google/uuid"
)

var (
	// ErrInvalidPlayer is returned by Join for a nil UUID or an empty name.
	ErrInvalidPlayer = errors.New("invalid player id or name")
	// ErrAlreadyOnline is returned by Join if a player with the same UUID or
	// name is already online.
	ErrAlreadyOnline = errors.New("player already online")
	// ErrServerFull is returned by Join if MaxPlayers players are online.
	ErrServerFull = errors.New("server is full")
	// ErrNotAllowed is returned by Join if the Allower refused the player.
	ErrNotAllowed = errors.New("player not allowed to join")
	// ErrClosed is returned by Join after the server was closed.
	ErrClosed = errors.New("server closed")
)

// Server hosts the root command. It adapts players and the console to the
// sub-command engine, tracks which players are online and hosts plugins
// contributing sub-commands.
type Server struct {
	conf    Config
	started time.Time
	log     *slog.Logger

	reg     *cmd.Registry
	engine  *cmd.Engine
	flood   *floodLimiter
	console Source

	pmu sync.RWMutex
	p   map[uuid.UUID]*Player

	plugins *plugin.Manager[*Server, Config]

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newServer(conf Config) *Server {
	srv := &Server{
		conf:    conf,
		started: conf.Clock(),
		log:     conf.Log,
		reg:     cmd.NewRegistry(),
		flood:   newFloodLimiter(conf.FloodRate, conf.FloodBurst),
		console: ConsoleSource(conf.Log.With("source", "console")),
		p:       make(map[uuid.UUID]*Player),
	}
	srv.engine = cmd.NewEngine(srv.reg, cmd.NewCooldowns(), cmd.WithClock(conf.Clock), cmd.WithLogger(conf.Log))
	srv.plugins = plugin.NewManager[*Server, Config](newPluginHost(srv), conf.Plugins)
	return srv
}

// Name returns the display name of the server.
func (srv *Server) Name() string { return srv.conf.Name }

// Version returns the version shown by the info sub-command.
func (srv *Server) Version() string { return srv.conf.Version }

// Label returns the root command label.
func (srv *Server) Label() string { return srv.conf.Label }

// Aliases returns the alternative root command labels.
func (srv *Server) Aliases() []string { return slices.Clone(srv.conf.Aliases) }

// Logger returns the logger of the server.
func (srv *Server) Logger() *slog.Logger { return srv.log }

// StartTime returns the time the server was created.
func (srv *Server) StartTime() time.Time { return srv.started }

// Uptime returns the time passed since the server was created.
func (srv *Server) Uptime() time.Duration { return srv.conf.Clock().Sub(srv.started) }

// Commands returns the registry of sub-commands of the root command.
func (srv *Server) Commands() *cmd.Registry { return srv.reg }

// Engine returns the engine dispatching sub-commands.
func (srv *Server) Engine() *cmd.Engine { return srv.engine }

// Permissions returns the permission store of the server.
func (srv *Server) Permissions() *perm.Store { return srv.conf.Permissions }

// Languages returns the message catalogs of the server.
func (srv *Server) Languages() *lang.Bundle { return srv.conf.Languages }

// PlayerProvider returns the store of player settings.
func (srv *Server) PlayerProvider() playerdb.Provider { return srv.conf.PlayerProvider }

// Cache returns the cache of short-lived values shared by sub-commands and
// plugins.
func (srv *Server) Cache() *cache.Cache[string] { return srv.conf.Cache }

// Whitelist returns the whitelist of the server, if its Allower is one.
func (srv *Server) Whitelist() (*Whitelist, bool) {
	wl, ok := srv.conf.Allower.(*Whitelist)
	return wl, ok
}

// Console returns the console Source of the server, which logs its feedback.
func (srv *Server) Console() Source { return srv.console }

// Debug reports if debug logging is enabled.
func (srv *Server) Debug() bool {
	return srv.conf.LogLevel.Level() <= slog.LevelDebug
}

// SetDebug turns debug logging on or off.
func (srv *Server) SetDebug(on bool) {
	level := srv.conf.LevelInfo
	if on {
		level = slog.LevelDebug
	}
	srv.conf.LogLevel.Set(level)
	srv.log.Info("Debug mode changed.", "enabled", on)
}

// Join adds a player to the set of online players. The settings of the
// player are loaded from the player provider.
func (srv *Server) Join(id uuid.UUID, name string) (*Player, error) {
	name = strings.TrimSpace(name)
	if id == uuid.Nil || name == "" {
		return nil, ErrInvalidPlayer
	}
	if srv.closed.Load() {
		return nil, ErrClosed
	}
	if reason, ok := srv.conf.Allower.Allow(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, reason)
	}

	now := srv.conf.Clock()
	settings, found, err := srv.conf.PlayerProvider.Load(id)
	if err != nil {
		srv.log.Error("Load player settings.", "uuid", id, "error", err)
	}
	if !found || err != nil {
		settings = playerdb.Settings{FirstJoin: now}
	}
	settings.Name, settings.LastSeen = name, now
	p := &Player{srv: srv, id: id, name: name, joined: now, settings: settings}

	srv.pmu.Lock()
	if err := srv.admitLocked(id, name); err != nil {
		srv.pmu.Unlock()
		return nil, err
	}
	srv.p[id] = p
	srv.pmu.Unlock()

	srv.log.Info("Player joined.", "name", name, "uuid", id, "locale", p.Locale(), "first", !found)
	p.SendMessage(srv.conf.Languages.Text(p.Locale(), "player.join", name))
	srv.plugins.EmitJoin(p.summary())
	return p, nil
}

func (srv *Server) admitLocked(id uuid.UUID, name string) error {
	if _, ok := srv.p[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyOnline, id)
	}
	for _, other := range srv.p {
		if strings.EqualFold(other.name, name) {
			return fmt.Errorf("%w: %s", ErrAlreadyOnline, name)
		}
	}
	if srv.conf.MaxPlayers > 0 && len(srv.p) >= srv.conf.MaxPlayers {
		return ErrServerFull
	}
	return nil
}

// Quit removes a player from the set of online players. Cooldowns, flood
// limits, temporary permissions and cache entries of the player are dropped
// and its settings saved. Quit returns false if the player was not online.
func (srv *Server) Quit(id uuid.UUID) bool {
	srv.pmu.Lock()
	p, ok := srv.p[id]
	delete(srv.p, id)
	srv.pmu.Unlock()
	if !ok {
		return false
	}

	cooldowns := srv.engine.Cooldowns().Forget(id)
	srv.flood.Forget(id)
	grants := srv.conf.Permissions.Forget(p.name)
	cached := srv.conf.Cache.DeletePrefix(cache.PlayerPrefix(id))
	_ = srv.savePlayer(p)

	srv.log.Info("Player left.", "name", p.name, "uuid", id, "cooldowns", cooldowns, "grants", grants, "cached", cached)
	srv.plugins.EmitQuit(p.summary())
	return true
}

func (srv *Server) savePlayer(p *Player) error {
	settings := p.Settings()
	settings.LastSeen = srv.conf.Clock()
	if err := srv.conf.PlayerProvider.Save(p.id, settings); err != nil {
		srv.log.Error("Save player settings.", "name", p.name, "uuid", p.id, "error", err)
		return fmt.Errorf("save %s: %w", p.name, err)
	}
	return nil
}

// SaveAll saves the settings of every online player and writes the cache to
// CacheFile if one is configured. Every player is saved even if saving
// another failed. SaveAll returns how many players were saved.
func (srv *Server) SaveAll() (int, error) {
	start := time.Now()
	errs := []error{}
	saved := 0
	for _, p := range srv.Players() {
		if err := srv.savePlayer(p); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if srv.conf.CacheFile != "" {
		if err := srv.conf.Cache.Save(srv.conf.CacheFile); err != nil {
			srv.log.Error("Save cache.", "file", srv.conf.CacheFile, "error", err)
			errs = append(errs, err)
		}
	}
	srv.log.Debug("Saved server state.", "players", saved, "took", time.Since(start).Round(time.Microsecond))
	return saved, errors.Join(errs...)
}

// Players returns the online players sorted by name.
func (srv *Server) Players() []*Player {
	srv.pmu.RLock()
	players := make([]*Player, 0, len(srv.p))
	for _, p := range srv.p {
		players = append(players, p)
	}
	srv.pmu.RUnlock()

	slices.SortFunc(players, func(a, b *Player) int {
		return strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
	})
	return players
}

// Player returns the online player with the UUID passed.
func (srv *Server) Player(id uuid.UUID) (*Player, bool) {
	srv.pmu.RLock()
	defer srv.pmu.RUnlock()
	p, ok := srv.p[id]
	return p, ok
}

// PlayerByName returns the online player with the name passed, ignoring
// case.
func (srv *Server) PlayerByName(name string) (*Player, bool) {
	name = strings.TrimSpace(name)
	srv.pmu.RLock()
	defer srv.pmu.RUnlock()
	for _, p := range srv.p {
		if strings.EqualFold(p.name, name) {
			return p, true
		}
	}
	return nil, false
}

// PlayerCount returns the number of online players.
func (srv *Server) PlayerCount() int {
	srv.pmu.RLock()
	defer srv.pmu.RUnlock()
	return len(srv.p)
}

// MaxPlayerCount returns the maximum amount of players that may be online at
// once. If MaxPlayers is 0, it is always one more than PlayerCount.
func (srv *Server) MaxPlayerCount() int {
	if srv.conf.MaxPlayers == 0 {
		c := srv.PlayerCount()
		if c > math.MaxInt-1 {
			return c
		}
		return c + 1
	}
	return srv.conf.MaxPlayers
}

// Broadcast sends a message to every online player and returns how many
// players received it.
func (srv *Server) Broadcast(msg string) int {
	players := srv.Players()
	for _, p := range players {
		p.SendMessage(msg)
	}
	return len(players)
}

// Execute runs a command line such as "/pt reload" on behalf of src. The
// root label must be the label of the server or one of its aliases. Feedback
// for the outcome is sent to src in its locale.
func (srv *Server) Execute(src Source, line string) cmd.Outcome {
	label, args, ok := cmd.ParseLine(line)
	if !ok {
		return cmd.Outcome{Kind: cmd.NoSubCommand}
	}
	label = strings.ToLower(label)
	locale := srv.sourceLocale(src)
	text := srv.conf.Languages.Text

	if !srv.isLabel(label) {
		src.SendMessage(text(locale, lang.KeyUnknownRoot, label))
		return cmd.Outcome{Kind: cmd.NoSubCommand}
	}
	actor := srv.actor(src)
	if !actor.Allowed(srv.conf.Permission) {
		src.SendMessage(text(locale, lang.KeyNoPermission))
		return cmd.Outcome{Kind: cmd.PermissionDenied}
	}
	if actor.Interactive && !srv.flood.Allow(actor.ID, srv.conf.Clock()) {
		src.SendMessage(text(locale, lang.KeyFlood))
		return cmd.Outcome{Kind: cmd.CooldownActive, Remaining: 1}
	}

	out := srv.engine.Dispatch(actor, label, args)
	switch out.Kind {
	case cmd.NoSubCommand:
		if len(args) == 0 {
			src.SendMessage(text(locale, lang.KeyWelcome, srv.conf.Name, srv.conf.Version, label))
		} else {
			src.SendMessage(text(locale, lang.KeyUnknown, args[0], label))
		}
	case cmd.Success:
		srv.deliver(src, out.Result)
		if p, ok := src.(*Player); ok {
			p.recordCommand()
		}
	default:
		if msg := srv.conf.Languages.Outcome(locale, out); msg != "" {
			src.SendMessage(msg)
		}
	}
	srv.log.Debug("Command dispatched.", "source", src.Name(), "label", label, "command", out.Command, "outcome", out.Kind.String())
	srv.plugins.EmitCommand(plugin.CommandEvent{Actor: actor, Label: label, Args: slices.Clone(args), Outcome: out})
	return out
}

// deliver sends the result of a successful handler to src.
func (srv *Server) deliver(src Source, result any) {
	switch r := result.(type) {
	case *Output:
		for _, line := range r.lines {
			src.SendMessage(line)
		}
	case string:
		if r != "" {
			src.SendMessage(r)
		}
	case []string:
		for _, line := range r {
			src.SendMessage(line)
		}
	case fmt.Stringer:
		src.SendMessage(r.String())
	}
}

// Complete returns completion suggestions for a partially typed command
// line. With only a label typed, the matching root labels are suggested.
func (srv *Server) Complete(src Source, line string) []string {
	tokens := cmd.SplitPartial(line)
	actor := srv.actor(src)
	if !actor.Allowed(srv.conf.Permission) {
		return []string{}
	}
	label := strings.ToLower(tokens[0])
	if len(tokens) == 1 {
		suggestions := []string{}
		for _, l := range srv.labels() {
			if strings.HasPrefix(l, label) {
				suggestions = append(suggestions, l)
			}
		}
		return suggestions
	}
	if !srv.isLabel(label) {
		return []string{}
	}
	return srv.engine.Complete(actor, label, len(tokens)-2, tokens[1:])
}

func (srv *Server) labels() []string {
	return append([]string{srv.conf.Label}, srv.conf.Aliases...)
}

func (srv *Server) isLabel(label string) bool {
	return label == srv.conf.Label || slices.Contains(srv.conf.Aliases, label)
}

func (srv *Server) actor(src Source) cmd.Actor {
	a := cmd.Actor{ID: src.ID(), Name: src.Name(), Interactive: src.Interactive()}
	if p, ok := src.(Permissible); ok {
		a.Permission = p.HasPermission
	} else {
		a.Permission = srv.conf.Permissions.Checker(src.Name())
	}
	return a
}

func (srv *Server) sourceLocale(src Source) string {
	if l, ok := src.(Localised); ok {
		if locale := l.Locale(); locale != "" {
			return locale
		}
	}
	return srv.conf.DefaultLocale
}

func (srv *Server) actorLocale(a cmd.Actor) string {
	if p, ok := srv.Player(a.ID); ok {
		return p.Locale()
	}
	return srv.conf.DefaultLocale
}

// RunSweeper periodically drops the cooldowns of actors that went offline,
// expired temporary permissions and expired cache entries. Every
// AutoSaveInterval it also saves the online players and the cache. It
// returns once ctx is done.
func (srv *Server) RunSweeper(ctx context.Context) error {
	t := time.NewTicker(srv.conf.SweepInterval)
	defer t.Stop()

	var autosave <-chan time.Time
	if srv.conf.AutoSaveInterval > 0 {
		save := time.NewTicker(srv.conf.AutoSaveInterval)
		defer save.Stop()
		autosave = save.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			srv.Sweep()
		case <-autosave:
			if n, err := srv.SaveAll(); err != nil {
				srv.log.Warn("Autosave incomplete.", "players", n, "error", err)
			}
		}
	}
}

// Sweep drops the cooldowns of actors that are not online, expired temporary
// permissions and expired cache entries once. It returns how many cooldowns
// and grants were dropped.
func (srv *Server) Sweep() (cooldowns, grants int) {
	cooldowns = srv.engine.Cooldowns().Sweep(func(id uuid.UUID) bool {
		if id == ConsoleID {
			return true
		}
		_, ok := srv.Player(id)
		return ok
	})
	grants = srv.conf.Permissions.Expire(srv.conf.Clock())
	cached := srv.conf.Cache.Cleanup()
	if cooldowns > 0 || grants > 0 || cached > 0 {
		srv.log.Debug("Swept stale entries.", "cooldowns", cooldowns, "grants", grants, "cached", cached)
	}
	return cooldowns, grants
}

// Reload re-reads the permission store, the locale files and the whitelist.
// All of them are reloaded even if one fails.
func (srv *Server) Reload() error {
	start := time.Now()
	errs := []error{}
	if err := srv.conf.Permissions.Reload(); err != nil {
		errs = append(errs, fmt.Errorf("reload permissions: %w", err))
	}
	if err := srv.conf.Languages.Reload(); err != nil {
		errs = append(errs, fmt.Errorf("reload languages: %w", err))
	}
	if wl, ok := srv.Whitelist(); ok {
		if err := wl.Reload(); err != nil {
			errs = append(errs, fmt.Errorf("reload whitelist: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		srv.log.Error("Reload configuration.", "error", err)
		return err
	}
	srv.log.Info("Configuration reloaded.", "took", time.Since(start).Round(time.Microsecond))
	return nil
}

// Stats is a snapshot of server statistics.
type Stats struct {
	Players, MaxPlayers int
	// Commands is the number of registered sub-commands.
	Commands int
	// Cooldowns is the number of stored cooldown entries.
	Cooldowns int
	Plugins   int
	// Profiles is the number of player profiles stored by the player
	// provider, or -1 if they could not be counted.
	Profiles   int
	// Cache holds the counters of the cache.
	Cache      cache.Stats
	Uptime     time.Duration
	Goroutines int
	// HeapAlloc and HeapSys are the heap bytes in use and reserved.
	HeapAlloc, HeapSys uint64
	NumGC              uint32
}

// Stats collects a snapshot of server statistics.
func (srv *Server) Stats() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	profiles, err := srv.conf.PlayerProvider.Count()
	if err != nil {
		srv.log.Warn("Count player profiles.", "error", err)
		profiles = -1
	}
	return Stats{
		Players:    srv.PlayerCount(),
		MaxPlayers: srv.MaxPlayerCount(),
		Commands:   srv.reg.Len(),
		Cooldowns:  srv.engine.Cooldowns().Len(),
		Plugins:    len(srv.plugins.Infos()),
		Profiles:   profiles,
		Cache:      srv.conf.Cache.Stats(),
		Uptime:     srv.Uptime(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		HeapSys:    mem.HeapSys,
		NumGC:      mem.NumGC,
	}
}

// Close shuts all plugins down, saves the settings of online players and the
// cache and closes the player provider. Close may be called more than once.
func (srv *Server) Close() error {
	srv.closeOnce.Do(func() {
		srv.closed.Store(true)
		srv.plugins.Shutdown()
		_, saveErr := srv.SaveAll()
		if err := srv.conf.PlayerProvider.Close(); err != nil {
			saveErr = errors.Join(saveErr, fmt.Errorf("close player provider: %w", err))
		}
		srv.closeErr = saveErr
		srv.log.Info("Server closed.")
	})
	return srv.closeErr
}
