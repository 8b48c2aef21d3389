package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/df-mc/plugintemplate/server/cache"
	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/df-mc/plugintemplate/server/playerdb"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/google/uuid"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) HandleMessage(_ *Player, msg string) { r.SendMessage(msg) }

func (r *recorder) SendMessage(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

// testSource is a non-player Source holding every permission.
type testSource struct {
	recorder
	id uuid.UUID
}

func (s *testSource) ID() uuid.UUID             { return s.id }
func (s *testSource) Name() string              { return "Tester" }
func (s *testSource) Interactive() bool         { return false }
func (s *testSource) HasPermission(string) bool { return true }

func newTestServer(t *testing.T, configure func(*Config)) (*Server, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	conf := Config{
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Label:      "plugintemplate",
		Aliases:    []string{"pt"},
		Permission: "plugintemplate.use",
		Clock:      clock.Now,
	}
	if configure != nil {
		configure(&conf)
	}
	srv := conf.New()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, clock
}

func joinPlayer(t *testing.T, srv *Server, name string) (*Player, *recorder) {
	t.Helper()
	p, err := srv.Join(uuid.New(), name)
	if err != nil {
		t.Fatalf("Join(%s) error = %v", name, err)
	}
	rec := &recorder{}
	p.Handle(rec)
	return p, rec
}

func reloadSpec() cmd.Spec {
	return cmd.Spec{
		Name:            "reload",
		Aliases:         []string{"rl"},
		Permission:      "plugintemplate.reload",
		CooldownSeconds: 5,
		Handler:         func(cmd.Context) (any, error) { return "Reloaded.", nil },
	}
}

func TestServerJoinQuit(t *testing.T) {
	t.Parallel()

	db, err := playerdb.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	srv, _ := newTestServer(t, func(c *Config) {
		c.PlayerProvider = db
		c.MaxPlayers = 2
	})

	steve, rec := joinPlayer(t, srv, "Steve")
	if got := rec.All(); !slices.Equal(got, []string{"Welcome, Steve!"}) {
		t.Fatalf("messages after Join = %v, want the queued welcome", got)
	}
	if _, err := srv.Join(steve.ID(), "Other"); !errors.Is(err, ErrAlreadyOnline) {
		t.Fatalf("Join(same id) error = %v, want %v", err, ErrAlreadyOnline)
	}
	if _, err := srv.Join(uuid.New(), "STEVE"); !errors.Is(err, ErrAlreadyOnline) {
		t.Fatalf("Join(same name) error = %v, want %v", err, ErrAlreadyOnline)
	}
	if _, err := srv.Join(uuid.Nil, "Nobody"); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("Join(nil id) error = %v, want %v", err, ErrInvalidPlayer)
	}
	joinPlayer(t, srv, "Alex")
	if _, err := srv.Join(uuid.New(), "Third"); !errors.Is(err, ErrServerFull) {
		t.Fatalf("Join(third) error = %v, want %v", err, ErrServerFull)
	}

	names := []string{}
	for _, p := range srv.Players() {
		names = append(names, p.Name())
	}
	if !slices.Equal(names, []string{"Alex", "Steve"}) {
		t.Fatalf("Players() = %v, want [Alex Steve]", names)
	}
	if p, ok := srv.PlayerByName("steve"); !ok || p != steve {
		t.Fatalf("PlayerByName(steve) = %v, %v", p, ok)
	}

	srv.Commands().MustRegister(cmd.Spec{Name: "ping", Handler: func(cmd.Context) (any, error) { return "pong", nil }})
	srv.Execute(steve, "/pt ping")

	if !srv.Quit(steve.ID()) {
		t.Fatalf("Quit() = false for an online player")
	}
	if srv.Quit(steve.ID()) {
		t.Fatalf("Quit() = true for an offline player")
	}
	settings, ok, err := db.Load(steve.ID())
	if err != nil || !ok {
		t.Fatalf("Load() after Quit = %v, %v", ok, err)
	}
	if settings.Name != "Steve" || settings.Commands != 1 {
		t.Fatalf("saved settings = %+v, want name Steve and 1 command", settings)
	}
}

func TestServerJoinWhitelist(t *testing.T) {
	t.Parallel()

	wl, err := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	if err != nil {
		t.Fatalf("LoadWhitelist() error = %v", err)
	}
	wl.SetEnabled(true)
	if _, err := wl.Add("Alex"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	srv, _ := newTestServer(t, func(c *Config) { c.Allower = wl })

	if _, err := srv.Join(uuid.New(), "Steve"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Join(Steve) error = %v, want %v", err, ErrNotAllowed)
	}
	if _, err := srv.Join(uuid.New(), "alex"); err != nil {
		t.Fatalf("Join(alex) error = %v", err)
	}
}

func TestServerExecuteFeedback(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	srv.Commands().MustRegister(reloadSpec())
	console := &testSource{id: ConsoleID}

	cases := []struct {
		line string
		kind cmd.Kind
		want string
	}{
		{"/pt", cmd.NoSubCommand, "PluginTemplate 1.0.0. Type /pt help for a list of commands."},
		{"/PT nope", cmd.NoSubCommand, `Unknown sub-command "nope". Type /pt help for a list of commands.`},
		{"/other reload", cmd.NoSubCommand, `Unknown command "other".`},
		{"plugintemplate RELOAD", cmd.Success, "Reloaded."},
	}
	for _, c := range cases {
		out := srv.Execute(console, c.line)
		if out.Kind != c.kind {
			t.Fatalf("Execute(%q) kind = %v, want %v", c.line, out.Kind, c.kind)
		}
		if got := console.Last(); got != c.want {
			t.Fatalf("Execute(%q) feedback = %q, want %q", c.line, got, c.want)
		}
	}
	if out := srv.Execute(console, "   "); out.Kind != cmd.NoSubCommand {
		t.Fatalf("Execute(blank) kind = %v, want %v", out.Kind, cmd.NoSubCommand)
	}
}

func TestServerReloadScenario(t *testing.T) {
	t.Parallel()

	srv, clock := newTestServer(t, nil)
	srv.Commands().MustRegister(reloadSpec())
	steve, rec := joinPlayer(t, srv, "Steve")

	if out := srv.Execute(steve, "/pt reload"); out.Kind != cmd.PermissionDenied {
		t.Fatalf("Execute() without permission = %v, want %v", out.Kind, cmd.PermissionDenied)
	}
	if got := rec.Last(); got != "You do not have permission to use this command." {
		t.Fatalf("feedback = %q", got)
	}
	if err := srv.Permissions().SetGroup("steve", "admin"); err != nil {
		t.Fatalf("SetGroup() error = %v", err)
	}

	if out := srv.Execute(steve, "/pt reload"); out.Kind != cmd.Success {
		t.Fatalf("Execute() at t0 = %v, want %v", out.Kind, cmd.Success)
	}
	clock.Advance(3 * time.Second)
	out := srv.Execute(steve, "/pt rl")
	if out.Kind != cmd.CooldownActive || out.Remaining != 2 {
		t.Fatalf("Execute() at t0+3s = %v (%d), want %v (2)", out.Kind, out.Remaining, cmd.CooldownActive)
	}
	if got := rec.Last(); got != "Please wait 2 second(s) before using this command again." {
		t.Fatalf("feedback = %q", got)
	}
	clock.Advance(2 * time.Second)
	if out := srv.Execute(steve, "/pt reload"); out.Kind != cmd.Success {
		t.Fatalf("Execute() at t0+5s = %v, want %v", out.Kind, cmd.Success)
	}
}

func TestServerRootPermissionAndLocale(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	srv.Commands().MustRegister(reloadSpec())
	alex, rec := joinPlayer(t, srv, "Alex")
	if _, ok := alex.SetLocale("de_DE"); !ok {
		t.Fatalf("SetLocale(de_DE) = false")
	}
	if locale, ok := alex.SetLocale("xx"); ok || alex.Locale() != "de-DE" {
		t.Fatalf("SetLocale(xx) = %q, %v; locale now %q", locale, ok, alex.Locale())
	}

	srv.Execute(alex, "/pt reload")
	if got := rec.Last(); got != "Du hast keine Berechtigung, diesen Befehl zu benutzen." {
		t.Fatalf("German feedback = %q", got)
	}

	if err := srv.Permissions().Grant("alex", "-plugintemplate.use", 0); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if out := srv.Execute(alex, "/pt"); out.Kind != cmd.PermissionDenied {
		t.Fatalf("Execute() without root permission = %v, want %v", out.Kind, cmd.PermissionDenied)
	}
	if got := srv.Complete(alex, "/pt "); len(got) != 0 {
		t.Fatalf("Complete() without root permission = %v, want none", got)
	}
}

func TestServerFloodLimit(t *testing.T) {
	t.Parallel()

	srv, clock := newTestServer(t, func(c *Config) {
		c.FloodRate = 1
		c.FloodBurst = 2
	})
	steve, rec := joinPlayer(t, srv, "Steve")
	console := &testSource{id: ConsoleID}

	for i := 0; i < 2; i++ {
		if out := srv.Execute(steve, "/pt"); out.Kind != cmd.NoSubCommand {
			t.Fatalf("Execute() #%d = %v, want %v", i, out.Kind, cmd.NoSubCommand)
		}
	}
	if out := srv.Execute(steve, "/pt"); out.Kind != cmd.CooldownActive {
		t.Fatalf("Execute() past burst = %v, want %v", out.Kind, cmd.CooldownActive)
	}
	if got := rec.Last(); got != "You are sending commands too quickly. Slow down." {
		t.Fatalf("flood feedback = %q", got)
	}
	for i := 0; i < 5; i++ {
		if out := srv.Execute(console, "/pt"); out.Kind != cmd.NoSubCommand {
			t.Fatalf("console Execute() #%d = %v, want no flood limit", i, out.Kind)
		}
	}
	clock.Advance(time.Second)
	if out := srv.Execute(steve, "/pt"); out.Kind != cmd.NoSubCommand {
		t.Fatalf("Execute() after refill = %v, want %v", out.Kind, cmd.NoSubCommand)
	}
}

func TestServerOutputResult(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	srv.Commands().MustRegister(cmd.Spec{
		Name:    "hello",
		MaxArgs: cmd.Unbounded,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			o.Printt("player.join", ctx.Actor.Name)
			o.Printf("%d args", ctx.Len())
			return o, nil
		},
	})
	steve, rec := joinPlayer(t, srv, "Steve")
	steve.SetLocale("es-ES")

	srv.Execute(steve, "/pt hello a b")
	got := rec.All()
	want := []string{"Welcome, Steve!", "¡Bienvenido, Steve!", "2 args"}
	if !slices.Equal(got, want) {
		t.Fatalf("messages = %q, want %q", got, want)
	}
}

func TestServerComplete(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	srv.Commands().MustRegister(
		reloadSpec(),
		cmd.Spec{
			Name:      "remove",
			MaxArgs:   1,
			Handler:   func(cmd.Context) (any, error) { return nil, nil },
			Completer: func(cmd.Context) []string { return []string{"a", "b"} },
		},
	)
	console := &testSource{id: ConsoleID}

	cases := map[string][]string{
		"":             {"plugintemplate", "pt"},
		"/p":           {"plugintemplate", "pt"},
		"pl":           {"plugintemplate"},
		"/pt re":       {"reload", "remove"},
		"/pt ":         {"reload", "rl", "remove"},
		"/pt remove ":  {"a", "b"},
		"/other re":    {},
		"/pt unknown ": {},
	}
	for line, want := range cases {
		if got := srv.Complete(console, line); !slices.Equal(got, want) {
			t.Fatalf("Complete(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestServerSweep(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	srv.Commands().MustRegister(cmd.Spec{Name: "slow", CooldownSeconds: 60, Handler: func(cmd.Context) (any, error) { return nil, nil }})
	steve, _ := joinPlayer(t, srv, "Steve")
	stranger := &testSource{id: uuid.New()}
	console := &testSource{id: ConsoleID}

	srv.Execute(steve, "/pt slow")
	srv.Execute(stranger, "/pt slow")
	srv.Execute(console, "/pt slow")

	cooldowns, _ := srv.Sweep()
	if cooldowns != 1 {
		t.Fatalf("Sweep() removed %d cooldowns, want 1", cooldowns)
	}
	if got := srv.Engine().Cooldowns().Len(); got != 2 {
		t.Fatalf("cooldowns after Sweep = %d, want 2", got)
	}

	srv.Quit(steve.ID())
	if got := srv.Engine().Cooldowns().Len(); got != 1 {
		t.Fatalf("cooldowns after Quit = %d, want 1", got)
	}
}

func TestServerRunSweeperStops(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func(c *Config) { c.SweepInterval = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunSweeper(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSweeper() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunSweeper() did not return after cancel")
	}
}

func TestServerCacheCleanup(t *testing.T) {
	t.Parallel()

	srv, clock := newTestServer(t, nil)
	steve, _ := joinPlayer(t, srv, "Steve")
	alex, _ := joinPlayer(t, srv, "Alex")
	c := srv.Cache()
	c.Set(cache.PlayerKey(steve.ID(), "last"), "4")
	c.Set(cache.PlayerKey(steve.ID(), "greet"), "Alex")
	c.Set(cache.PlayerKey(alex.ID(), "last"), "6")
	c.SetTTL("motd", "hello", 0)

	srv.Quit(steve.ID())
	if c.Contains(cache.PlayerKey(steve.ID(), "last")) || c.Contains(cache.PlayerKey(steve.ID(), "greet")) {
		t.Fatalf("cache entries of Steve kept after Quit")
	}
	if !c.Contains(cache.PlayerKey(alex.ID(), "last")) {
		t.Fatalf("cache entry of Alex dropped when Steve quit")
	}

	clock.Advance(cache.DefaultTTL)
	srv.Sweep()
	if got := srv.Stats().Cache; got.Size != 1 || got.Evictions != 1 {
		t.Fatalf("Stats().Cache after Sweep = %+v, want 1 entry and 1 eviction", got)
	}
}

func TestServerSaveAll(t *testing.T) {
	t.Parallel()

	db, err := playerdb.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	srv, clock := newTestServer(t, func(c *Config) {
		c.PlayerProvider = db
		c.CacheFile = cacheFile
	})
	srv.Commands().MustRegister(cmd.Spec{Name: "noop", Handler: func(cmd.Context) (any, error) { return nil, nil }})
	steve, _ := joinPlayer(t, srv, "Steve")
	alex, _ := joinPlayer(t, srv, "Alex")
	srv.Execute(steve, "/pt noop")
	srv.Execute(steve, "/pt noop")
	steve.SetLocale("de-DE")
	srv.Cache().Set("motd", "hello")
	clock.Advance(time.Minute)

	n, err := srv.SaveAll()
	if err != nil || n != 2 {
		t.Fatalf("SaveAll() = %d, %v, want 2 players", n, err)
	}
	settings, ok, err := db.Load(steve.ID())
	if err != nil || !ok {
		t.Fatalf("Load(Steve) = %v, %v", ok, err)
	}
	if settings.Commands != 2 || settings.Locale != "de-DE" || !settings.LastSeen.Equal(clock.Now()) {
		t.Fatalf("saved settings of Steve = %+v", settings)
	}
	if _, ok, _ := db.Load(alex.ID()); !ok {
		t.Fatalf("settings of Alex not saved")
	}

	loaded := cache.New[string](0, clock.Now)
	if n, err := loaded.Load(cacheFile); err != nil || n != 1 {
		t.Fatalf("Load(cache file) = %d, %v, want 1 entry", n, err)
	}
}

func TestServerRunSweeperAutosaves(t *testing.T) {
	t.Parallel()

	db, err := playerdb.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	srv, clock := newTestServer(t, func(c *Config) {
		c.PlayerProvider = db
		c.SweepInterval = time.Hour
		c.AutoSaveInterval = time.Millisecond
	})
	steve, _ := joinPlayer(t, srv, "Steve")
	steve.SetLocale("es-ES")
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunSweeper(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		settings, ok, err := db.Load(steve.ID())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if ok && settings.Locale == "es-ES" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("settings of an online player were not autosaved")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type greeter struct{ events atomic.Int32 }

func (g *greeter) Name() string    { return "Greeter" }
func (g *greeter) Version() string { return "0.1.0" }
func (g *greeter) Close() error    { return nil }

type commandCounter struct {
	plugin.NopHandler
	n *atomic.Int32
}

func (c commandCounter) HandleCommand(PluginEvent) { c.n.Add(1) }

func TestServerPlugins(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func(c *Config) {
		c.Plugins = plugin.Config{Enabled: true, Directory: t.TempDir()}
	})
	g := &greeter{}
	err := srv.ProvidePlugin("greeter", func(api *PluginAPI) (Plugin, error) {
		api.Events().Subscribe(commandCounter{n: &g.events})
		return g, api.RegisterCommand(cmd.Spec{
			Name: "hi",
			Handler: func(ctx cmd.Context) (any, error) {
				return "hi " + ctx.Actor.Name, nil
			},
		})
	})
	if err != nil {
		t.Fatalf("ProvidePlugin() error = %v", err)
	}
	info, err := srv.EnablePlugin("greeter")
	if err != nil {
		t.Fatalf("EnablePlugin() error = %v", err)
	}
	if info.Name != "Greeter" || info.Version != "0.1.0" {
		t.Fatalf("EnablePlugin() info = %+v", info)
	}

	console := &testSource{id: ConsoleID}
	if out := srv.Execute(console, "/pt hi"); out.Kind != cmd.Success || console.Last() != "hi Tester" {
		t.Fatalf("Execute(hi) = %v, feedback %q", out.Kind, console.Last())
	}
	if g.events.Load() != 1 {
		t.Fatalf("plugin saw %d command events, want 1", g.events.Load())
	}

	if _, err := srv.DisablePlugin("greeter"); err != nil {
		t.Fatalf("DisablePlugin() error = %v", err)
	}
	if out := srv.Execute(console, "/pt hi"); out.Kind != cmd.NoSubCommand {
		t.Fatalf("Execute(hi) after disable = %v, want %v", out.Kind, cmd.NoSubCommand)
	}
}

func TestServerStatsAndClose(t *testing.T) {
	t.Parallel()

	srv, clock := newTestServer(t, nil)
	srv.Commands().MustRegister(reloadSpec())
	joinPlayer(t, srv, "Steve")
	clock.Advance(time.Minute)

	stats := srv.Stats()
	if stats.Players != 1 || stats.MaxPlayers != 2 || stats.Commands != 1 || stats.Uptime != time.Minute {
		t.Fatalf("Stats() = %+v", stats)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := srv.Join(uuid.New(), "Late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Join() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestServerDebugToggle(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	if srv.Debug() {
		t.Fatalf("Debug() = true by default")
	}
	srv.SetDebug(true)
	if !srv.Debug() {
		t.Fatalf("Debug() = false after SetDebug(true)")
	}
	srv.SetDebug(false)
	if srv.Debug() {
		t.Fatalf("Debug() = true after SetDebug(false)")
	}
}
