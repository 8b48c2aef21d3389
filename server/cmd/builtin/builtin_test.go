package builtin

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/google/uuid"
)

// console is a non-interactive source holding every permission that keeps
// the messages it receives.
type console struct {
	mu   sync.Mutex
	msgs []string
}

func (c *console) ID() uuid.UUID             { return server.ConsoleID }
func (c *console) Name() string              { return "Console" }
func (c *console) Interactive() bool         { return false }
func (c *console) HasPermission(string) bool { return true }

func (c *console) SendMessage(msg string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *console) HandleMessage(_ *server.Player, msg string) { c.SendMessage(msg) }

// take returns the messages received since the last call.
func (c *console) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.msgs
	c.msgs = nil
	return msgs
}

func newServer(t *testing.T, configure func(*server.Config)) *server.Server {
	t.Helper()
	conf := server.Config{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Label:   "plugintemplate",
		Aliases: []string{"pt"},
	}
	if configure != nil {
		configure(&conf)
	}
	srv := conf.New()
	t.Cleanup(func() { _ = srv.Close() })
	if err := Register(srv); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return srv
}

func join(t *testing.T, srv *server.Server, name string) (*server.Player, *console) {
	t.Helper()
	p, err := srv.Join(uuid.New(), name)
	if err != nil {
		t.Fatalf("Join(%s) error = %v", name, err)
	}
	rec := &console{}
	p.Handle(rec)
	rec.take()
	return p, rec
}

func run(t *testing.T, srv *server.Server, src interface {
	server.Source
	take() []string
}, line string) []string {
	t.Helper()
	srv.Execute(src, line)
	return src.take()
}

func TestRegisterTwice(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	if got, want := srv.Commands().Len(), len(Specs(srv)); got != want {
		t.Fatalf("registered %d sub-commands, want %d", got, want)
	}
	if err := Register(srv); !errors.Is(err, cmd.ErrDuplicateName) {
		t.Fatalf("second Register() error = %v, want %v", err, cmd.ErrDuplicateName)
	}
}

func TestHelp(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}

	lines := run(t, srv, c, "/pt help")
	if want := "Available commands (14):"; lines[0] != want {
		t.Fatalf("help header = %q, want %q", lines[0], want)
	}
	if len(lines) != 15 || lines[1] != "/pt help [command] - Shows available sub-commands and their usage." {
		t.Fatalf("help lines = %q", lines)
	}

	lines = run(t, srv, c, "/pt ? /RELOAD")
	want := []string{
		"/pt reload - Reloads permissions, languages and the whitelist.",
		"Aliases: rl",
		"Cooldown: 5 second(s)",
	}
	if !slices.Equal(lines, want) {
		t.Fatalf("help reload = %q, want %q", lines, want)
	}

	steve, rec := join(t, srv, "Steve")
	srv.Execute(steve, "/pt help")
	lines = rec.take()
	if len(lines) != 5 || lines[0] != "Available commands (4):" {
		t.Fatalf("help for a default player = %q", lines)
	}
	srv.Execute(steve, "/pt help stats")
	if got := rec.take(); !slices.Equal(got, []string{`Unknown sub-command "stats".`}) {
		t.Fatalf("help stats for a default player = %q", got)
	}
}

func TestReloadAndInfo(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}

	lines := run(t, srv, c, "/pt reload")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Configuration reloaded in ") {
		t.Fatalf("reload = %q", lines)
	}
	if got := run(t, srv, c, "/pt rl"); !slices.Equal(got, []string{"Please wait 5 second(s) before using this command again."}) {
		t.Fatalf("reload again = %q", got)
	}

	lines = run(t, srv, c, "/pt about")
	if lines[0] != "PluginTemplate version 1.0.0" || !strings.HasPrefix(lines[1], "Go runtime: ") {
		t.Fatalf("info = %q", lines)
	}
	if last := lines[len(lines)-1]; !strings.HasPrefix(last, "Uptime: ") {
		t.Fatalf("info last line = %q", last)
	}
}

func TestStatsListAndGC(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(c *server.Config) { c.MaxPlayers = 10 })
	join(t, srv, "Steve")
	join(t, srv, "alex")
	c := &console{}
	srv.Cache().Set("motd", "hello")
	srv.Cache().Get("motd")
	srv.Cache().Get("missing")

	lines := run(t, srv, c, "/pt stats")
	if lines[0] != "---- Server statistics ----" || lines[1] != "Players online: 2/10" {
		t.Fatalf("stats = %q", lines)
	}
	if lines[2] != "Registered sub-commands: 14" {
		t.Fatalf("stats commands line = %q", lines[2])
	}
	if want := "Cached values: 1 | Hits: 1 | Misses: 1 | Evictions: 0 | Hit rate: 50.0%"; lines[6] != want {
		t.Fatalf("stats cache line = %q, want %q", lines[6], want)
	}

	if got := run(t, srv, c, "/pt players"); !slices.Equal(got, []string{"There are 2/10 players online.", "alex, Steve"}) {
		t.Fatalf("list = %q", got)
	}

	lines = run(t, srv, c, "/pt gc")
	if len(lines) != 3 || lines[1] != "Stale cooldown entries removed: 0 | Expired grants removed: 0" {
		t.Fatalf("gc = %q", lines)
	}
}

func TestDebug(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}
	cases := []struct {
		line string
		want string
		on   bool
	}{
		{"/pt debug", "Debug mode enabled.", true},
		{"/pt debug", "Debug mode disabled.", false},
		{"/pt debug ON", "Debug mode enabled.", true},
		{"/pt debug nope", "Debug mode disabled.", false},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, []string{tc.want}) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
		if srv.Debug() != tc.on {
			t.Fatalf("Debug() after %s = %v, want %v", tc.line, srv.Debug(), tc.on)
		}
	}
}

func TestLang(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	steve, rec := join(t, srv, "Steve")

	srv.Execute(steve, "/pt lang")
	want := []string{
		"Your language is English (en-US).",
		"Available languages: Deutsch (de-DE), English (en-US), Español (es-ES)",
	}
	if got := rec.take(); !slices.Equal(got, want) {
		t.Fatalf("lang = %q, want %q", got, want)
	}
	srv.Execute(steve, "/pt lang de_DE")
	if got := rec.take(); !slices.Equal(got, []string{"Sprache auf Deutsch gesetzt."}) {
		t.Fatalf("lang de_DE = %q", got)
	}
	srv.Execute(steve, "/pt lang klingon")
	if got := rec.take(); !slices.Equal(got, []string{`Unbekannte Sprache "klingon".`}) {
		t.Fatalf("lang klingon = %q", got)
	}

	c := &console{}
	out := srv.Execute(c, "/pt lang")
	if out.Kind != cmd.ActorMismatch {
		t.Fatalf("console lang kind = %v, want %v", out.Kind, cmd.ActorMismatch)
	}
	if got := c.take(); !slices.Equal(got, []string{"This command can only be used by players."}) {
		t.Fatalf("console lang = %q", got)
	}
}

func TestPerm(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}
	cases := []struct {
		line string
		want string
	}{
		{"/pt perm Steve", "Steve is in groups: default"},
		{"/pt perm Steve admin", "Steve is now in group admin."},
		{"/pt perm steve", "steve is in groups: admin"},
		{"/pt perm Steve owner", `Unknown group "owner". Groups: admin, default`},
		{"/pt perm", "Usage: /pt perm <player> [group | grant <node> [duration] | revoke <node>]"},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, []string{tc.want}) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
	if !srv.Permissions().Has("steve", PermissionAdmin) {
		t.Fatalf("steve lacks %s after joining admin", PermissionAdmin)
	}
}

func TestPermTemporaryGrants(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}
	store := srv.Permissions()
	cases := []struct {
		line string
		want string
	}{
		{"/pt perm Alex grant plugintemplate.test 30s", "Granted plugintemplate.test to Alex for 30s."},
		{"/pt perm Alex grant plugintemplate.reload", "Granted plugintemplate.reload to Alex until they leave."},
		{"/pt perm Alex grant plugintemplate.gc soon", `Invalid duration "soon". Use a value such as 30s or 10m.`},
		{"/pt perm Alex grant plugintemplate.gc -5s", `Invalid duration "-5s". Use a value such as 30s or 10m.`},
		{"/pt perm Alex grant", "Usage: /pt perm <player> [group | grant <node> [duration] | revoke <node>]"},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, []string{tc.want}) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
	if !store.Has("alex", PermissionTest) || !store.Has("alex", PermissionReload) {
		t.Fatalf("alex lacks the granted nodes")
	}
	if store.Has("alex", "plugintemplate.gc") {
		t.Fatalf("a rejected grant was applied")
	}

	if got := run(t, srv, c, "/pt perm alex revoke plugintemplate.test"); !slices.Equal(got, []string{"Revoked plugintemplate.test from alex."}) {
		t.Fatalf("revoke = %q", got)
	}
	if store.Has("alex", PermissionTest) {
		t.Fatalf("alex keeps %s after revoke", PermissionTest)
	}
	if got := run(t, srv, c, "/pt perm alex revoke plugintemplate.test"); !slices.Equal(got, []string{"alex has no temporary grant of plugintemplate.test."}) {
		t.Fatalf("revoke again = %q", got)
	}

	if got := srv.Complete(c, "/pt perm Alex g"); !slices.Equal(got, []string{"grant"}) {
		t.Fatalf("Complete(perm Alex g) = %v, want [grant]", got)
	}
	if got := srv.Complete(c, "/pt perm Alex grant plugintemplate.test "); !slices.Equal(got, []string{"30s", "5m", "1h"}) {
		t.Fatalf("Complete(grant duration) = %v", got)
	}
}

type demoPlugin struct{}

func (demoPlugin) Name() string    { return "Demo" }
func (demoPlugin) Version() string { return "1.2.0" }
func (demoPlugin) Close() error    { return nil }

func TestPlugin(t *testing.T) {
	t.Parallel()

	c := &console{}
	disabled := newServer(t, nil)
	if got := run(t, disabled, c, "/pt plugin list"); !slices.Equal(got, []string{"The plugin system is disabled."}) {
		t.Fatalf("plugin list while disabled = %q", got)
	}

	srv := newServer(t, func(conf *server.Config) {
		conf.Plugins = plugin.Config{Enabled: true, Directory: t.TempDir()}
	})
	err := srv.ProvidePlugin("demo", func(api *server.PluginAPI) (server.Plugin, error) {
		return demoPlugin{}, api.RegisterCommand(cmd.Spec{
			Name:    "wave",
			Handler: func(cmd.Context) (any, error) { return "o/", nil },
		})
	})
	if err != nil {
		t.Fatalf("ProvidePlugin() error = %v", err)
	}

	cases := []struct {
		line string
		want []string
	}{
		{"/pt plugin list", []string{"No plugins loaded.", "Available plugins: demo"}},
		{"/pt plugin enable", []string{"A plugin name is required."}},
		{"/pt plugin enable demo", []string{"Enabled Demo."}},
		{"/pt plugin list", []string{"Demo v1.2.0 (demo)", "  Sub-commands: wave", "Available plugins: demo"}},
		{"/pt wave", []string{"o/"}},
		{"/pt plugin reload demo", []string{"Reloaded Demo."}},
		{"/pt plugin disable demo", []string{"Disabled Demo."}},
		{"/pt plugin disable demo", []string{"Plugin operation failed: plugin not found: demo"}},
		{"/pt plugin fly demo", []string{"Usage: /pt plugin <list|enable|disable|reload> [name]"}},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, tc.want) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestTestFeatures(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	c := &console{}
	cases := []struct {
		line string
		want []string
	}{
		{"/pt test database", []string{"Testing database...", "Database test passed (0 stored profiles)."}},
		{"/pt test localization", []string{"Testing localization...", "Localization test: Test message works!"}},
		{"/pt test permissions", []string{"Testing permissions...", "Permission test (plugintemplate.test): GRANTED"}},
		{"/pt test notifications", []string{"Testing notifications...", "This is a test notification!"}},
		{"/pt test what", []string{"Available test features: database, localization, permissions, notifications"}},
		{"/pt test", []string{"Usage: /pt test <feature>"}},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, tc.want) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestCooldownsAndKick(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	if err := srv.Permissions().SetGroup("steve", "admin"); err != nil {
		t.Fatalf("SetGroup() error = %v", err)
	}
	steve, rec := join(t, srv, "Steve")
	srv.Execute(steve, "/pt reload")
	rec.take()

	c := &console{}
	cases := []struct {
		line string
		want []string
	}{
		{"/pt cooldowns", []string{"1 cooldown entries tracked."}},
		{"/pt cd reset nobody", []string{"Player nobody is not online."}},
		{"/pt cd reset STEVE", []string{"Cleared 1 cooldown entries of Steve."}},
		{"/pt cd reset steve", []string{"Steve has no active cooldowns."}},
		{"/pt cd wipe", []string{"Usage: /pt cooldowns [reset <player>]"}},
		{"/pt kick steve being rude", []string{"Kicked Steve."}},
		{"/pt kick steve", []string{"Player steve is not online."}},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, tc.want) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
	if got := rec.take(); !slices.Equal(got, []string{"being rude"}) {
		t.Fatalf("kicked player received %q", got)
	}
	if srv.PlayerCount() != 0 {
		t.Fatalf("PlayerCount() after kick = %d, want 0", srv.PlayerCount())
	}
}

func TestWhitelist(t *testing.T) {
	t.Parallel()

	c := &console{}
	plain := newServer(t, nil)
	if got := run(t, plain, c, "/pt whitelist list"); !slices.Equal(got, []string{"The whitelist is not configured."}) {
		t.Fatalf("whitelist without one = %q", got)
	}

	wl, err := server.LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	if err != nil {
		t.Fatalf("LoadWhitelist() error = %v", err)
	}
	srv := newServer(t, func(conf *server.Config) { conf.Allower = wl })
	cases := []struct {
		line string
		want []string
	}{
		{"/pt wl add Alex", []string{"Added Alex to the whitelist."}},
		{"/pt wl add alex", []string{"alex is already on the whitelist."}},
		{"/pt wl on", []string{"The whitelist is now enforced."}},
		{"/pt wl list", []string{"Whitelist (enabled): 1 player(s).", "Alex"}},
		{"/pt wl remove Steve", []string{"Steve is not on the whitelist."}},
		{"/pt wl remove ALEX", []string{"Removed ALEX from the whitelist."}},
		{"/pt wl off", []string{"The whitelist is no longer enforced."}},
		{"/pt wl add", []string{"Usage: /pt whitelist <add|remove|list|on|off> [player]"}},
	}
	for _, tc := range cases {
		if got := run(t, srv, c, tc.line); !slices.Equal(got, tc.want) {
			t.Fatalf("%s = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestCompleters(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(conf *server.Config) {
		conf.Plugins = plugin.Config{Enabled: true, Directory: t.TempDir()}
	})
	if err := srv.ProvidePlugin("demo", func(*server.PluginAPI) (server.Plugin, error) { return demoPlugin{}, nil }); err != nil {
		t.Fatalf("ProvidePlugin() error = %v", err)
	}
	join(t, srv, "Steve")
	join(t, srv, "Sam")
	c := &console{}

	cases := map[string][]string{
		"/pt he":             {"help"},
		"/pt help st":        {"stats"},
		"/pt debug o":        {"on", "off"},
		"/pt lang ":          {"de-DE", "en-US", "es-ES"},
		"/pt perm s":         {"Sam", "Steve"},
		"/pt perm Steve a":   {"admin"},
		"/pt perm Steve a b": {},
		"/pt plugin e":       {"enable"},
		"/pt plugin enable ": {"demo"},
		"/pt test n":         {"notifications"},
		"/pt cd reset st":    {"Steve"},
		"/pt kick sa":        {"Sam"},
		"/pt wl r":           {"remove"},
	}
	for line, want := range cases {
		if got := srv.Complete(c, line); !slices.Equal(got, want) {
			t.Fatalf("Complete(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestSampleAverageCPULoad(t *testing.T) {
	sampleAverageCPULoad()
	time.Sleep(10 * time.Millisecond)
	if load, ok := sampleAverageCPULoad(); ok && (load < 0 || load > 100) {
		t.Fatalf("sampleAverageCPULoad() = %v, want a value within [0, 100]", load)
	}
}
