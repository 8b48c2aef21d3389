package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/df-mc/plugintemplate/server/cache"
	"github.com/df-mc/plugintemplate/server/lang"
	"github.com/df-mc/plugintemplate/server/perm"
	"github.com/df-mc/plugintemplate/server/playerdb"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/pelletier/go-toml"
)

// EnvPrefix is the prefix of environment variables that override values of a
// UserConfig.
const EnvPrefix = "PLUGINTEMPLATE_"

// Config contains options for starting a Server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// LogLevel is the level variable of the handler behind Log. The debug
	// sub-command switches it between debug and LevelInfo. If nil, a new
	// LevelVar is created, which then has no effect on Log.
	LogLevel *slog.LevelVar
	// LevelInfo is the level LogLevel returns to when debug mode is turned
	// off.
	LevelInfo slog.Level
	// Name and Version are shown in the welcome text and by the info
	// sub-command.
	Name, Version string
	// Label is the root command label, such as "plugintemplate" for
	// "/plugintemplate reload". Aliases are alternative labels.
	Label   string
	Aliases []string
	// Permission is the node required to use the root command at all. It may
	// be empty.
	Permission string
	// MaxPlayers is the maximum amount of players allowed to be online at
	// once. If 0, the amount is unlimited.
	MaxPlayers int
	// FloodRate is the number of sub-command lines per second a player may
	// send on average, with bursts of up to FloodBurst. A FloodRate of 0 or
	// lower disables flood protection.
	FloodRate  float64
	FloodBurst int
	// SweepInterval is the interval at which RunSweeper drops cooldowns of
	// offline actors and expired temporary permissions. If 0, it is set to
	// 30 seconds.
	SweepInterval time.Duration
	// AutoSaveInterval is the interval at which RunSweeper saves the settings
	// of online players and the cache. If 0, it is set to 5 minutes. A
	// negative interval turns autosaving off.
	AutoSaveInterval time.Duration
	// DefaultLocale is the locale of the console and of players who did not
	// pick one. If empty, lang.BaseLocale is used.
	DefaultLocale string
	// Permissions holds the permission groups. If nil, an in-memory store
	// with the default groups is used.
	Permissions *perm.Store
	// Languages holds the message catalogs. If nil, the embedded catalogs are
	// used.
	Languages *lang.Bundle
	// PlayerProvider stores player settings. If nil, settings are not
	// persisted.
	PlayerProvider playerdb.Provider
	// Cache holds short-lived values of commands and plugins. Entries keyed
	// with cache.PlayerKey are dropped when the player leaves. If nil, an
	// empty cache keeping entries for cache.DefaultTTL is used.
	Cache *cache.Cache[string]
	// CacheFile is the file the cache is saved to by SaveAll and Close. If
	// empty, the cache is not saved.
	CacheFile string
	// Allower decides which players may join. If nil, everyone may join.
	Allower Allower
	// Plugins configures the plugin manager.
	Plugins plugin.Config
	// Clock returns the current time. If nil, time.Now is used.
	Clock func() time.Time
}

// New creates a Server using fields of conf. Sub-commands may be registered
// on the Server's registry right away.
func (conf Config) New() *Server {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.LogLevel == nil {
		conf.LogLevel = new(slog.LevelVar)
		conf.LogLevel.Set(conf.LevelInfo)
	}
	if conf.Name == "" {
		conf.Name = "PluginTemplate"
	}
	if conf.Version == "" {
		conf.Version = "1.0.0"
	}
	conf.Label = strings.ToLower(strings.TrimSpace(conf.Label))
	if conf.Label == "" {
		conf.Label = "plugintemplate"
	}
	aliases := make([]string, 0, len(conf.Aliases))
	for _, alias := range conf.Aliases {
		if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" && alias != conf.Label && !slices.Contains(aliases, alias) {
			aliases = append(aliases, alias)
		}
	}
	conf.Aliases = aliases
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = 30 * time.Second
	}
	if conf.AutoSaveInterval == 0 {
		conf.AutoSaveInterval = 5 * time.Minute
	}
	if conf.Permissions == nil {
		conf.Permissions = perm.NewMemory()
	}
	if conf.Languages == nil {
		b, err := lang.Load("")
		if err != nil {
			panic("config: load embedded languages: " + err.Error())
		}
		conf.Languages = b
	}
	if conf.DefaultLocale == "" {
		conf.DefaultLocale = lang.BaseLocale
	} else {
		matched, ok := conf.Languages.Match(conf.DefaultLocale)
		if !ok {
			conf.Log.Warn("Unknown default locale, using base locale.", "locale", conf.DefaultLocale, "base", lang.BaseLocale)
		}
		conf.DefaultLocale = matched
	}
	if conf.PlayerProvider == nil {
		conf.PlayerProvider = playerdb.NopProvider{}
	}
	if conf.Allower == nil {
		conf.Allower = allower{}
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if conf.Cache == nil {
		conf.Cache = cache.New[string](0, conf.Clock)
	}
	return newServer(conf)
}

// UserConfig is the user configuration of a Server. It holds settings that
// may be written to and read from a TOML file and overridden through
// environment variables. UserConfig can be converted to a Config by calling
// UserConfig.Config().
type UserConfig struct {
	Server struct {
		// Name is the display name of the server.
		Name string `env:"NAME"`
		// Label is the root command label.
		Label string `env:"LABEL"`
		// Aliases are alternative root command labels.
		Aliases []string `env:"ALIASES"`
		// Permission is the node required to use the root command at all.
		Permission string `env:"PERMISSION"`
	} `envPrefix:"SERVER_"`
	Commands struct {
		// FloodRate is the average number of command lines per second a player
		// may send. Set to 0 to disable flood protection.
		FloodRate float64 `env:"FLOOD_RATE"`
		// FloodBurst is the number of command lines a player may send at once.
		FloodBurst int `env:"FLOOD_BURST"`
		// SweepInterval is how often stale cooldowns and expired temporary
		// permissions are dropped, such as "30s".
		SweepInterval string `env:"SWEEP_INTERVAL"`
		// AutoSaveInterval is how often the settings of online players and the
		// cache are saved, such as "5m". Set to "0s" to only save on quit and
		// shutdown.
		AutoSaveInterval string `env:"AUTOSAVE_INTERVAL"`
		// CacheTTL is how long cached values live, such as "1h".
		CacheTTL string `env:"CACHE_TTL"`
		// CacheFile is the JSON file the cache is kept in across restarts.
		// Leave empty to keep the cache in memory only.
		CacheFile string `env:"CACHE_FILE"`
		// PermissionsFile is the TOML file holding permission groups.
		PermissionsFile string `env:"PERMISSIONS_FILE"`
		// LanguageFolder holds locale files extending or overriding the
		// embedded ones.
		LanguageFolder string `env:"LANGUAGE_FOLDER"`
		// DefaultLocale is the locale of the console and of players who did
		// not pick one.
		DefaultLocale string `env:"DEFAULT_LOCALE"`
	} `envPrefix:"COMMANDS_"`
	Players struct {
		// MaxCount is the maximum amount of players allowed to be online at
		// the same time. If set to 0, it is unlimited.
		MaxCount int `env:"MAX_COUNT"`
		// SaveData controls whether a player's settings will be saved and
		// loaded. If true, the server will use the LevelDB player database.
		SaveData bool `env:"SAVE_DATA"`
		// Folder controls where the player database is stored.
		Folder string `env:"FOLDER"`
	} `envPrefix:"PLAYERS_"`
	Whitelist struct {
		// Enabled controls if the whitelist should be enforced for players
		// attempting to join.
		Enabled bool `env:"ENABLED"`
		// File is the path to the whitelist TOML file that stores player
		// names.
		File string `env:"FILE"`
	} `envPrefix:"WHITELIST_"`
	Plugins struct {
		// Enabled controls whether the plugin system should start.
		Enabled bool `env:"ENABLED"`
		// Folder is the base directory for plugin data.
		Folder string `env:"FOLDER"`
		// DataFolder is where plugin data directories are created. Relative
		// paths are resolved against Folder.
		DataFolder string `env:"DATA_FOLDER"`
		// Autoload enables every built-in plugin factory on start.
		Autoload bool `env:"AUTOLOAD"`
		// Load lists the plugin factories to enable when Autoload is false.
		Load []string `env:"LOAD"`
	} `envPrefix:"PLUGINS_"`
	Log struct {
		// Level is the minimum level logged: debug, info, warn or error.
		Level string `env:"LEVEL"`
		// File is an optional file logs are also written to. It is rotated
		// once it grows beyond MaxSizeMB.
		File       string `env:"FILE"`
		MaxSizeMB  int    `env:"MAX_SIZE_MB"`
		MaxBackups int    `env:"MAX_BACKUPS"`
		MaxAgeDays int    `env:"MAX_AGE_DAYS"`
		Compress   bool   `env:"COMPRESS"`
	} `envPrefix:"LOG_"`
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Server. An error is returned if loading permissions, languages
// or the player database failed.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	var err error
	conf := Config{
		Log:           log,
		Name:          uc.Server.Name,
		Label:         uc.Server.Label,
		Aliases:       slices.Clone(uc.Server.Aliases),
		Permission:    strings.TrimSpace(uc.Server.Permission),
		MaxPlayers:    uc.Players.MaxCount,
		FloodRate:     uc.Commands.FloodRate,
		FloodBurst:    uc.Commands.FloodBurst,
		DefaultLocale: uc.Commands.DefaultLocale,
		CacheFile:     strings.TrimSpace(uc.Commands.CacheFile),
		Plugins: plugin.Config{
			Enabled:       uc.Plugins.Enabled,
			Directory:     uc.Plugins.Folder,
			DataDirectory: uc.Plugins.DataFolder,
			Autoload:      uc.Plugins.Autoload,
			Load:          slices.Clone(uc.Plugins.Load),
		},
	}
	conf.LevelInfo, err = ParseLevel(uc.Log.Level)
	if err != nil {
		return conf, err
	}
	if s := strings.TrimSpace(uc.Commands.SweepInterval); s != "" {
		conf.SweepInterval, err = time.ParseDuration(s)
		if err != nil {
			return conf, fmt.Errorf("parse sweep interval: %w", err)
		}
	}
	if s := strings.TrimSpace(uc.Commands.AutoSaveInterval); s != "" {
		conf.AutoSaveInterval, err = time.ParseDuration(s)
		if err != nil {
			return conf, fmt.Errorf("parse autosave interval: %w", err)
		}
		if conf.AutoSaveInterval == 0 {
			conf.AutoSaveInterval = -1
		}
	}
	var cacheTTL time.Duration
	if s := strings.TrimSpace(uc.Commands.CacheTTL); s != "" {
		cacheTTL, err = time.ParseDuration(s)
		if err != nil {
			return conf, fmt.Errorf("parse cache ttl: %w", err)
		}
	}
	conf.Cache = cache.New[string](cacheTTL, nil)
	if conf.CacheFile != "" {
		n, err := conf.Cache.Load(conf.CacheFile)
		if err != nil {
			return conf, fmt.Errorf("load cache: %w", err)
		}
		if log != nil && n > 0 {
			log.Info("Cache loaded.", "entries", n, "file", conf.CacheFile)
		}
	}
	permissionsFile := strings.TrimSpace(uc.Commands.PermissionsFile)
	if permissionsFile == "" {
		permissionsFile = "permissions.toml"
	}
	conf.Permissions, err = perm.Load(permissionsFile)
	if err != nil {
		return conf, fmt.Errorf("load permissions: %w", err)
	}
	conf.Languages, err = lang.Load(uc.Commands.LanguageFolder)
	if err != nil {
		return conf, fmt.Errorf("load languages: %w", err)
	}
	whitelistFile := strings.TrimSpace(uc.Whitelist.File)
	if whitelistFile == "" {
		whitelistFile = "whitelist.toml"
	}
	wl, err := LoadWhitelist(whitelistFile)
	if err != nil {
		return conf, fmt.Errorf("load whitelist: %w", err)
	}
	wl.SetEnabled(uc.Whitelist.Enabled)
	conf.Allower = wl
	if uc.Players.SaveData {
		conf.PlayerProvider, err = playerdb.Open(uc.Players.Folder)
		if err != nil {
			return conf, fmt.Errorf("create player provider: %w", err)
		}
	}
	return conf, nil
}

// ParseLevel parses a log level name. An empty name is LevelInfo.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Server.Name = "PluginTemplate"
	c.Server.Label = "plugintemplate"
	c.Server.Aliases = []string{"pt", "ptemplate"}
	c.Server.Permission = "plugintemplate.use"
	c.Commands.FloodRate = 4
	c.Commands.FloodBurst = 8
	c.Commands.SweepInterval = "30s"
	c.Commands.AutoSaveInterval = "5m"
	c.Commands.CacheTTL = "1h"
	c.Commands.CacheFile = "cache.json"
	c.Commands.PermissionsFile = "permissions.toml"
	c.Commands.LanguageFolder = "lang"
	c.Commands.DefaultLocale = lang.BaseLocale
	c.Players.MaxCount = 0
	c.Players.SaveData = true
	c.Players.Folder = "players"
	c.Whitelist.File = "whitelist.toml"
	c.Plugins.Enabled = true
	c.Plugins.Folder = "plugins"
	c.Plugins.Autoload = true
	c.Plugins.Load = []string{}
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 16
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 14
	return c
}

// LoadUserConfig reads the UserConfig stored in the TOML file at path. If the
// file does not exist, it is created holding DefaultConfig. Keys missing from
// the file keep their default values. Environment overrides are applied
// afterwards.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		encoded, err := toml.Marshal(c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return c, fmt.Errorf("create config directory: %w", err)
			}
		}
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return c, fmt.Errorf("create default config: %w", err)
		}
	case err != nil:
		return c, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return c, err
	}
	return c, nil
}

// ApplyEnv overrides fields of uc with the environment variables prefixed
// with EnvPrefix, such as PLUGINTEMPLATE_SERVER_NAME.
func (uc *UserConfig) ApplyEnv() error {
	if err := env.ParseWithOptions(uc, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Allower decides if a player may join the server.
type Allower interface {
	// Allow returns true if the player passed may join. If false, the reason
	// is sent to the player.
	Allow(name string) (string, bool)
}

type allower struct{}

func (allower) Allow(string) (string, bool) { return "", true }
