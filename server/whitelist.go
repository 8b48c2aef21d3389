package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pelletier/go-toml"
)

var (
	// ErrWhitelistUnavailable is returned when the whitelist is not configured.
	ErrWhitelistUnavailable = errors.New("whitelist is not configured")
	// ErrWhitelistInvalidName is returned when a blank player name is passed
	// to Add or Remove.
	ErrWhitelistInvalidName = errors.New("invalid player name")
)

// Whitelist is an Allower that admits only listed player names while it is
// enabled. Names are matched case-insensitively and kept in a TOML file with
// the casing they were added with.
type Whitelist struct {
	path    string
	enabled atomic.Bool

	mu    sync.RWMutex
	names map[string]string
}

type whitelistFile struct {
	Players []string `toml:"players"`
}

// LoadWhitelist reads the whitelist at path, creating an empty file if it
// does not exist. The whitelist returned is disabled.
func LoadWhitelist(path string) (*Whitelist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("whitelist path must not be empty")
	}
	w := &Whitelist{path: path}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Enabled reports if the whitelist is enforced on join.
func (w *Whitelist) Enabled() bool {
	return w != nil && w.enabled.Load()
}

// SetEnabled turns enforcement of the whitelist on or off.
func (w *Whitelist) SetEnabled(enabled bool) {
	if w != nil {
		w.enabled.Store(enabled)
	}
}

// Allow admits everyone while the whitelist is disabled and only listed
// names while it is enabled.
func (w *Whitelist) Allow(name string) (string, bool) {
	if w.Enabled() && !w.Contains(name) {
		return "You are not whitelisted on this server.", false
	}
	return "", true
}

// Contains reports if name is listed, ignoring case.
func (w *Whitelist) Contains(name string) bool {
	if w == nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.names[whitelistKey(name)]
	return ok
}

// Players returns the listed names sorted case-insensitively.
func (w *Whitelist) Players() []string {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedNames(w.names)
}

// Reload replaces the listed names with the contents of the file. A missing
// file is created empty.
func (w *Whitelist) Reload() error {
	if w == nil {
		return ErrWhitelistUnavailable
	}
	names, err := readWhitelist(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		names = map[string]string{}
		err = writeWhitelist(w.path, nil)
	}
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.names = names
	w.mu.Unlock()
	return nil
}

// Add lists name. It returns false if the name was listed already.
func (w *Whitelist) Add(name string) (bool, error) {
	return w.change(name, func(names map[string]string, key, name string) bool {
		if _, ok := names[key]; ok {
			return false
		}
		names[key] = name
		return true
	})
}

// Remove unlists name. It returns false if the name was not listed.
func (w *Whitelist) Remove(name string) (bool, error) {
	return w.change(name, func(names map[string]string, key, _ string) bool {
		if _, ok := names[key]; !ok {
			return false
		}
		delete(names, key)
		return true
	})
}

// change applies apply to a copy of the names and stores the copy once it
// was written to disk.
func (w *Whitelist) change(name string, apply func(names map[string]string, key, name string) bool) (bool, error) {
	if w == nil {
		return false, ErrWhitelistUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrWhitelistInvalidName
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make(map[string]string, len(w.names)+1)
	for k, v := range w.names {
		names[k] = v
	}
	if !apply(names, whitelistKey(name), name) {
		return false, nil
	}
	if err := writeWhitelist(w.path, sortedNames(names)); err != nil {
		return false, err
	}
	w.names = names
	return true, nil
}

func readWhitelist(path string) (map[string]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	var file whitelistFile
	if err := toml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("decode whitelist: %w", err)
	}
	names := make(map[string]string, len(file.Players))
	for _, name := range file.Players {
		if name = strings.TrimSpace(name); name != "" {
			names[whitelistKey(name)] = name
		}
	}
	return names, nil
}

func writeWhitelist(path string, players []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create whitelist directory: %w", err)
		}
	}
	if players == nil {
		players = []string{}
	}
	encoded, err := toml.Marshal(whitelistFile{Players: players})
	if err != nil {
		return fmt.Errorf("encode whitelist: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write whitelist: %w", err)
	}
	return nil
}

func sortedNames(names map[string]string) []string {
	sorted := make([]string, 0, len(names))
	for _, name := range names {
		sorted = append(sorted, name)
	}
	slices.SortFunc(sorted, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return sorted
}

func whitelistKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ Allower = (*Whitelist)(nil)
