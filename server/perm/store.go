package perm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml"
)

var (
	// ErrUnknownGroup is returned when a player is assigned a group that is
	// not defined in the store.
	ErrUnknownGroup = errors.New("unknown permission group")
	// ErrInvalidName is returned when an empty player name or node is passed.
	ErrInvalidName = errors.New("invalid player name or node")
)

// Wildcard matches every node.
const Wildcard = "*"

// Store holds permission groups and the groups assigned to players. Groups
// and assignments are persisted in a TOML file, temporary grants live in
// memory only. A Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	filePath string

	def     string
	groups  map[string][]string
	players map[string][]string
	// temp holds temporary grants per lower-cased player name. A zero expiry
	// never expires.
	temp map[string]map[string]time.Time

	now func() time.Time
}

type storeFile struct {
	Default string              `toml:"default"`
	Groups  map[string][]string `toml:"groups"`
	Players map[string][]string `toml:"players"`
}

func defaultFile() storeFile {
	return storeFile{
		Default: "default",
		Groups: map[string][]string{
			"default": {"plugintemplate.use"},
			"admin":   {"plugintemplate.*"},
		},
		Players: map[string][]string{},
	}
}

// Load loads the store kept in the file at path. If the file does not exist,
// it is created with a "default" and an "admin" group.
func Load(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("permission store path must not be empty")
	}
	s := &Store{filePath: path, temp: make(map[string]map[string]time.Time), now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a Store with the default groups that is never written to
// disk.
func NewMemory() *Store {
	s := &Store{temp: make(map[string]map[string]time.Time), now: time.Now}
	s.apply(defaultFile())
	return s
}

// Reload re-reads the file of the store. Temporary grants are kept. Reload
// is a no-op for a Store returned by NewMemory.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	data := storeFile{}
	contents, err := os.ReadFile(s.filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read permissions: %w", err)
		}
		s.apply(defaultFile())
		return s.writeLocked()
	}
	if len(contents) != 0 {
		if err := toml.Unmarshal(contents, &data); err != nil {
			return fmt.Errorf("decode permissions: %w", err)
		}
	}
	s.apply(data)
	return nil
}

func (s *Store) apply(data storeFile) {
	s.def = normalise(data.Default)
	s.groups = make(map[string][]string, len(data.Groups))
	for group, nodes := range data.Groups {
		clean := make([]string, 0, len(nodes))
		for _, node := range nodes {
			if node = normalise(node); node != "" {
				clean = append(clean, node)
			}
		}
		s.groups[normalise(group)] = clean
	}
	s.players = make(map[string][]string, len(data.Players))
	for name, groups := range data.Players {
		clean := make([]string, 0, len(groups))
		for _, group := range groups {
			if group = normalise(group); group != "" {
				clean = append(clean, group)
			}
		}
		if name = normalise(name); name != "" && len(clean) > 0 {
			s.players[name] = clean
		}
	}
}

// Has reports if the player with the name passed holds node, either through
// one of their groups or a temporary grant. Players without a group fall back
// to the default group. A negated node ("-node") in any of these sources
// wins over a granting one.
func (s *Store) Has(name, node string) bool {
	name, node = normalise(name), normalise(node)
	if node == "" {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	granted := false
	check := func(pattern string) bool {
		negated := strings.HasPrefix(pattern, "-")
		if !Matches(strings.TrimPrefix(pattern, "-"), node) {
			return true
		}
		if negated {
			return false
		}
		granted = true
		return true
	}
	for _, group := range s.groupsLocked(name) {
		for _, pattern := range s.groups[group] {
			if !check(pattern) {
				return false
			}
		}
	}
	now := s.now()
	for pattern, expiry := range s.temp[name] {
		if !expiry.IsZero() && !expiry.After(now) {
			continue
		}
		if !check(pattern) {
			return false
		}
	}
	return granted
}

// Checker returns a function reporting if the player with the name passed
// holds a node. The function reflects later changes to the store.
func (s *Store) Checker(name string) func(node string) bool {
	return func(node string) bool {
		return s.Has(name, node)
	}
}

// Matches reports if pattern covers node. "*" covers every node and
// "prefix.*" covers prefix itself and every node below it.
func Matches(pattern, node string) bool {
	pattern, node = strings.ToLower(pattern), strings.ToLower(node)
	if pattern == Wildcard || pattern == node {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, ".*")
	if !ok {
		return false
	}
	return node == prefix || strings.HasPrefix(node, prefix+".")
}

// SetGroup assigns the player a single group, replacing the groups they had
// before. The store file is rewritten and the change is undone if that
// fails.
func (s *Store) SetGroup(name, group string) error {
	key, group := normalise(name), normalise(group)
	if key == "" || group == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	previous, had := s.players[key]
	s.players[key] = []string{group}
	if err := s.writeLocked(); err != nil {
		if had {
			s.players[key] = previous
		} else {
			delete(s.players, key)
		}
		return err
	}
	return nil
}

// GroupsOf returns the groups of a player, or the default group if none were
// assigned.
func (s *Store) GroupsOf(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.groupsLocked(normalise(name)))
}

// Groups returns the names of all groups, sorted.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.groups))
	for group := range s.groups {
		names = append(names, group)
	}
	slices.Sort(names)
	return names
}

// DefaultGroup returns the group of players without an assignment.
func (s *Store) DefaultGroup() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// Grant gives the player node until ttl passes. A ttl of zero or less keeps
// the grant until Forget or Revoke is called. Grants are not persisted.
func (s *Store) Grant(name, node string, ttl time.Duration) error {
	name, node = normalise(name), normalise(node)
	if name == "" || node == "" {
		return ErrInvalidName
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.temp[name]
	if !ok {
		grants = make(map[string]time.Time, 1)
		s.temp[name] = grants
	}
	grants[node] = expiry
	return nil
}

// Revoke removes a temporary grant. It reports if the grant existed.
func (s *Store) Revoke(name, node string) bool {
	name, node = normalise(name), normalise(node)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.temp[name][node]; !ok {
		return false
	}
	delete(s.temp[name], node)
	if len(s.temp[name]) == 0 {
		delete(s.temp, name)
	}
	return true
}

// Expire drops every temporary grant that expired at now and returns how many
// were dropped.
func (s *Store) Expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for name, grants := range s.temp {
		for node, expiry := range grants {
			if !expiry.IsZero() && !expiry.After(now) {
				delete(grants, node)
				n++
			}
		}
		if len(grants) == 0 {
			delete(s.temp, name)
		}
	}
	return n
}

// Forget drops all temporary grants of a player, returning how many there
// were. Group assignments are kept.
func (s *Store) Forget(name string) int {
	name = normalise(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.temp[name])
	delete(s.temp, name)
	return n
}

func (s *Store) groupsLocked(name string) []string {
	if groups, ok := s.players[name]; ok {
		return groups
	}
	if s.def == "" {
		return nil
	}
	return []string{s.def}
}

func (s *Store) writeLocked() error {
	if s.filePath == "" {
		return nil
	}
	dir := filepath.Dir(s.filePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create permissions directory: %w", err)
		}
	}
	encoded, err := toml.Marshal(storeFile{Default: s.def, Groups: s.groups, Players: s.players})
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	if err := os.WriteFile(s.filePath, encoded, 0644); err != nil {
		return fmt.Errorf("write permissions: %w", err)
	}
	return nil
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
