package lang

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// BaseLocale is the locale every other locale falls back to for keys it
// does not translate.
const BaseLocale = "en-US"

//go:embed locales/*.toml
var embedded embed.FS

type localeFile struct {
	Locale   string            `toml:"locale"`
	Name     string            `toml:"name"`
	Messages map[string]string `toml:"messages"`
}

// Bundle holds the messages of every known locale. Locale files are embedded
// in the binary and may be extended or overridden by TOML files in a
// directory. A Bundle is safe for concurrent use and may be reloaded while in
// use.
type Bundle struct {
	dir string

	mu      sync.RWMutex
	cat     *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
	names   map[string]string
	keys    map[string]map[string]string
}

// Load loads the embedded locales, then every *.toml file in dir. dir may be
// empty, in which case only the embedded locales are used.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{dir: dir}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload reads all locale files again and swaps the catalog.
func (b *Bundle) Reload() error {
	files := map[string]localeFile{}
	if err := readLocales(embedded, "locales", files); err != nil {
		return err
	}
	if b.dir != "" {
		if _, err := os.Stat(b.dir); err == nil {
			if err := readLocales(os.DirFS(b.dir), ".", files); err != nil {
				return err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat locale directory: %w", err)
		}
	}
	base, ok := files[BaseLocale]
	if !ok {
		return fmt.Errorf("base locale %s is not defined", BaseLocale)
	}

	baseTag := language.MustParse(BaseLocale)
	cat := catalog.NewBuilder(catalog.Fallback(baseTag))
	tags := []language.Tag{baseTag}
	names := make(map[string]string, len(files))
	keys := make(map[string]map[string]string, len(files))

	locales := make([]string, 0, len(files))
	for locale := range files {
		locales = append(locales, locale)
	}
	slices.Sort(locales)
	for _, locale := range locales {
		file := files[locale]
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		if locale != BaseLocale {
			tags = append(tags, tag)
		}
		// Keys missing from a locale are registered with the base text so a
		// partial translation never prints a raw key.
		merged := make(map[string]string, len(base.Messages))
		for key, text := range base.Messages {
			merged[key] = text
		}
		for key, text := range file.Messages {
			merged[key] = text
		}
		for key, text := range merged {
			if err := cat.SetString(tag, key, text); err != nil {
				return fmt.Errorf("register %s %q: %w", locale, key, err)
			}
		}
		names[locale] = file.Name
		keys[locale] = merged
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cat, b.tags, b.names, b.keys = cat, tags, names, keys
	b.matcher = language.NewMatcher(tags)
	return nil
}

// readLocales decodes every *.toml file directly under dir in fsys into
// files, keyed by their canonical locale.
func readLocales(fsys fs.FS, dir string, files map[string]localeFile) error {
	paths, err := fs.Glob(fsys, path.Join(dir, "*.toml"))
	if err != nil {
		return fmt.Errorf("glob locale files: %w", err)
	}
	slices.Sort(paths)
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read locale %s: %w", p, err)
		}
		var file localeFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("decode locale %s: %w", p, err)
		}
		tag, err := language.Parse(strings.TrimSpace(file.Locale))
		if err != nil {
			return fmt.Errorf("locale %s: invalid locale %q: %w", p, file.Locale, err)
		}
		locale := tag.String()
		existing, ok := files[locale]
		if !ok {
			existing = localeFile{Locale: locale, Messages: map[string]string{}}
		}
		if file.Name != "" {
			existing.Name = file.Name
		}
		for key, text := range file.Messages {
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("locale %s: message key cannot be blank", p)
			}
			existing.Messages[key] = text
		}
		files[locale] = existing
	}
	return nil
}

// Match returns the known locale closest to the one passed and whether the
// match is usable. Unknown or malformed locales match BaseLocale with ok
// false.
func (b *Bundle) Match(locale string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.matchLocked(locale)
}

func (b *Bundle) matchLocked(locale string) (string, bool) {
	tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if err != nil {
		return BaseLocale, false
	}
	_, i, confidence := b.matcher.Match(tag)
	if confidence == language.No {
		return BaseLocale, false
	}
	return b.tags[i].String(), true
}

// Printer returns a printer for the known locale closest to the one passed.
func (b *Bundle) Printer(locale string) *message.Printer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	matched, _ := b.matchLocked(locale)
	return message.NewPrinter(language.MustParse(matched), message.Catalog(b.cat))
}

// Text renders the message with the key passed in locale, substituting args
// for the verbs in the message.
func (b *Bundle) Text(locale, key string, args ...any) string {
	return b.Printer(locale).Sprintf(key, args...)
}

// Has reports if key is defined in the base locale.
func (b *Bundle) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.keys[BaseLocale][key]
	return ok
}

// Locales returns the known locales, sorted.
func (b *Bundle) Locales() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		out = append(out, tag.String())
	}
	slices.Sort(out)
	return out
}

// Name returns the display name of a locale, or the locale itself if the
// locale file does not name it.
func (b *Bundle) Name(locale string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if name := b.names[locale]; name != "" {
		return name
	}
	return locale
}
