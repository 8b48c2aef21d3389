package server

import (
	"sync"
	"time"

	"github.com/df-mc/plugintemplate/server/playerdb"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/google/uuid"
)

// maxPending is the number of messages a Player keeps while no handler is
// attached.
const maxPending = 32

// PlayerHandler receives the messages sent to a Player, for example to write
// them to the connection of the player.
type PlayerHandler interface {
	HandleMessage(p *Player, msg string)
}

// Player is an online player. It implements Source.
type Player struct {
	srv    *Server
	id     uuid.UUID
	name   string
	joined time.Time

	mu       sync.Mutex
	settings playerdb.Settings
	h        PlayerHandler
	pending  []string
}

// ID returns the UUID of the player.
func (p *Player) ID() uuid.UUID { return p.id }

// Name returns the name the player joined with.
func (p *Player) Name() string { return p.name }

// Interactive always returns true.
func (p *Player) Interactive() bool { return true }

// Joined returns the time the player joined.
func (p *Player) Joined() time.Time { return p.joined }

// HasPermission reports if the player holds node in the permission store of
// the server.
func (p *Player) HasPermission(node string) bool {
	return p.srv.conf.Permissions.Has(p.name, node)
}

// Handle attaches a handler to the player. Messages sent before a handler was
// attached are passed to it right away. A nil handler detaches the current
// one.
func (p *Player) Handle(h PlayerHandler) {
	p.mu.Lock()
	p.h = h
	pending := p.pending
	if h != nil {
		p.pending = nil
	}
	p.mu.Unlock()

	if h == nil {
		return
	}
	for _, msg := range pending {
		h.HandleMessage(p, msg)
	}
}

// SendMessage sends a message to the player. Without a handler, the most
// recent messages are kept until one is attached.
func (p *Player) SendMessage(msg string) {
	p.mu.Lock()
	h := p.h
	if h == nil {
		if len(p.pending) == maxPending {
			p.pending = p.pending[1:]
		}
		p.pending = append(p.pending, msg)
	}
	p.mu.Unlock()

	if h != nil {
		h.HandleMessage(p, msg)
	}
}

// Locale returns the locale the player picked, or the default locale of the
// server.
func (p *Player) Locale() string {
	p.mu.Lock()
	locale := p.settings.Locale
	p.mu.Unlock()
	if locale == "" {
		return p.srv.conf.DefaultLocale
	}
	return locale
}

// SetLocale sets the locale of the player to the known locale closest to the
// one passed. It returns the locale set and false if no known locale was
// close enough, in which case the locale of the player is unchanged.
func (p *Player) SetLocale(locale string) (string, bool) {
	matched, ok := p.srv.conf.Languages.Match(locale)
	if !ok {
		return matched, false
	}
	p.mu.Lock()
	p.settings.Locale = matched
	p.mu.Unlock()
	return matched, true
}

// Settings returns a copy of the stored settings of the player.
func (p *Player) Settings() playerdb.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *Player) recordCommand() {
	p.mu.Lock()
	p.settings.Commands++
	p.mu.Unlock()
}

func (p *Player) summary() plugin.PlayerSummary {
	return plugin.PlayerSummary{UUID: p.id, Name: p.name, Locale: p.Locale(), Joined: p.joined}
}
