package plugin

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/df-mc/plugintemplate/server/cmd"
)

// Handler receives server events on behalf of a plugin. Embed NopHandler to
// implement only the methods of interest.
type Handler interface {
	// HandleJoin is called after a player joined.
	HandleJoin(p PlayerSummary)
	// HandleQuit is called after a player quit.
	HandleQuit(p PlayerSummary)
	// HandleCommand is called after a sub-command line was dispatched,
	// whatever the outcome.
	HandleCommand(e CommandEvent)
}

// CommandEvent describes a dispatched sub-command line.
type CommandEvent struct {
	Actor   cmd.Actor
	Label   string
	Args    []string
	Outcome cmd.Outcome
}

// NopHandler implements Handler without doing anything.
type NopHandler struct{}

func (NopHandler) HandleJoin(PlayerSummary)  {}
func (NopHandler) HandleQuit(PlayerSummary)  {}
func (NopHandler) HandleCommand(CommandEvent) {}

type eventRegistration[T any] struct {
	plugin  string
	handler T
	id      uint64
}

type eventList[T any] struct {
	regs []eventRegistration[T]
	next uint64
}

func (l *eventList[T]) add(plugin string, handler T) uint64 {
	id := l.next
	l.next++
	l.regs = append(l.regs, eventRegistration[T]{plugin: plugin, handler: handler, id: id})
	return id
}

func (l *eventList[T]) remove(keep func(reg eventRegistration[T]) bool) {
	regs := l.regs[:0]
	for _, reg := range l.regs {
		if keep(reg) {
			regs = append(regs, reg)
		}
	}
	clear(l.regs[len(regs):])
	l.regs = regs
}

func (l *eventList[T]) rename(oldName, newName string) {
	if oldName == newName {
		return
	}
	for i := range l.regs {
		if l.regs[i].plugin == oldName {
			l.regs[i].plugin = newName
		}
	}
}

func (l *eventList[T]) snapshot() []eventRegistration[T] {
	out := make([]eventRegistration[T], len(l.regs))
	copy(out, l.regs)
	return out
}

// eventHub fans events out to the handlers of every plugin. Emitting reads
// an immutable chain and never blocks on subscriptions.
type eventHub[S any, C any] struct {
	mu      sync.Mutex
	log     *slog.Logger
	manager *Manager[S, C]
	list    eventList[Handler]
	chain   atomic.Pointer[[]eventRegistration[Handler]]
}

func newEventHub[S any, C any](manager *Manager[S, C], log *slog.Logger) *eventHub[S, C] {
	if log == nil {
		log = slog.Default()
	}
	hub := &eventHub[S, C]{manager: manager, log: log.With("subsystem", "plugin.events")}
	hub.publish()
	return hub
}

func (pe *eventHub[S, C]) publish() {
	chain := pe.list.snapshot()
	pe.chain.Store(&chain)
}

func (pe *eventHub[S, C]) loadChain() []eventRegistration[Handler] {
	return *pe.chain.Load()
}

func (pe *eventHub[S, C]) add(plugin string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	pe.mu.Lock()
	id := pe.list.add(plugin, handler)
	pe.publish()
	pe.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pe.mu.Lock()
			pe.list.remove(func(reg eventRegistration[Handler]) bool { return reg.id != id })
			pe.publish()
			pe.mu.Unlock()
		})
	}
}

func (pe *eventHub[S, C]) clear(plugin string) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.list.remove(func(reg eventRegistration[Handler]) bool { return reg.plugin != plugin })
	pe.publish()
}

func (pe *eventHub[S, C]) rename(oldName, newName string) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.list.rename(oldName, newName)
	pe.publish()
}

func (pe *eventHub[S, C]) emit(event string, call func(h Handler)) {
	for _, reg := range pe.loadChain() {
		pe.dispatch(reg, event, call)
	}
}

func (pe *eventHub[S, C]) dispatch(reg eventRegistration[Handler], event string, call func(h Handler)) {
	defer func() {
		if r := recover(); r != nil {
			pe.log.Debug("Event handler panicked.", "plugin", reg.plugin, "event", event)
			pe.manager.handlePluginPanic(reg.plugin, r)
		}
	}()
	call(reg.handler)
}

// EmitJoin notifies every plugin that a player joined.
func (m *Manager[S, C]) EmitJoin(p PlayerSummary) {
	m.events.emit("join", func(h Handler) { h.HandleJoin(p) })
}

// EmitQuit notifies every plugin that a player quit.
func (m *Manager[S, C]) EmitQuit(p PlayerSummary) {
	m.events.emit("quit", func(h Handler) { h.HandleQuit(p) })
}

// EmitCommand notifies every plugin that a sub-command line was dispatched.
func (m *Manager[S, C]) EmitCommand(e CommandEvent) {
	m.events.emit("command", func(h Handler) { h.HandleCommand(e) })
}
