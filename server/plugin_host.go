package server

import (
	"log/slog"
	"time"

	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/df-mc/plugintemplate/server/plugin"
	"github.com/google/uuid"
)

type pluginHost struct {
	srv *Server
}

func newPluginHost(srv *Server) plugin.Host[*Server, Config] {
	return pluginHost{srv: srv}
}

func (h pluginHost) Instance() *Server {
	return h.srv
}

func (h pluginHost) Config() Config {
	return h.srv.conf
}

func (h pluginHost) Logger() *slog.Logger {
	return h.srv.conf.Log
}

func (h pluginHost) StartTime() time.Time {
	return h.srv.StartTime()
}

func (h pluginHost) MaxPlayerCount() int {
	return h.srv.MaxPlayerCount()
}

func (h pluginHost) PlayerCount() int {
	return h.srv.PlayerCount()
}

func (h pluginHost) PlayerSummaries() []plugin.PlayerSummary {
	players := h.srv.Players()
	summaries := make([]plugin.PlayerSummary, 0, len(players))
	for _, p := range players {
		summaries = append(summaries, p.summary())
	}
	return summaries
}

func (h pluginHost) Message(id uuid.UUID, message string) bool {
	p, ok := h.srv.Player(id)
	if !ok {
		return false
	}
	p.SendMessage(message)
	return true
}

func (h pluginHost) Broadcast(message string) int {
	return h.srv.Broadcast(message)
}

func (h pluginHost) ExecuteConsole(line string) cmd.Outcome {
	return h.srv.Execute(h.srv.console, line)
}

func (h pluginHost) Commands() *cmd.Registry {
	return h.srv.reg
}

func (h pluginHost) PluginsEnabled() bool {
	return h.srv.PluginsEnabled()
}

var _ plugin.Host[*Server, Config] = pluginHost{}
