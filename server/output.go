package server

import (
	"fmt"
	"slices"

	"github.com/df-mc/plugintemplate/server/cmd"
	"golang.org/x/text/message"
)

// Output collects the lines a sub-command handler sends back to the source
// that ran it. A handler returns its Output as result and the server sends
// the lines once the handler returned.
type Output struct {
	printer *message.Printer
	lines   []string
}

// Output returns an empty Output rendering translated messages in the locale
// of the actor of ctx.
func (srv *Server) Output(ctx cmd.Context) *Output {
	return &Output{printer: srv.conf.Languages.Printer(srv.actorLocale(ctx.Actor))}
}

// Print adds a line formatted like fmt.Sprint.
func (o *Output) Print(a ...any) {
	o.lines = append(o.lines, fmt.Sprint(a...))
}

// Printf adds a line formatted like fmt.Sprintf.
func (o *Output) Printf(format string, a ...any) {
	o.lines = append(o.lines, fmt.Sprintf(format, a...))
}

// Printt adds the translation of the message key, formatted with a.
func (o *Output) Printt(key string, a ...any) {
	o.lines = append(o.lines, o.printer.Sprintf(key, a...))
}

// Sprintt returns the translation of the message key without adding it.
func (o *Output) Sprintt(key string, a ...any) string {
	return o.printer.Sprintf(key, a...)
}

// Lines returns the lines added so far.
func (o *Output) Lines() []string {
	return slices.Clone(o.lines)
}

// Len returns the number of lines added so far.
func (o *Output) Len() int {
	return len(o.lines)
}
