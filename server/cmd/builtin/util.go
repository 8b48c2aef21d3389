package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

// completing returns the position and the lower-cased text of the argument
// being completed in ctx.
func completing(ctx cmd.Context) (int, string) {
	if len(ctx.Args) == 0 {
		return 0, ""
	}
	i := len(ctx.Args) - 1
	return i, strings.ToLower(ctx.Args[i])
}

// withPrefix returns the options starting with prefix, ignoring case.
func withPrefix(options []string, prefix string) []string {
	matches := make([]string, 0, len(options))
	for _, option := range options {
		if strings.HasPrefix(strings.ToLower(option), prefix) {
			matches = append(matches, option)
		}
	}
	return matches
}

// playerNames returns the names of the online players of srv.
func playerNames(srv *server.Server) []string {
	players := srv.Players()
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name())
	}
	return names
}

// usage adds the usage line of the sub-command of ctx to o.
func usage(o *server.Output, ctx cmd.Context) *server.Output {
	o.Printt("commands.usage", ctx.Command.UsageLine(ctx.Label))
	return o
}

func bytesToMiB(v uint64) float64 {
	return float64(v) / (1024 * 1024)
}
