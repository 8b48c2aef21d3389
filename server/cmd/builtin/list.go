package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func listSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "list",
		Aliases:     []string{"players"},
		Description: "Lists players currently online.",
		Handler: func(ctx cmd.Context) (any, error) {
			names := playerNames(srv)
			o := srv.Output(ctx)
			o.Printt("list.header", len(names), srv.MaxPlayerCount())
			if len(names) != 0 {
				o.Print(strings.Join(names, ", "))
			}
			return o, nil
		},
	}
}
