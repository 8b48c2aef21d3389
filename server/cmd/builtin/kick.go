package builtin

import (
	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func kickSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "kick",
		Description: "Removes a player from the server.",
		Usage:       "<player> [reason...]",
		Permission:  PermissionAdmin,
		MinArgs:     1,
		MaxArgs:     cmd.Unbounded,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			p, ok := srv.PlayerByName(ctx.Arg(0))
			if !ok {
				o.Printt("player.not-found", ctx.Arg(0))
				return o, nil
			}
			reason := ctx.Joined(1)
			if reason == "" {
				reason = srv.Languages().Text(p.Locale(), "kick.default-reason")
			}
			p.SendMessage(reason)
			srv.Quit(p.ID())
			o.Printt("kick.done", p.Name())
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			if i, prefix := completing(ctx); i == 0 {
				return withPrefix(playerNames(srv), prefix)
			}
			return nil
		},
	}
}
