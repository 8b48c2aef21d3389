package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func cooldownsSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "cooldowns",
		Aliases:     []string{"cd"},
		Description: "Shows the number of tracked cooldowns or clears those of a player.",
		Usage:       "[reset <player>]",
		Permission:  PermissionAdmin,
		MaxArgs:     2,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			cooldowns := srv.Engine().Cooldowns()
			if ctx.Len() == 0 {
				o.Printt("cooldowns.count", cooldowns.Len())
				return o, nil
			}
			if !strings.EqualFold(ctx.Arg(0), "reset") || ctx.Len() != 2 {
				return usage(o, ctx), nil
			}
			p, ok := srv.PlayerByName(ctx.Arg(1))
			if !ok {
				o.Printt("player.not-found", ctx.Arg(1))
				return o, nil
			}
			if n := cooldowns.Forget(p.ID()); n > 0 {
				o.Printt("cooldowns.reset", n, p.Name())
			} else {
				o.Printt("cooldowns.none", p.Name())
			}
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			switch i, prefix := completing(ctx); i {
			case 0:
				return withPrefix([]string{"reset"}, prefix)
			case 1:
				return withPrefix(playerNames(srv), prefix)
			}
			return nil
		},
	}
}
