package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func debugSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "debug",
		Description: "Toggles debug logging.",
		Usage:       "[on|off]",
		Permission:  PermissionAdmin,
		MaxArgs:     1,
		Handler: func(ctx cmd.Context) (any, error) {
			on := !srv.Debug()
			if ctx.Len() != 0 {
				switch strings.ToLower(ctx.Arg(0)) {
				case "on", "true", "enable":
					on = true
				default:
					on = false
				}
			}
			srv.SetDebug(on)

			o := srv.Output(ctx)
			if on {
				o.Printt("debug.enabled")
			} else {
				o.Printt("debug.disabled")
			}
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			if i, prefix := completing(ctx); i == 0 {
				return withPrefix([]string{"on", "off", "enable", "disable"}, prefix)
			}
			return nil
		},
	}
}
