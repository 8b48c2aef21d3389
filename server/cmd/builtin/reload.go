package builtin

import (
	"time"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func reloadSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:            "reload",
		Aliases:         []string{"rl"},
		Description:     "Reloads permissions, languages and the whitelist.",
		Permission:      PermissionReload,
		CooldownSeconds: 5,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			start := time.Now()
			if err := srv.Reload(); err != nil {
				o.Printt("reload.error", err.Error())
				return o, nil
			}
			o.Printt("reload.success", time.Since(start).Round(time.Millisecond).String())
			return o, nil
		},
	}
}
