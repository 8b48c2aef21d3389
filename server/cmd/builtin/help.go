package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func helpSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "help",
		Aliases:     []string{"?", "h"},
		Description: "Shows available sub-commands and their usage.",
		Usage:       "[command]",
		MaxArgs:     1,
		Handler: func(ctx cmd.Context) (any, error) {
			return runHelp(srv, ctx), nil
		},
		Completer: func(ctx cmd.Context) []string {
			i, prefix := completing(ctx)
			if i != 0 {
				return nil
			}
			names := []string{}
			for _, spec := range srv.Commands().ListVisible(ctx.Actor.Permission) {
				names = append(names, spec.Name)
			}
			return withPrefix(names, prefix)
		},
	}
}

func runHelp(srv *server.Server, ctx cmd.Context) *server.Output {
	o := srv.Output(ctx)
	if ctx.Len() != 0 {
		name := strings.ToLower(strings.TrimPrefix(ctx.Arg(0), "/"))
		spec, found := srv.Commands().Resolve(name)
		if !found || !ctx.Actor.Allowed(spec.Permission) {
			o.Printt("help.unknown", name)
			return o
		}
		o.Printt("help.entry", spec.UsageLine(ctx.Label), spec.Description)
		if len(spec.Aliases) != 0 {
			o.Printt("help.aliases", strings.Join(spec.Aliases, ", "))
		}
		if spec.CooldownSeconds > 0 {
			o.Printt("help.cooldown", spec.CooldownSeconds)
		}
		return o
	}

	specs := srv.Commands().ListVisible(ctx.Actor.Permission)
	if len(specs) == 0 {
		o.Printt("help.none")
		return o
	}
	o.Printt("help.header", len(specs))
	for _, spec := range specs {
		o.Printt("help.entry", spec.UsageLine(ctx.Label), spec.Description)
	}
	return o
}
