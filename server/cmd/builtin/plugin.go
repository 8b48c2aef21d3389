package builtin

import (
	"slices"
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

var pluginActions = []string{"list", "enable", "disable", "reload"}

func pluginSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "plugin",
		Aliases:     []string{"plugins", "pl"},
		Description: "Manages plugins.",
		Usage:       "<list|enable|disable|reload> [name]",
		Permission:  PermissionAdmin,
		MinArgs:     1,
		MaxArgs:     2,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			if !srv.PluginsEnabled() {
				o.Printt("plugin.subsystem-disabled")
				return o, nil
			}
			action := strings.ToLower(ctx.Arg(0))
			if action == "list" {
				listPlugins(srv, o)
				return o, nil
			}
			if !slices.Contains(pluginActions, action) {
				return usage(o, ctx), nil
			}
			name := strings.TrimSpace(ctx.Arg(1))
			if name == "" {
				o.Printt("plugin.name-required")
				return o, nil
			}

			var (
				info server.PluginInfo
				err  error
				key  string
			)
			switch action {
			case "enable":
				info, err = srv.EnablePlugin(name)
				key = "plugin.enabled"
			case "disable":
				info, err = srv.DisablePlugin(name)
				key = "plugin.disabled"
			case "reload":
				info, err = srv.ReloadPlugin(name)
				key = "plugin.reloaded"
			}
			if err != nil {
				o.Printt("plugin.error", err.Error())
				return o, nil
			}
			o.Printt(key, info.Name)
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			switch i, prefix := completing(ctx); i {
			case 0:
				return withPrefix(pluginActions, prefix)
			case 1:
				switch strings.ToLower(ctx.Arg(0)) {
				case "enable":
					return withPrefix(srv.PluginFactories(), prefix)
				case "disable", "reload":
					names := []string{}
					for _, info := range srv.Plugins() {
						names = append(names, info.Name)
					}
					return withPrefix(names, prefix)
				}
			}
			return nil
		},
	}
}

func listPlugins(srv *server.Server, o *server.Output) {
	plugins := srv.Plugins()
	if len(plugins) == 0 {
		o.Printt("plugin.none")
	}
	slices.SortStableFunc(plugins, func(a, b server.PluginInfo) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	for _, info := range plugins {
		if info.Version != "" {
			o.Printt("plugin.entry", info.Name, info.Version, info.Source)
		} else {
			o.Printt("plugin.entry-unversioned", info.Name, info.Source)
		}
		if len(info.Commands) != 0 {
			o.Printt("plugin.commands", strings.Join(info.Commands, ", "))
		}
	}
	if factories := srv.PluginFactories(); len(factories) != 0 {
		o.Printt("plugin.available", strings.Join(factories, ", "))
	}
}
