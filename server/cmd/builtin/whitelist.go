package builtin

import (
	"errors"
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

var whitelistActions = []string{"add", "remove", "list", "on", "off"}

func whitelistSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "whitelist",
		Aliases:     []string{"wl"},
		Description: "Manages the whitelist.",
		Usage:       "<add|remove|list|on|off> [player]",
		Permission:  PermissionAdmin,
		MinArgs:     1,
		MaxArgs:     2,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			wl, ok := srv.Whitelist()
			if !ok {
				o.Printt("whitelist.unavailable")
				return o, nil
			}
			switch strings.ToLower(ctx.Arg(0)) {
			case "add":
				whitelistAdd(wl, o, ctx)
			case "remove":
				whitelistRemove(wl, o, ctx)
			case "list":
				state := o.Sprintt("whitelist.state-enabled")
				if !wl.Enabled() {
					state = o.Sprintt("whitelist.state-disabled")
				}
				entries := wl.Players()
				o.Printt("whitelist.list", state, len(entries))
				if len(entries) != 0 {
					o.Print(strings.Join(entries, ", "))
				}
			case "on":
				wl.SetEnabled(true)
				o.Printt("whitelist.turned-on")
			case "off":
				wl.SetEnabled(false)
				o.Printt("whitelist.turned-off")
			default:
				usage(o, ctx)
			}
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			switch i, prefix := completing(ctx); i {
			case 0:
				return withPrefix(whitelistActions, prefix)
			case 1:
				switch strings.ToLower(ctx.Arg(0)) {
				case "add":
					return withPrefix(playerNames(srv), prefix)
				case "remove":
					if wl, ok := srv.Whitelist(); ok {
						return withPrefix(wl.Players(), prefix)
					}
				}
			}
			return nil
		},
	}
}

func whitelistAdd(wl *server.Whitelist, o *server.Output, ctx cmd.Context) {
	name := strings.TrimSpace(ctx.Arg(1))
	if name == "" {
		usage(o, ctx)
		return
	}
	added, err := wl.Add(name)
	if err != nil {
		whitelistError(o, ctx, err)
		return
	}
	if added {
		o.Printt("whitelist.added", name)
		return
	}
	o.Printt("whitelist.already", name)
}

func whitelistRemove(wl *server.Whitelist, o *server.Output, ctx cmd.Context) {
	name := strings.TrimSpace(ctx.Arg(1))
	if name == "" {
		usage(o, ctx)
		return
	}
	removed, err := wl.Remove(name)
	if err != nil {
		whitelistError(o, ctx, err)
		return
	}
	if removed {
		o.Printt("whitelist.removed", name)
		return
	}
	o.Printt("whitelist.missing", name)
}

func whitelistError(o *server.Output, ctx cmd.Context, err error) {
	if errors.Is(err, server.ErrWhitelistInvalidName) {
		usage(o, ctx)
		return
	}
	o.Printt("whitelist.error", err.Error())
}
