package builtin

import (
	"errors"
	"strings"
	"time"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
	"github.com/df-mc/plugintemplate/server/perm"
)

func permSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "perm",
		Aliases:     []string{"permission"},
		Description: "Shows or sets the permission group of a player, or grants a temporary permission.",
		Usage:       "<player> [group | grant <node> [duration] | revoke <node>]",
		Permission:  PermissionAdmin,
		MinArgs:     1,
		MaxArgs:     4,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			store := srv.Permissions()
			name := ctx.Arg(0)
			switch action := strings.ToLower(ctx.Arg(1)); {
			case ctx.Len() == 1:
				o.Printt("perm.show", name, strings.Join(store.GroupsOf(name), ", "))
			case action == "grant" && ctx.Len() >= 3:
				grantNode(o, store, name, ctx.Arg(2), ctx.ArgOr(3, ""))
			case action == "revoke" && ctx.Len() == 3:
				if store.Revoke(name, ctx.Arg(2)) {
					o.Printt("perm.revoked", ctx.Arg(2), name)
				} else {
					o.Printt("perm.not-granted", name, ctx.Arg(2))
				}
			case action == "grant" || action == "revoke":
				usage(o, ctx)
			case ctx.Len() == 2:
				setGroup(o, store, name, strings.ToLower(ctx.Arg(1)))
			default:
				usage(o, ctx)
			}
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			i, prefix := completing(ctx)
			switch {
			case i == 0:
				return withPrefix(playerNames(srv), prefix)
			case i == 1:
				return withPrefix(append(srv.Permissions().Groups(), "grant", "revoke"), prefix)
			case i == 3 && strings.EqualFold(ctx.Arg(1), "grant"):
				return withPrefix([]string{"30s", "5m", "1h"}, prefix)
			}
			return nil
		},
	}
}

func setGroup(o *server.Output, store *perm.Store, name, group string) {
	if err := store.SetGroup(name, group); err != nil {
		if errors.Is(err, perm.ErrUnknownGroup) {
			o.Printt("perm.unknown-group", group, strings.Join(store.Groups(), ", "))
			return
		}
		o.Printt("perm.error", err.Error())
		return
	}
	o.Printt("perm.set", name, group)
}

// grantNode grants node to name for the duration passed, or until the player
// leaves if duration is empty.
func grantNode(o *server.Output, store *perm.Store, name, node, duration string) {
	var ttl time.Duration
	if duration != "" {
		var err error
		if ttl, err = time.ParseDuration(duration); err != nil || ttl <= 0 {
			o.Printt("perm.bad-duration", duration)
			return
		}
	}
	if err := store.Grant(name, node, ttl); err != nil {
		o.Printt("perm.error", err.Error())
		return
	}
	if ttl == 0 {
		o.Printt("perm.granted-session", node, name)
		return
	}
	o.Printt("perm.granted", node, name, ttl)
}
