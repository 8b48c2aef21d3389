package builtin

import (
	"fmt"
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func langSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "lang",
		Aliases:     []string{"language"},
		Description: "Shows or changes your language.",
		Usage:       "[locale]",
		Restriction: cmd.InteractiveOnly,
		MaxArgs:     1,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			p, ok := srv.Player(ctx.Actor.ID)
			if !ok {
				o.Printt("commands.players-only")
				return o, nil
			}
			languages := srv.Languages()
			if ctx.Len() == 0 {
				o.Printt("lang.current", languages.Name(p.Locale()), p.Locale())
				available := make([]string, 0, len(languages.Locales()))
				for _, locale := range languages.Locales() {
					available = append(available, fmt.Sprintf("%s (%s)", languages.Name(locale), locale))
				}
				o.Printt("lang.available", strings.Join(available, ", "))
				return o, nil
			}
			locale, ok := p.SetLocale(ctx.Arg(0))
			if !ok {
				o.Printt("lang.unknown", ctx.Arg(0))
				return o, nil
			}
			o = srv.Output(ctx)
			o.Printt("lang.changed", languages.Name(locale))
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			if i, prefix := completing(ctx); i == 0 {
				return withPrefix(srv.Languages().Locales(), prefix)
			}
			return nil
		},
	}
}
