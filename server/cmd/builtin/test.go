package builtin

import (
	"strings"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

var testFeatures = []string{"database", "localization", "permissions", "notifications"}

func testSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "test",
		Description: "Runs a self test of a server feature.",
		Usage:       "<feature>",
		Permission:  PermissionAdmin,
		MinArgs:     1,
		MaxArgs:     1,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			feature := strings.ToLower(ctx.Arg(0))
			switch feature {
			case "database":
				o.Printt("test.running", feature)
				n, err := srv.PlayerProvider().Count()
				if err != nil {
					o.Printt("test.database-failed", err.Error())
					break
				}
				o.Printt("test.database-passed", n)
			case "localization":
				o.Printt("test.running", feature)
				o.Printt("test.localization", o.Sprintt("test.message"))
			case "permissions":
				o.Printt("test.running", feature)
				if ctx.Actor.Allowed(PermissionTest) {
					o.Printt("test.permission-granted", PermissionTest)
				} else {
					o.Printt("test.permission-denied", PermissionTest)
				}
			case "notifications":
				o.Printt("test.running", feature)
				o.Printt("test.notification")
			default:
				o.Printt("test.features")
			}
			return o, nil
		},
		Completer: func(ctx cmd.Context) []string {
			if i, prefix := completing(ctx); i == 0 {
				return withPrefix(testFeatures, prefix)
			}
			return nil
		},
	}
}
