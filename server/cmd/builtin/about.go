package builtin

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func infoSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "info",
		Aliases:     []string{"information", "about"},
		Description: "Displays version and build information.",
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			o.Printt("info.header", srv.Name(), srv.Version())

			info, ok := debug.ReadBuildInfo()
			goVersion := runtime.Version()
			if ok && info != nil && info.GoVersion != "" {
				goVersion = info.GoVersion
			}
			o.Printt("info.runtime", goVersion)
			if revision := vcsRevision(info); revision != "" {
				o.Printt("info.commit", revision)
			}
			o.Printt("info.uptime", srv.Uptime().Round(time.Second).String())
			return o, nil
		},
	}
}

func vcsRevision(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value
		}
	}
	return ""
}
