package builtin

import (
	"runtime"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func gcSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "gc",
		Description: "Drops stale cooldowns and expired grants or cache entries, then triggers a Go garbage collection cycle.",
		Permission:  PermissionAdmin,
		Handler: func(ctx cmd.Context) (any, error) {
			var before runtime.MemStats
			runtime.ReadMemStats(&before)

			cooldowns, grants := srv.Sweep()
			runtime.GC()

			var after runtime.MemStats
			runtime.ReadMemStats(&after)

			freedBytes := uint64(0)
			if before.HeapAlloc > after.HeapAlloc {
				freedBytes = before.HeapAlloc - after.HeapAlloc
			}

			o := srv.Output(ctx)
			o.Printt("gc.header")
			o.Printt("gc.swept", cooldowns, grants)
			o.Printt("gc.freed", bytesToMiB(freedBytes), bytesToMiB(after.HeapAlloc))
			return o, nil
		},
	}
}
