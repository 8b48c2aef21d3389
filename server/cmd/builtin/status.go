package builtin

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd"
)

func statsSpec(srv *server.Server) cmd.Spec {
	return cmd.Spec{
		Name:        "stats",
		Aliases:     []string{"statistics", "status"},
		Description: "Displays server statistics.",
		Permission:  PermissionAdmin,
		Handler: func(ctx cmd.Context) (any, error) {
			o := srv.Output(ctx)
			s := srv.Stats()
			o.Printt("stats.header")
			o.Printt("stats.players", s.Players, s.MaxPlayers)
			o.Printt("stats.commands", s.Commands)
			o.Printt("stats.cooldowns", s.Cooldowns)
			o.Printt("stats.plugins", s.Plugins)
			o.Printt("stats.profiles", s.Profiles)
			o.Printt("stats.cache", s.Cache.Size, s.Cache.Hits, s.Cache.Misses, s.Cache.Evictions, s.Cache.HitRate())
			o.Printt("stats.memory", bytesToMiB(s.HeapAlloc), bytesToMiB(s.HeapSys))
			o.Printt("stats.runtime", s.Goroutines, runtime.GOMAXPROCS(0), s.NumGC)
			if cpuLoad, ready := sampleAverageCPULoad(); ready {
				o.Printt("stats.cpu", cpuLoad, runtime.NumCPU())
			} else {
				o.Printt("stats.cpu-pending")
			}
			o.Printt("stats.uptime", s.Uptime.Round(time.Second).String())
			return o, nil
		},
	}
}

var (
	cpuSampleMu       sync.Mutex
	cpuSampleLastTime time.Time
	cpuSampleLastUsed float64
)

// sampleAverageCPULoad returns the CPU load per core since the previous call.
// The first call only records a baseline and returns false.
func sampleAverageCPULoad() (float64, bool) {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/idle:cpu-seconds"},
	}
	metrics.Read(samples)
	if samples[0].Value.Kind() != metrics.KindFloat64 || samples[1].Value.Kind() != metrics.KindFloat64 {
		return 0, false
	}
	used := samples[0].Value.Float64() - samples[1].Value.Float64()
	now := time.Now()

	cpuSampleMu.Lock()
	defer cpuSampleMu.Unlock()

	ready := !cpuSampleLastTime.IsZero()
	deltaTime := now.Sub(cpuSampleLastTime).Seconds()
	deltaUsed := used - cpuSampleLastUsed

	cpuSampleLastTime = now
	cpuSampleLastUsed = used

	if !ready || deltaTime <= 0 || deltaUsed < 0 {
		return 0, false
	}
	usage := (deltaUsed / deltaTime / float64(runtime.NumCPU())) * 100
	return min(max(usage, 0), 100), true
}
