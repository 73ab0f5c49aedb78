package viewer

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/drummonds/goPDFView/config"
)

// InitializeSchedules starts the periodic maintenance jobs for every viewer
// the manager holds: pool cleanup (drop stale canvases and bitmaps) and the
// memory pressure poll (retune scheduler concurrency and buffer radius).
// Returns the cron so the caller can stop it on shutdown.
func InitializeSchedules(serverConfig config.ServerConfig, manager *Manager) *cron.Cron {
	c := cron.New()

	var cleanupJob cron.Job
	cleanupJob = cron.FuncJob(manager.CleanupPools)
	cleanupJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cleanupJob) //ensure we don't kick off another if old one is still running
	c.AddJob(fmt.Sprintf("@every %ds", serverConfig.MaintenanceSecs), cleanupJob)

	var memoryJob cron.Job
	memoryJob = cron.FuncJob(manager.PollMemory)
	memoryJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(memoryJob)
	c.AddJob(fmt.Sprintf("@every %ds", serverConfig.MaintenanceSecs), memoryJob)

	Logger.Info("Adding maintenance job schedules", "interval_seconds", serverConfig.MaintenanceSecs)
	c.Start()
	return c
}
