package cron

import (
	"context"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/oneboxhq/onebox/config"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/logger"
	"github.com/oneboxhq/onebox/internal/tracing"
)

// CronManager schedules the extra reconciliation sync. The push loop
// already covers new mail; this job backstops missed notifications.
type CronManager struct {
	cfg    *config.CronConfig
	log    logger.Logger
	cron   *cronv3.Cron
	stopCh chan struct{}
	jobIDs map[string]cronv3.EntryID
	engine interfaces.SyncEngine
}

func NewCronManager(cfg *config.CronConfig, log logger.Logger, engine interfaces.SyncEngine) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		engine: engine,
	}
}

// Start registers and starts the scheduler. With no schedule configured
// nothing runs and Start is a no-op.
func (cm *CronManager) Start() {
	if cm.cfg.ReconcileSchedule == "" {
		cm.log.Info("No cron schedule configured, reconciliation job disabled")
		return
	}

	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	id, err := c.AddFunc(cm.cfg.ReconcileSchedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		cm.runReconciliationSync()
	})
	if err != nil {
		cm.log.Fatalf("Could not add reconciliation cron job: %v", err)
	}
	cm.jobIDs["reconcile"] = id
	cm.log.Infof("Registered reconciliation job with schedule: %s", cm.cfg.ReconcileSchedule)
}

func (cm *CronManager) runReconciliationSync() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runReconciliationSync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	emails, err := cm.engine.FullSync(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Scheduled reconciliation sync failed: %v", err)
		return
	}

	span.LogKV("new", len(emails))
	cm.log.Infof("Scheduled reconciliation sync indexed %d new message(s)", len(emails))
}
