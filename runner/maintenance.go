package runner

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

const cleanupInterval = time.Minute

type maintenance = gocron.Scheduler

// startMaintenance schedules the periodic jobs of the worker: replica renewal and,
// for sources that need it, consumer group cleanup.
func (w *Worker) startMaintenance() (maintenance, error) {
	janitor, hasJanitor := w.source.(contracts.Janitor)
	if w.replicas == nil && !hasJanitor {
		return nil, nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if w.replicas != nil {
		_, err := scheduler.NewJob(
			gocron.DurationJob(replicationRenewDuration),
			gocron.NewTask(w.replicas.renew),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = scheduler.Shutdown()
			return nil, err
		}
	}

	if hasJanitor {
		_, err := scheduler.NewJob(
			gocron.DurationJob(cleanupInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), cleanupInterval/2)
				defer cancel()
				if err := janitor.Cleanup(ctx, w.cfg.ConsumerGroup); err != nil {
					w.captureError(err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = scheduler.Shutdown()
			return nil, err
		}
	}

	scheduler.Start()
	return scheduler, nil
}
