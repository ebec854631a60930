package runner

import (
	"context"
	"time"

	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

const scaleUpLockPrefix = "elasticrunner:scaleup:"
const scaleDownLockPrefix = "elasticrunner:scaledown:"
const notifyTimeout = 10 * time.Second

// CapacityManager provisions more workers for a source. Notifications are fire-and-forget.
type CapacityManager interface {
	ScaleUp(ctx context.Context, sourceID string) error
}

type CapacityManagerFunc func(ctx context.Context, sourceID string) error

func (f CapacityManagerFunc) ScaleUp(ctx context.Context, sourceID string) error {
	return f(ctx, sourceID)
}

// notifyScaleUp tells the capacity manager about a scale-up decision without blocking the loop.
// With Redis available only one replica per cooldown window notifies.
func (w *Worker) notifyScaleUp(ctx context.Context) {
	if w.cfg.CapacityManager == nil {
		w.logger().Info("scale up recommended, no capacity manager configured")
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		if !w.acquireScaleUpLock() {
			w.logger().Debug("scale up already requested by another replica")
			return
		}

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := w.cfg.CapacityManager.ScaleUp(notifyCtx, w.cfg.SourceID); err != nil {
			w.captureError(err)
			return
		}
		w.logger().Info("scale up requested")
	}()
}

func (w *Worker) acquireScaleUpLock() bool {
	coolDown := w.cfg.Scaling.CoolDown
	if w.locker == nil || coolDown <= 0 {
		return true
	}

	// Never unlocked: the lock expires with the cooldown window
	lock := w.locker.CreateMutexLock(scaleUpLockPrefix+w.cfg.SourceID, contracts.LockOptions{
		Expiry: coolDown,
	})
	return lock.Lock() == nil
}

// acceptScaleDown is the controller's scale-down action. It holds a lock while counting
// replicas so that two idle replicas cannot both leave the pool below MinReplicas.
func (w *Worker) acceptScaleDown() bool {
	if w.replicas == nil || w.cfg.MinReplicas <= 0 {
		return true
	}

	lock := w.locker.CreateMutexLock(scaleDownLockPrefix+w.cfg.SourceID, contracts.LockOptions{
		Expiry:     5 * time.Second,
		RetryDelay: 50 * time.Millisecond,
		Retries:    2,
	})
	if err := lock.Lock(); err != nil {
		return false
	}
	defer func() {
		if _, err := lock.Unlock(); err != nil {
			w.captureError(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	replicas, err := w.replicas.count(ctx)
	if err != nil {
		w.captureError(err)
		return false
	}
	if replicas <= w.cfg.MinReplicas {
		w.logger().WithField("replicas", replicas).Debug("scale down refused, replica floor reached")
		return false
	}

	// Leave the registry now so the next replica counts without us
	w.replicas.remove(ctx)
	return true
}
