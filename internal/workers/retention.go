package workers

import (
	"context"
	"sync"
	"time"

	"orchestrationapi/internal/persistence"

	"github.com/sirupsen/logrus"
)

// RetentionWorker periodically deletes RequestLog and HealthCheckResult
// rows older than retentionDays (spec.md §4.6's "Log retention"). Grounded
// on internal/services/log_cleanup_service.go's LogCleanupService, which
// runs its delete pass on a 2-hour ticker.
type RetentionWorker struct {
	persist       persistence.Persistence
	retentionDays int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

const retentionTickInterval = 2 * time.Hour

// NewRetentionWorker builds a worker. retentionDays <= 0 disables deletion
// entirely (every row is kept forever), mirroring RetentionDays=0 meaning
// "no cleanup" in the teacher's settings.
func NewRetentionWorker(persist persistence.Persistence, retentionDays int) *RetentionWorker {
	return &RetentionWorker{persist: persist, retentionDays: retentionDays, stopCh: make(chan struct{})}
}

// Run starts the periodic cleanup loop.
func (w *RetentionWorker) Run() {
	if w.retentionDays <= 0 {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the loop to exit and waits for the current pass to finish.
func (w *RetentionWorker) Stop(ctx context.Context) {
	close(w.stopCh)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (w *RetentionWorker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(retentionTickInterval)
	defer ticker.Stop()

	w.cleanup()
	for {
		select {
		case <-ticker.C:
			w.cleanup()
		case <-w.stopCh:
			return
		}
	}
}

func (w *RetentionWorker) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	if n, err := w.persist.DeleteRequestLogsBefore(cutoff); err != nil {
		logrus.WithError(err).Error("retention worker: failed to delete old request logs")
	} else if n > 0 {
		logrus.Infof("retention worker: deleted %d request logs older than %d days", n, w.retentionDays)
	}

	if n, err := w.persist.DeleteHealthCheckResultsBefore(cutoff); err != nil {
		logrus.WithError(err).Error("retention worker: failed to delete old health check results")
	} else if n > 0 {
		logrus.Infof("retention worker: deleted %d health check results older than %d days", n, w.retentionDays)
	}
}
