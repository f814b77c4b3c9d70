package workers

import (
	"context"
	"sync"
	"time"

	"orchestrationapi/internal/health"
	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/provider"

	"github.com/sirupsen/logrus"
)

// HealthCheckWorker periodically runs the tiered provider/key/model probe
// (spec.md §4.7) for every enabled group. Shares KeyHealthCheck.IntervalMinutes
// with KeyHealthWorker: spec.md §6 names one KeyHealthCheck config block,
// not a separate knob per health mechanism, so both loops run on the same
// cadence (see DESIGN.md's Open Question decisions).
type HealthCheckWorker struct {
	persist  persistence.Persistence
	checker  *health.Checker
	timeouts provider.Config
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewHealthCheckWorker(persist persistence.Persistence, checker *health.Checker, timeouts provider.Config, interval time.Duration) *HealthCheckWorker {
	return &HealthCheckWorker{persist: persist, checker: checker, timeouts: timeouts, interval: interval, stopCh: make(chan struct{})}
}

func (w *HealthCheckWorker) Run() {
	if w.interval <= 0 {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

func (w *HealthCheckWorker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.checkAll()
	for {
		select {
		case <-ticker.C:
			w.checkAll()
		case <-w.stopCh:
			return
		}
	}
}

func (w *HealthCheckWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *HealthCheckWorker) checkAll() {
	groups, err := w.persist.ListEnabledGroups()
	if err != nil {
		logrus.WithError(err).Error("health check worker: failed to list enabled groups")
		return
	}
	for _, group := range groups {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.checkGroup(group)
	}
}

func (w *HealthCheckWorker) checkGroup(group *models.GroupConfig) {
	report, err := w.checker.Check(context.Background(), group, w.timeouts)
	if err != nil {
		logrus.WithError(err).WithField("group", group.ID).Warn("health check worker: probe failed")
		return
	}
	if report.Inconsistency != "" {
		logrus.WithFields(logrus.Fields{
			"group": group.ID, "inconsistency": report.Inconsistency,
		}).Warn("health check worker: inconsistent probe result")
	}
}
